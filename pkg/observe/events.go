// ABOUTME: Change event variants produced by the fan-out
// ABOUTME: Events carry stable identifiers and indices, never live references

package observe

import "github.com/nainya/objectstore/pkg/record"

// Event kinds
type EventKind uint8

const (
	EventWillChange EventKind = iota + 1
	EventDidChange
	EventWillRefetch
	EventDidRefetch
	EventObjectInserted
	EventObjectDeleted
	EventObjectUpdated
	EventObjectMoved
	EventSectionInserted
	EventSectionDeleted
)

// String returns a stable name for the event kind, used as a metric label
func (k EventKind) String() string {
	switch k {
	case EventWillChange:
		return "will_change"
	case EventDidChange:
		return "did_change"
	case EventWillRefetch:
		return "will_refetch"
	case EventDidRefetch:
		return "did_refetch"
	case EventObjectInserted:
		return "object_inserted"
	case EventObjectDeleted:
		return "object_deleted"
	case EventObjectUpdated:
		return "object_updated"
	case EventObjectMoved:
		return "object_moved"
	case EventSectionInserted:
		return "section_inserted"
	case EventSectionDeleted:
		return "section_deleted"
	}
	return "unknown"
}

// ChangeEvent is one typed change notification. Index fields are positions
// in the flattened snapshot; applying a batch's events sequentially against
// a mutable index-addressed sequence yields the new snapshot.
type ChangeEvent struct {
	Kind      EventKind
	ID        record.ID // object events
	Index     int       // inserts, deletes, updates, section events
	FromIndex int       // moves
	ToIndex   int       // moves
}

// Observer receives change events for one observed subject. Embed
// BaseObserver to implement only the capabilities a consumer cares about.
type Observer interface {
	WillChange()
	DidChange()
	WillRefetch()
	DidRefetch()
	ObjectInserted(id record.ID, index int)
	ObjectDeleted(id record.ID, index int)
	ObjectUpdated(id record.ID, index int)
	ObjectMoved(id record.ID, from, to int)
	SectionInserted(index int)
	SectionDeleted(index int)
}

// BaseObserver is a no-op implementation of every Observer method
type BaseObserver struct{}

func (BaseObserver) WillChange()                     {}
func (BaseObserver) DidChange()                      {}
func (BaseObserver) WillRefetch()                    {}
func (BaseObserver) DidRefetch()                     {}
func (BaseObserver) ObjectInserted(record.ID, int)   {}
func (BaseObserver) ObjectDeleted(record.ID, int)    {}
func (BaseObserver) ObjectUpdated(record.ID, int)    {}
func (BaseObserver) ObjectMoved(record.ID, int, int) {}
func (BaseObserver) SectionInserted(int)             {}
func (BaseObserver) SectionDeleted(int)              {}

// dispatch routes one event to an observer method
func dispatch(obs Observer, ev ChangeEvent) {
	switch ev.Kind {
	case EventWillChange:
		obs.WillChange()
	case EventDidChange:
		obs.DidChange()
	case EventWillRefetch:
		obs.WillRefetch()
	case EventDidRefetch:
		obs.DidRefetch()
	case EventObjectInserted:
		obs.ObjectInserted(ev.ID, ev.Index)
	case EventObjectDeleted:
		obs.ObjectDeleted(ev.ID, ev.Index)
	case EventObjectUpdated:
		obs.ObjectUpdated(ev.ID, ev.Index)
	case EventObjectMoved:
		obs.ObjectMoved(ev.ID, ev.FromIndex, ev.ToIndex)
	case EventSectionInserted:
		obs.SectionInserted(ev.Index)
	case EventSectionDeleted:
		obs.SectionDeleted(ev.Index)
	}
}
