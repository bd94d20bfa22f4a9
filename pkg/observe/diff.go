// ABOUTME: Minimal edit script between two ID snapshots
// ABOUTME: Deletes descending, moves via LIS, inserts ascending, updates last

package observe

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nainya/objectstore/pkg/record"
)

// ErrInconsistentSnapshot indicates a snapshot pair that cannot be diffed
// (duplicate identifiers). The monitor reacts by forcing a refetch instead
// of delivering a partial edit script.
var ErrInconsistentSnapshot = errors.New("observe: inconsistent snapshot")

// editScript is the ordered mutation sequence transforming one snapshot
// into another
type editScript struct {
	deletes []indexedID // old indices, descending
	moves   []move      // old index to new index
	inserts []indexedID // new indices, ascending
	updates []indexedID // new indices, ascending
}

type indexedID struct {
	id    record.ID
	index int
}

type move struct {
	id   record.ID
	from int
	to   int
}

func (s editScript) empty() bool {
	return len(s.deletes) == 0 && len(s.moves) == 0 && len(s.inserts) == 0 && len(s.updates) == 0
}

// computeEditScript diffs two ID sequences. updated marks IDs whose content
// changed in place; an updated ID that also moved reports only the move.
func computeEditScript(old, new []record.ID, updated map[record.ID]bool) (editScript, error) {
	oldIndex := make(map[record.ID]int, len(old))
	for i, id := range old {
		if _, dup := oldIndex[id]; dup {
			return editScript{}, fmt.Errorf("%w: duplicate id %s in previous snapshot", ErrInconsistentSnapshot, id)
		}
		oldIndex[id] = i
	}
	newIndex := make(map[record.ID]int, len(new))
	for i, id := range new {
		if _, dup := newIndex[id]; dup {
			return editScript{}, fmt.Errorf("%w: duplicate id %s in new snapshot", ErrInconsistentSnapshot, id)
		}
		newIndex[id] = i
	}

	var script editScript

	for i, id := range old {
		if _, ok := newIndex[id]; !ok {
			script.deletes = append(script.deletes, indexedID{id: id, index: i})
		}
	}
	sort.Slice(script.deletes, func(i, j int) bool {
		return script.deletes[i].index > script.deletes[j].index
	})

	for i, id := range new {
		if _, ok := oldIndex[id]; !ok {
			script.inserts = append(script.inserts, indexedID{id: id, index: i})
		}
	}

	// Common elements in new order; those outside the longest increasing
	// subsequence of old positions have moved.
	common := make([]record.ID, 0, len(new))
	oldPositions := make([]int, 0, len(new))
	for _, id := range new {
		if _, ok := oldIndex[id]; ok {
			common = append(common, id)
			oldPositions = append(oldPositions, oldIndex[id])
		}
	}
	stable := longestIncreasingSubsequence(oldPositions)

	moved := make(map[record.ID]bool)
	for i, id := range common {
		if !stable[i] {
			script.moves = append(script.moves, move{
				id:   id,
				from: oldIndex[id],
				to:   newIndex[id],
			})
			moved[id] = true
		}
	}

	for _, id := range new {
		if updated[id] && !moved[id] {
			if _, ok := oldIndex[id]; ok {
				script.updates = append(script.updates, indexedID{id: id, index: newIndex[id]})
			}
		}
	}

	return script, nil
}

// longestIncreasingSubsequence marks the positions of seq that form a
// longest strictly increasing subsequence. O(n log n).
func longestIncreasingSubsequence(seq []int) []bool {
	n := len(seq)
	member := make([]bool, n)
	if n == 0 {
		return member
	}

	tails := make([]int, 0, n)  // indices into seq
	prev := make([]int, n)      // predecessor links

	for i, v := range seq {
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if seq[tails[mid]] < v {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			prev[i] = tails[lo-1]
		} else {
			prev[i] = -1
		}
		if lo == len(tails) {
			tails = append(tails, i)
		} else {
			tails[lo] = i
		}
	}

	for i := tails[len(tails)-1]; i >= 0; i = prev[i] {
		member[i] = true
		if prev[i] == -1 {
			break
		}
	}
	return member
}

// diffSectionKeys produces section delete (descending) and insert
// (ascending) events between two ordered key lists
func diffSectionKeys(old, new []string) (deletes, inserts []int) {
	oldSet := make(map[string]int, len(old))
	for i, k := range old {
		oldSet[k] = i
	}
	newSet := make(map[string]int, len(new))
	for i, k := range new {
		newSet[k] = i
	}
	for i := len(old) - 1; i >= 0; i-- {
		if _, ok := newSet[old[i]]; !ok {
			deletes = append(deletes, i)
		}
	}
	for i, k := range new {
		if _, ok := oldSet[k]; !ok {
			inserts = append(inserts, i)
		}
	}
	return deletes, inserts
}
