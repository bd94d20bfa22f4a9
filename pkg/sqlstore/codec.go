// ABOUTME: CBOR wire encoding for record fields, locks and journal batches
package sqlstore

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/nainya/objectstore/pkg/record"
)

type wireValue struct {
	Type    uint8       `cbor:"t"`
	Bytes   []byte      `cbor:"b,omitempty"`
	Str     string      `cbor:"s,omitempty"`
	I64     int64       `cbor:"i,omitempty"`
	U64     uint64      `cbor:"u,omitempty"`
	F64     float64     `cbor:"f,omitempty"`
	Bool    bool        `cbor:"o,omitempty"`
	Time    time.Time   `cbor:"m,omitempty"`
	Ref     [2]string   `cbor:"r,omitempty"`
	RefList [][2]string `cbor:"l,omitempty"`
}

type wireChange struct {
	Kind   uint8  `cbor:"k"`
	Entity string `cbor:"e"`
	Key    string `cbor:"y"`
}

type wireBatch struct {
	Changes []wireChange `cbor:"c"`
}

func encodeFields(fields map[string]record.Value) ([]byte, error) {
	wire := make(map[string]wireValue, len(fields))
	for name, v := range fields {
		wire[name] = toWire(v)
	}
	return cbor.Marshal(wire)
}

func decodeFields(data []byte) (map[string]record.Value, error) {
	var wire map[string]wireValue
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode record fields: %w", err)
	}
	fields := make(map[string]record.Value, len(wire))
	for name, wv := range wire {
		fields[name] = fromWire(wv)
	}
	return fields, nil
}

func encodeLock(lock record.Lock) ([]byte, error) {
	return cbor.Marshal(map[string]string(lock))
}

func decodeLock(data []byte) (record.Lock, error) {
	var raw map[string]string
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode version lock: %w", err)
	}
	return record.Lock(raw), nil
}

func encodeBatch(changes []record.Change) ([]byte, error) {
	wire := wireBatch{Changes: make([]wireChange, len(changes))}
	for i, c := range changes {
		wire.Changes[i] = wireChange{Kind: c.Kind, Entity: c.ID.Entity, Key: c.ID.Key}
	}
	return cbor.Marshal(wire)
}

func toWire(v record.Value) wireValue {
	wv := wireValue{Type: v.Type}
	switch v.Type {
	case record.TYPE_BYTES:
		wv.Bytes = v.Bytes
	case record.TYPE_STRING:
		wv.Str = v.Str
	case record.TYPE_INT64:
		wv.I64 = v.I64
	case record.TYPE_UINT64:
		wv.U64 = v.U64
	case record.TYPE_FLOAT64:
		wv.F64 = v.F64
	case record.TYPE_BOOL:
		wv.Bool = v.Bool
	case record.TYPE_TIME:
		wv.Time = v.Time
	case record.TYPE_REF:
		wv.Ref = [2]string{v.Ref.Entity, v.Ref.Key}
	case record.TYPE_REFLIST:
		wv.RefList = make([][2]string, len(v.Refs))
		for i, id := range v.Refs {
			wv.RefList[i] = [2]string{id.Entity, id.Key}
		}
	}
	return wv
}

func fromWire(wv wireValue) record.Value {
	switch wv.Type {
	case record.TYPE_BYTES:
		return record.NewBytesValue(wv.Bytes)
	case record.TYPE_STRING:
		return record.NewStringValue(wv.Str)
	case record.TYPE_INT64:
		return record.NewInt64Value(wv.I64)
	case record.TYPE_UINT64:
		return record.NewUint64Value(wv.U64)
	case record.TYPE_FLOAT64:
		return record.NewFloat64Value(wv.F64)
	case record.TYPE_BOOL:
		return record.NewBoolValue(wv.Bool)
	case record.TYPE_TIME:
		return record.NewTimeValue(wv.Time)
	case record.TYPE_REF:
		return record.NewRefValue(record.ID{Entity: wv.Ref[0], Key: wv.Ref[1]})
	case record.TYPE_REFLIST:
		ids := make([]record.ID, len(wv.RefList))
		for i, pair := range wv.RefList {
			ids[i] = record.ID{Entity: pair[0], Key: pair[1]}
		}
		return record.NewRefListValue(ids)
	}
	return record.NullValue()
}
