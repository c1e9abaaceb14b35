package callback

import "maps"

// Record is a structured handler result. Chained dispatch folds records
// together key by key; later handlers overwrite earlier keys.
type Record map[string]any

// merge folds next onto the accumulated result acc.
//
// A non-nil Record (or map[string]any) is shallow-copied on top of acc when
// acc is itself a record; a non-record acc is discarded. Any other non-nil
// value replaces acc. nil leaves acc untouched.
func merge(acc, next any) any {
	if rec, ok := asRecord(next); ok {
		out := make(Record, len(rec))
		if prev, ok := asRecord(acc); ok {
			maps.Copy(out, prev)
		}
		maps.Copy(out, rec)
		return out
	}
	if absent(next) {
		return acc
	}
	return next
}

func asRecord(v any) (Record, bool) {
	switch m := v.(type) {
	case Record:
		return m, m != nil
	case map[string]any:
		return Record(m), m != nil
	default:
		return nil, false
	}
}

func absent(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case Record:
		return x == nil
	case map[string]any:
		return x == nil
	default:
		return false
	}
}
