package audit

import "reflect"

// Diff returns the subsets of old and updated whose keys changed. A key
// present on only one side appears in both results, with nil on the
// missing side. Both results are nil when nothing changed.
func Diff(old, updated map[string]any) (before, after map[string]any) {
	mark := func(k string) {
		if before == nil {
			before = make(map[string]any)
			after = make(map[string]any)
		}
		before[k] = old[k]
		after[k] = updated[k]
	}

	for k, ov := range old {
		nv, ok := updated[k]
		if !ok || !reflect.DeepEqual(ov, nv) {
			mark(k)
		}
	}
	for k := range updated {
		if _, ok := old[k]; !ok {
			mark(k)
		}
	}
	return before, after
}
