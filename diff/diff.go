package diff

import (
	"reflect"
	"sort"
)

// FindChanges compares two payload snapshots and returns the changed fields,
// sorted by name.
func FindChanges(prev, curr map[string]any) []FieldChange {
	var changes []FieldChange

	// Detect changed or added fields
	for k, newVal := range curr {
		oldVal, exists := prev[k]
		if !exists || !equalValues(oldVal, newVal) {
			changes = append(changes, FieldChange{
				Name: k,
				Old:  oldVal,
				New:  newVal,
			})
		}
	}

	// Detect removed fields
	for k, oldVal := range prev {
		if _, exists := curr[k]; !exists {
			changes = append(changes, FieldChange{
				Name: k,
				Old:  oldVal,
				New:  nil,
			})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Name < changes[j].Name })
	return changes
}

func equalValues(a, b any) bool {
	return reflect.DeepEqual(Normalize(a), Normalize(b))
}
