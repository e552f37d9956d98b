package diff

// FieldChange represents a change of one payload field between two versions.
type FieldChange struct {
	Name string
	Old  any
	New  any
}
