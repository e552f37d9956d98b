package relations

// RequestInput opens, or counter-approves, a relation from one lineage to
// another.
type RequestInput struct {
	Code        string
	OtherCode   string
	Title       string
	Explanation string
}

// EditInput changes the caller's side only. Nil fields are left untouched.
type EditInput struct {
	Title        *string
	Explanation  *string
	Acknowledged *bool
}

// ListFilter narrows List. The zero value lists the active relations of a
// lineage regardless of who requested them.
type ListFilter struct {
	// RequestedByMe keeps relations requested by the listed lineage.
	RequestedByMe bool
	// Acknowledged, when set, keeps only relations in that state.
	Acknowledged *bool
	// ShowInactive includes denied and deleted relations.
	ShowInactive bool
}
