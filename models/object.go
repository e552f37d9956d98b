package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// ObjectStatic is the single mutable row of a lineage. It is created once and
// only its ownership and title cache change afterwards.
type ObjectStatic struct {
	ObjectType   string
	ObjectID     int64
	Code         string
	OwnerOneUUID *uuid.UUID
	OwnerTwoUUID *uuid.UUID
	CachedTitle  string
}

// Payload is the domain content carried by a version.
type Payload struct {
	Title       string
	Description string
	// Fields holds the per object type columns.
	Fields map[string]any
}

// Clone returns a payload that shares no mutable state with p. Nested maps
// and slices inside Fields are copied too.
func (p Payload) Clone() Payload {
	out := p
	out.Fields = make(map[string]any, len(p.Fields))
	for k, v := range p.Fields {
		out.Fields[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(val)
	default:
		return v
	}
}

// AsMap flattens the payload into a single attribute map for diffing.
func (p Payload) AsMap() map[string]any {
	out := make(map[string]any, len(p.Fields)+2)
	for k, v := range p.Fields {
		out[k] = v
	}
	out[FieldTitle] = p.Title
	out[FieldDescription] = p.Description
	return out
}

// ObjectVersion is one immutable row of the main timeline.
type ObjectVersion struct {
	UUID           uuid.UUID
	Code           string
	ObjectType     string
	ObjectID       int64
	AdjustOn       *uuid.UUID
	CreatedDate    time.Time
	CreatedByUUID  uuid.UUID
	ModifiedDate   time.Time
	ModifiedByUUID uuid.UUID
	StartValidity  *time.Time
	EndValidity    *time.Time
	Payload
}

// Base returns the common version columns. Draft rows inherit it.
func (v ObjectVersion) Base() ObjectVersion {
	return v
}

// ValidAt reports whether the validity window contains at.
// A nil start is treated as not yet valid.
func (v ObjectVersion) ValidAt(at time.Time) bool {
	if v.StartValidity == nil || v.StartValidity.After(at) {
		return false
	}
	return v.EndValidity == nil || v.EndValidity.After(at)
}

// ModuleObjectVersion is a draft row scoped to one (module, code) pair.
type ModuleObjectVersion struct {
	ObjectVersion
	ModuleID int64
	// Deleted marks a tombstone inside the module.
	Deleted bool
}

type ObjectAction string

const (
	ActionCreate    ObjectAction = "Create"
	ActionEdit      ObjectAction = "Edit"
	ActionTerminate ObjectAction = "Terminate"
)

func (a ObjectAction) Valid() bool {
	switch a {
	case ActionCreate, ActionEdit, ActionTerminate:
		return true
	}
	return false
}

// ModuleObjectContext records why and how a lineage takes part in a module.
type ModuleObjectContext struct {
	ModuleID         int64
	Code             string
	ObjectType       string
	ObjectID         int64
	Action           ObjectAction
	Explanation      string
	Conclusion       string
	OriginalAdjustOn *uuid.UUID
	Hidden           bool
	CreatedDate      time.Time
	CreatedByUUID    uuid.UUID
	ModifiedDate     time.Time
	ModifiedByUUID   uuid.UUID
}
