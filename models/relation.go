package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AcknowledgedRelation links two lineages once both sides approved it.
// FromCode is always lexically smaller than ToCode.
type AcknowledgedRelation struct {
	FromCode        string
	ToCode          string
	Version         int
	RequestedByCode string

	FromAcknowledgedDate   *time.Time
	FromAcknowledgedByUUID *uuid.UUID
	FromTitle              string
	FromExplanation        string

	ToAcknowledgedDate   *time.Time
	ToAcknowledgedByUUID *uuid.UUID
	ToTitle              string
	ToExplanation        string

	Denied    *time.Time
	DeletedAt *time.Time

	CreatedDate    time.Time
	CreatedByUUID  uuid.UUID
	ModifiedDate   time.Time
	ModifiedByUUID uuid.UUID
}

// RelationSide is one party of a relation seen on its own.
type RelationSide struct {
	Code               string
	AcknowledgedDate   *time.Time
	AcknowledgedByUUID *uuid.UUID
	Title              string
	Explanation        string
}

func (s RelationSide) Acknowledged() bool {
	return s.AcknowledgedDate != nil
}

func (s *RelationSide) Approve(at time.Time, by uuid.UUID) {
	s.AcknowledgedDate = &at
	s.AcknowledgedByUUID = &by
}

func (s *RelationSide) Disapprove() {
	s.AcknowledgedDate = nil
	s.AcknowledgedByUUID = nil
}

// WithSides fills both sides in canonical order.
func (r *AcknowledgedRelation) WithSides(a, b RelationSide) {
	from, to := a, b
	if b.Code < a.Code {
		from, to = b, a
	}
	r.FromCode = from.Code
	r.ToCode = to.Code
	r.ApplySide(from)
	r.ApplySide(to)
}

// Side returns the side owned by code.
func (r AcknowledgedRelation) Side(code string) (RelationSide, error) {
	switch code {
	case r.FromCode:
		return RelationSide{
			Code:               r.FromCode,
			AcknowledgedDate:   r.FromAcknowledgedDate,
			AcknowledgedByUUID: r.FromAcknowledgedByUUID,
			Title:              r.FromTitle,
			Explanation:        r.FromExplanation,
		}, nil
	case r.ToCode:
		return RelationSide{
			Code:               r.ToCode,
			AcknowledgedDate:   r.ToAcknowledgedDate,
			AcknowledgedByUUID: r.ToAcknowledgedByUUID,
			Title:              r.ToTitle,
			Explanation:        r.ToExplanation,
		}, nil
	}
	return RelationSide{}, fmt.Errorf("code %s does not belong to relation %s/%s", code, r.FromCode, r.ToCode)
}

// ApplySide writes side back onto the matching half of the relation.
func (r *AcknowledgedRelation) ApplySide(side RelationSide) error {
	switch side.Code {
	case r.FromCode:
		r.FromAcknowledgedDate = side.AcknowledgedDate
		r.FromAcknowledgedByUUID = side.AcknowledgedByUUID
		r.FromTitle = side.Title
		r.FromExplanation = side.Explanation
	case r.ToCode:
		r.ToAcknowledgedDate = side.AcknowledgedDate
		r.ToAcknowledgedByUUID = side.AcknowledgedByUUID
		r.ToTitle = side.Title
		r.ToExplanation = side.Explanation
	default:
		return fmt.Errorf("code %s does not belong to relation %s/%s", side.Code, r.FromCode, r.ToCode)
	}
	return nil
}

// OtherCode returns the code opposite to code.
func (r AcknowledgedRelation) OtherCode(code string) string {
	if code == r.FromCode {
		return r.ToCode
	}
	return r.FromCode
}

// IsAcknowledged is computed, never stored: both sides approved.
func (r AcknowledgedRelation) IsAcknowledged() bool {
	return r.FromAcknowledgedDate != nil && r.ToAcknowledgedDate != nil
}

// IsActive reports whether the pair is neither denied nor deleted.
func (r AcknowledgedRelation) IsActive() bool {
	return r.Denied == nil && r.DeletedAt == nil
}

// RelationView presents a relation from the perspective of one lineage.
type RelationView struct {
	SideA           RelationSide
	SideB           RelationSide
	OtherCode       string
	Version         int
	RequestedByCode string
	Acknowledged    bool
	Denied          *time.Time
	DeletedAt       *time.Time
	CreatedDate     time.Time
	CreatedByUUID   uuid.UUID
	ModifiedDate    time.Time
	ModifiedByUUID  uuid.UUID
}

// View returns the relation with the perspective code as SideA.
func (r AcknowledgedRelation) View(perspective string) RelationView {
	from, _ := r.Side(r.FromCode)
	to, _ := r.Side(r.ToCode)
	a, b := from, to
	if perspective == r.ToCode {
		a, b = to, from
	}
	return RelationView{
		SideA:           a,
		SideB:           b,
		OtherCode:       r.OtherCode(perspective),
		Version:         r.Version,
		RequestedByCode: r.RequestedByCode,
		Acknowledged:    r.IsAcknowledged(),
		Denied:          r.Denied,
		DeletedAt:       r.DeletedAt,
		CreatedDate:     r.CreatedDate,
		CreatedByUUID:   r.CreatedByUUID,
		ModifiedDate:    r.ModifiedDate,
		ModifiedByUUID:  r.ModifiedByUUID,
	}
}
