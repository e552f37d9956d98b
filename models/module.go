package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Module is a draft workspace. Its flags are owned by the lifecycle.
type Module struct {
	ModuleID           int64
	Title              string
	Description        string
	ModuleManager1UUID uuid.UUID
	ModuleManager2UUID *uuid.UUID
	Activated          bool
	Closed             bool
	Successful         bool
	TemporaryLocked    bool
	CreatedDate        time.Time
	CreatedByUUID      uuid.UUID
	ModifiedDate       time.Time
	ModifiedByUUID     uuid.UUID
}

// Managers returns the identifiers of the module managers.
func (m Module) Managers() []uuid.UUID {
	out := []uuid.UUID{m.ModuleManager1UUID}
	if m.ModuleManager2UUID != nil {
		out = append(out, *m.ModuleManager2UUID)
	}
	return out
}

func (m Module) IsManager(id uuid.UUID) bool {
	return slices.Contains(m.Managers(), id)
}

// ModuleStatus is one row of the append only status log.
type ModuleStatus struct {
	ID            int64
	ModuleID      int64
	Status        StatusCode
	CreatedDate   time.Time
	CreatedByUUID uuid.UUID
}

// StatusCode is a module status as recorded in the status log.
type StatusCode string

const (
	StatusOntwerpGSConcept           StatusCode = "Ontwerp GS Concept"
	StatusOntwerpGS                  StatusCode = "Ontwerp GS"
	StatusOntwerpPS                  StatusCode = "Ontwerp PS"
	StatusTerInzage                  StatusCode = "Ter Inzage"
	StatusDefinitiefOntwerpGSConcept StatusCode = "Definitief Ontwerp GS Concept"
	StatusDefinitiefOntwerpGS        StatusCode = "Definitief Ontwerp GS"
	StatusDefinitiefOntwerpPS        StatusCode = "Definitief Ontwerp PS"
	StatusVastgesteld                StatusCode = "Vastgesteld"

	// internal statuses, never set through PatchStatus
	StatusNietActief     StatusCode = "Niet-Actief"
	StatusGesloten       StatusCode = "Gesloten"
	StatusModuleAfgerond StatusCode = "Module afgerond"
)

var publicStatuses = []StatusCode{
	StatusOntwerpGSConcept,
	StatusOntwerpGS,
	StatusOntwerpPS,
	StatusTerInzage,
	StatusDefinitiefOntwerpGSConcept,
	StatusDefinitiefOntwerpGS,
	StatusDefinitiefOntwerpPS,
	StatusVastgesteld,
}

// PublicStatuses returns the ordered public status sequence.
func PublicStatuses() []StatusCode {
	return slices.Clone(publicStatuses)
}

func (s StatusCode) IsPublic() bool {
	return slices.Contains(publicStatuses, s)
}

// StatusAfter returns s and every public status that follows it.
// Unknown or internal statuses yield nil.
func StatusAfter(s StatusCode) []StatusCode {
	idx := slices.Index(publicStatuses, s)
	if idx < 0 {
		return nil
	}
	return slices.Clone(publicStatuses[idx:])
}

// CurrentStatus returns the newest entry of a status log.
func CurrentStatus(history []ModuleStatus) (ModuleStatus, bool) {
	if len(history) == 0 {
		return ModuleStatus{}, false
	}
	current := history[0]
	for _, st := range history[1:] {
		if st.CreatedDate.After(current.CreatedDate) ||
			(st.CreatedDate.Equal(current.CreatedDate) && st.ID > current.ID) {
			current = st
		}
	}
	return current, true
}
