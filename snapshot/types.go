package snapshot

import (
	"time"

	"f0oster/lineage/models"
)

// DraftFilter narrows ModuleDrafts.
type DraftFilter struct {
	// At is the evaluation instant; zero means now.
	At time.Time
	// OnlyActive skips modules that are not activated or already closed.
	OnlyActive bool
	// MinimumStatus keeps only modules whose current status is this public
	// status or a later one.
	MinimumStatus models.StatusCode
}

// ModuleDraft is the newest draft of a lineage held by one module.
type ModuleDraft struct {
	Module models.Module
	// Status is nil for a module without status history.
	Status *models.ModuleStatus
	Draft  models.ModuleObjectVersion
}
