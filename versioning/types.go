package versioning

import (
	"f0oster/lineage/models"
)

// Commit is the outcome of merging one lineage into the main timeline.
type Commit struct {
	Context models.ModuleObjectContext
	Version models.ObjectVersion
	// TitleRefreshed is false when another version stayed currently valid.
	TitleRefreshed bool
}
