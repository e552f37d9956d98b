package lineage

import (
	"bytes"
	"cmp"
	"slices"
	"time"

	"f0oster/lineage/models"
)

// Mode selects which versions a resolution considers.
type Mode int

const (
	// Latest returns the most recently modified row regardless of validity.
	Latest Mode = iota
	// Valid returns the most recent row whose validity window contains T.
	Valid
)

func (m Mode) String() string {
	if m == Valid {
		return "valid"
	}
	return "latest"
}

// Versioned is any row carrying the common version columns.
type Versioned interface {
	Base() models.ObjectVersion
}

// ByCode partitions rows by lineage.
func ByCode[R Versioned](r R) string {
	return r.Base().Code
}

// ModuleCode is the partition key for drafts across modules.
type ModuleCode struct {
	ModuleID int64
	Code     string
}

// ByModuleCode partitions drafts by (module, lineage).
func ByModuleCode(r models.ModuleObjectVersion) ModuleCode {
	return ModuleCode{ModuleID: r.ModuleID, Code: r.Code}
}

// Resolve picks, per partition key, the newest row modified at or before at.
// Rows are ranked by Modified_Date and then UUID, both descending. In Valid
// mode rows that have not started by at are excluded before ranking and the
// winner is dropped when its validity already ended.
//
// The result is ordered by Code, then newest first.
func Resolve[R Versioned, K comparable](rows []R, at time.Time, mode Mode, key func(R) K) []R {
	winners := make(map[K]R)
	var order []K

	for _, row := range rows {
		v := row.Base()
		if v.ModifiedDate.After(at) {
			continue
		}
		if mode == Valid && (v.StartValidity == nil || v.StartValidity.After(at)) {
			continue
		}

		k := key(row)
		current, seen := winners[k]
		if !seen {
			order = append(order, k)
			winners[k] = row
			continue
		}
		if Newer(v, current.Base()) {
			winners[k] = row
		}
	}

	out := make([]R, 0, len(order))
	for _, k := range order {
		row := winners[k]
		v := row.Base()
		// the winner already started, so only its end can fail here
		if mode == Valid && !v.ValidAt(at) {
			continue
		}
		out = append(out, row)
	}

	slices.SortStableFunc(out, func(a, b R) int {
		av, bv := a.Base(), b.Base()
		if c := cmp.Compare(av.Code, bv.Code); c != 0 {
			return c
		}
		if Newer(av, bv) {
			return -1
		}
		if Newer(bv, av) {
			return 1
		}
		return 0
	})
	return out
}

// Newer reports whether a ranks before b within one lineage.
func Newer(a, b models.ObjectVersion) bool {
	if !a.ModifiedDate.Equal(b.ModifiedDate) {
		return a.ModifiedDate.After(b.ModifiedDate)
	}
	return bytes.Compare(a.UUID[:], b.UUID[:]) > 0
}
