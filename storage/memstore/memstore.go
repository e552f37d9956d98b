// Package memstore is an in-memory storage.Store. Transactions are
// serialised and run against a cloned state that replaces the live state only
// when the unit of work succeeds, so a failed transaction leaves nothing behind.
package memstore

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"f0oster/lineage/models"
	"f0oster/lineage/storage"
)

var errReadOnly = errors.New("memstore: write attempted in a read-only view")

type contextKey struct {
	moduleID int64
	code     string
}

type pairKey struct {
	from string
	to   string
}

type memoryState struct {
	statics   map[string]models.ObjectStatic
	versions  []models.ObjectVersion
	modules   map[int64]models.Module
	statuses  []models.ModuleStatus
	contexts  map[contextKey]models.ModuleObjectContext
	drafts    []models.ModuleObjectVersion
	relations map[pairKey][]models.AcknowledgedRelation

	nextModuleID int64
	nextStatusID int64
}

func newMemoryState() memoryState {
	return memoryState{
		statics:      map[string]models.ObjectStatic{},
		modules:      map[int64]models.Module{},
		contexts:     map[contextKey]models.ModuleObjectContext{},
		relations:    map[pairKey][]models.AcknowledgedRelation{},
		nextModuleID: 1,
		nextStatusID: 1,
	}
}

// clone copies every table. Rows are values and payloads are cloned on every
// insert and read, so a shallow copy per table is enough.
func (s memoryState) clone() memoryState {
	out := memoryState{
		statics:      maps.Clone(s.statics),
		versions:     slices.Clone(s.versions),
		modules:      maps.Clone(s.modules),
		statuses:     slices.Clone(s.statuses),
		contexts:     maps.Clone(s.contexts),
		drafts:       slices.Clone(s.drafts),
		relations:    make(map[pairKey][]models.AcknowledgedRelation, len(s.relations)),
		nextModuleID: s.nextModuleID,
		nextStatusID: s.nextStatusID,
	}
	for k, rows := range s.relations {
		out.relations[k] = slices.Clone(rows)
	}
	return out
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	state memoryState
}

func New() *Store {
	return &Store{state: newMemoryState()}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) RunInTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	tx := &transaction{state: &working}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx := &transaction{state: &s.state, readOnly: true}
	return fn(tx)
}

type transaction struct {
	state    *memoryState
	readOnly bool
}

func (t *transaction) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}
