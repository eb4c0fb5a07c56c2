// Package statestore holds all mutable state of one backend instance: jobs, batches, the
// currently selected device and the pricing cache.
//
// Jobs and batches live in a go-memdb database built on immutable radix trees. Records handed to
// the database are never modified afterwards; updates copy, mutate and re-insert the record inside
// a write transaction. Only one write transaction may be open at a time, so every update of a key
// is linearizable and concurrent submitters never lose an update.
package statestore

import (
	"sync"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/withObsrvr/braket-orchestrator/internal/domain"
	"github.com/withObsrvr/braket-orchestrator/internal/taskerrors"
)

const (
	jobsTable    = "jobs"
	batchesTable = "batches"
	idIndex      = "id"

	// DefaultPriceTTL is how long a resolved price stays valid.
	DefaultPriceTTL = 24 * time.Hour
)

// Store is safe for concurrent use. None of its methods perform network I/O.
type Store struct {
	db *memdb.MemDB

	deviceMu sync.RWMutex
	current  *domain.DeviceDescriptor

	prices   *cache.Cache
	priceTTL time.Duration
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPriceTTL overrides the pricing cache time-to-live.
func WithPriceTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.priceTTL = ttl
		}
	}
}

// WithClock overrides the clock used to age pricing entries.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty store.
func New(opts ...Option) (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	s := &Store{
		db:       db,
		priceTTL: DefaultPriceTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.prices = cache.New(s.priceTTL, s.priceTTL)
	return s, nil
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			jobsTable: {
				Name: jobsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
			batchesTable: {
				Name: batchesTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
		},
	}
}

// PutJob stores a new job record. Job ids are unique for the lifetime of the store, so an
// existing id is rejected with *taskerrors.ErrConflict.
func (s *Store) PutJob(rec *domain.JobRecord) error {
	if rec == nil || rec.ID == "" {
		return &taskerrors.ErrValidation{Field: "job.id", Message: "required"}
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(jobsTable, idIndex, rec.ID)
	if err != nil {
		return errors.WithStack(err)
	}
	if existing != nil {
		return &taskerrors.ErrConflict{Type: "job", Value: rec.ID, Message: "already exists"}
	}
	if err := txn.Insert(jobsTable, rec.DeepCopy()); err != nil {
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

// GetJob returns a copy of the job record, or false if the id is unknown.
func (s *Store) GetJob(id string) (*domain.JobRecord, bool) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	obj, err := txn.First(jobsTable, idIndex, id)
	if err != nil || obj == nil {
		return nil, false
	}
	return obj.(*domain.JobRecord).DeepCopy(), true
}

// UpdateJob atomically applies mutate to the stored job and returns the updated copy.
// If mutate returns an error nothing is written. Changing the task reference of a job that
// already has one is rejected.
func (s *Store) UpdateJob(id string, mutate func(*domain.JobRecord) error) (*domain.JobRecord, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	obj, err := txn.First(jobsTable, idIndex, id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if obj == nil {
		return nil, &taskerrors.ErrNotFound{Type: "job", Value: id}
	}
	current := obj.(*domain.JobRecord)
	updated := current.DeepCopy()
	if err := mutate(updated); err != nil {
		return nil, err
	}
	if updated.ID != current.ID {
		return nil, &taskerrors.ErrConflict{Type: "job", Value: id, Message: "job id is immutable"}
	}
	if current.TaskRef != "" && updated.TaskRef != current.TaskRef {
		return nil, &taskerrors.ErrConflict{Type: "job", Value: id, Message: "task reference is immutable"}
	}
	if err := txn.Insert(jobsTable, updated); err != nil {
		return nil, errors.WithStack(err)
	}
	txn.Commit()
	return updated.DeepCopy(), nil
}

// Jobs returns copies of all job records ordered by id.
func (s *Store) Jobs() []*domain.JobRecord {
	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(jobsTable, idIndex)
	if err != nil {
		return nil
	}
	var out []*domain.JobRecord
	for obj := iter.Next(); obj != nil; obj = iter.Next() {
		out = append(out, obj.(*domain.JobRecord).DeepCopy())
	}
	return out
}

// PutBatch stores a new batch record.
func (s *Store) PutBatch(rec *domain.BatchRecord) error {
	if rec == nil || rec.ID == "" {
		return &taskerrors.ErrValidation{Field: "batch.id", Message: "required"}
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(batchesTable, idIndex, rec.ID)
	if err != nil {
		return errors.WithStack(err)
	}
	if existing != nil {
		return &taskerrors.ErrConflict{Type: "batch", Value: rec.ID, Message: "already exists"}
	}
	if err := txn.Insert(batchesTable, rec.DeepCopy()); err != nil {
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

// GetBatch returns a copy of the batch record, or false if the id is unknown.
func (s *Store) GetBatch(id string) (*domain.BatchRecord, bool) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	obj, err := txn.First(batchesTable, idIndex, id)
	if err != nil || obj == nil {
		return nil, false
	}
	return obj.(*domain.BatchRecord).DeepCopy(), true
}

// UpdateBatch atomically applies mutate to the stored batch and returns the updated copy.
// The number of circuits a batch was created with cannot change.
func (s *Store) UpdateBatch(id string, mutate func(*domain.BatchRecord) error) (*domain.BatchRecord, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	obj, err := txn.First(batchesTable, idIndex, id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if obj == nil {
		return nil, &taskerrors.ErrNotFound{Type: "batch", Value: id}
	}
	current := obj.(*domain.BatchRecord)
	updated := current.DeepCopy()
	if err := mutate(updated); err != nil {
		return nil, err
	}
	if updated.ID != current.ID || updated.TotalCircuits != current.TotalCircuits {
		return nil, &taskerrors.ErrConflict{Type: "batch", Value: id, Message: "batch identity is immutable"}
	}
	if err := txn.Insert(batchesTable, updated); err != nil {
		return nil, errors.WithStack(err)
	}
	txn.Commit()
	return updated.DeepCopy(), nil
}

// Batches returns copies of all batch records ordered by id.
func (s *Store) Batches() []*domain.BatchRecord {
	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(batchesTable, idIndex)
	if err != nil {
		return nil
	}
	var out []*domain.BatchRecord
	for obj := iter.Next(); obj != nil; obj = iter.Next() {
		out = append(out, obj.(*domain.BatchRecord).DeepCopy())
	}
	return out
}

// SetCurrentDevice replaces the currently selected device.
func (s *Store) SetCurrentDevice(d domain.DeviceDescriptor) {
	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()
	s.current = &d
}

// CurrentDevice returns the currently selected device, if any.
func (s *Store) CurrentDevice() (domain.DeviceDescriptor, bool) {
	s.deviceMu.RLock()
	defer s.deviceMu.RUnlock()
	if s.current == nil {
		return domain.DeviceDescriptor{}, false
	}
	return *s.current, true
}

// CachePrice stores a freshly resolved price. Entries are replaced, never mutated in place.
func (s *Store) CachePrice(entry domain.PricingEntry) {
	if entry.CachedAt.IsZero() {
		entry.CachedAt = s.now()
	}
	remaining := s.priceTTL - entry.Age(s.now())
	if remaining <= 0 {
		return
	}
	s.prices.Set(entry.DeviceID, entry, remaining)
}

// Price returns the cached price for a device while it is younger than the TTL.
func (s *Store) Price(deviceID string) (domain.PricingEntry, bool) {
	obj, ok := s.prices.Get(deviceID)
	if !ok {
		return domain.PricingEntry{}, false
	}
	entry := obj.(domain.PricingEntry)
	if entry.Age(s.now()) >= s.priceTTL {
		s.prices.Delete(deviceID)
		return domain.PricingEntry{}, false
	}
	return entry, true
}

// InvalidatePrice drops the cached price for a device.
func (s *Store) InvalidatePrice(deviceID string) {
	s.prices.Delete(deviceID)
}
