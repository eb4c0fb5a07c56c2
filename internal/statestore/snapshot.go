package statestore

import (
	"github.com/pkg/errors"

	"github.com/withObsrvr/braket-orchestrator/internal/domain"
)

// Snapshot is a point-in-time copy of the store used for checkpointing between CLI runs.
type Snapshot struct {
	Jobs          []*domain.JobRecord      `json:"jobs"`
	Batches       []*domain.BatchRecord    `json:"batches"`
	CurrentDevice *domain.DeviceDescriptor `json:"currentDevice,omitempty"`
	Prices        []domain.PricingEntry    `json:"prices,omitempty"`
}

// Snapshot copies the current state. Expired prices are left out.
func (s *Store) Snapshot() *Snapshot {
	snap := &Snapshot{
		Jobs:    s.Jobs(),
		Batches: s.Batches(),
	}
	if d, ok := s.CurrentDevice(); ok {
		snap.CurrentDevice = &d
	}
	for id := range s.prices.Items() {
		if entry, ok := s.Price(id); ok {
			snap.Prices = append(snap.Prices, entry)
		}
	}
	return snap
}

// Restore loads a snapshot. Records with the same id are replaced. A snapshot holding a null or
// id-less record is rejected as a whole and the store is left unchanged.
func (s *Store) Restore(snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	for i, j := range snap.Jobs {
		if j == nil || j.ID == "" {
			return errors.Errorf("restore: job entry %d has no id", i)
		}
		if err := txn.Insert(jobsTable, j.DeepCopy()); err != nil {
			return errors.Wrapf(err, "restore job %s", j.ID)
		}
	}
	for i, b := range snap.Batches {
		if b == nil || b.ID == "" {
			return errors.Errorf("restore: batch entry %d has no id", i)
		}
		if err := txn.Insert(batchesTable, b.DeepCopy()); err != nil {
			return errors.Wrapf(err, "restore batch %s", b.ID)
		}
	}
	txn.Commit()

	if snap.CurrentDevice != nil {
		s.SetCurrentDevice(*snap.CurrentDevice)
	}
	for _, p := range snap.Prices {
		s.CachePrice(p)
	}
	return nil
}
