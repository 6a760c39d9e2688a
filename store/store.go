// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"gorm.io/gorm"

	"github.com/blinklabs-io/steward/clock"
	"github.com/blinklabs-io/steward/database"
	"github.com/blinklabs-io/steward/database/models"
	"github.com/blinklabs-io/steward/identity"
)

const DefaultProposalPeriod = 100

// PendingUpgrade is the single upgrade-intent slot of a store
type PendingUpgrade struct {
	Upgrader    identity.Principal
	StartHeight uint64
	Period      uint64
}

// DataStoreConfig holds the configuration for a data store
type DataStoreConfig struct {
	Logger         *slog.Logger
	Database       *database.Database
	Clock          clock.Source
	Owner          identity.Principal
	ProposalPeriod uint64
}

// DataStore owns the durable resource set of a governed service and the
// access registry arbitrating who may touch it. All operations take the
// caller's principal explicitly; one mutex per store keeps every state
// transition atomic with respect to all others.
type DataStore struct {
	logger         *slog.Logger
	db             *database.Database
	clock          clock.Source
	registry       accessRegistry
	pending        *PendingUpgrade
	proposalPeriod uint64
	initialized    bool
	mutex          sync.Mutex
}

// New creates a data store bound to the given database, adopting any state
// a previous instance persisted there
func New(cfg DataStoreConfig) (*DataStore, error) {
	if cfg.Database == nil {
		return nil, errors.New("no database provided")
	}
	if !cfg.Owner.IsSet() {
		return nil, errors.New("no owner principal provided")
	}
	logger := cfg.Logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	clockSource := cfg.Clock
	if clockSource == nil {
		clockSource = clock.NewManual(0)
	}
	proposalPeriod := cfg.ProposalPeriod
	if proposalPeriod == 0 {
		proposalPeriod = DefaultProposalPeriod
	}
	d := &DataStore{
		logger:         logger,
		db:             cfg.Database,
		clock:          clockSource,
		registry:       newAccessRegistry(cfg.Owner),
		proposalPeriod: proposalPeriod,
	}
	if err := d.loadState(); err != nil {
		return nil, fmt.Errorf("failed to load store state: %w", err)
	}
	return d, nil
}

// loadState adopts persisted store state, or persists the fresh state for a
// brand new store
func (d *DataStore) loadState() error {
	state, err := d.db.GetStoreState(nil)
	if err != nil {
		return err
	}
	if state == nil {
		return d.db.SetStoreState(
			&models.StoreState{
				Owner:          d.registry.owner.String(),
				ProposalPeriod: d.proposalPeriod,
			},
			nil,
		)
	}
	if state.Owner != d.registry.owner.String() {
		return fmt.Errorf(
			"persisted owner %q does not match configured owner %q",
			state.Owner,
			d.registry.owner.String(),
		)
	}
	d.initialized = state.Initialized
	d.proposalPeriod = state.ProposalPeriod
	d.registry.activeHandler = identity.Principal(state.ActiveHandler)
	grants, err := d.db.GetReadGrants(nil)
	if err != nil {
		return err
	}
	for _, grant := range grants {
		d.registry.readAllowed[identity.Principal(grant)] = struct{}{}
	}
	pending, err := d.db.GetPendingUpgrade(nil)
	if err != nil {
		return err
	}
	if pending != nil {
		d.pending = &PendingUpgrade{
			Upgrader:    identity.Principal(pending.Upgrader),
			StartHeight: pending.StartHeight,
			Period:      pending.Period,
		}
	}
	return nil
}

// Height returns the current logical height of the store's clock source
func (d *DataStore) Height() uint64 {
	return d.clock.Height()
}

// Initialized returns true once the store has been initialized
func (d *DataStore) Initialized() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.initialized
}

// ProposalPeriod returns the configured upgrade-intent window length
func (d *DataStore) ProposalPeriod() uint64 {
	return d.proposalPeriod
}

// InitPayload is the resource set stored by the one-shot initialization.
// The contents are application payload, opaque to the store's contract.
type InitPayload struct {
	Label    string
	Counter  int64
	Sequence []string
	Records  map[string]map[string]string
}

// Initialize performs the store's exactly-once initialization. Only the
// active handler may call it; a second call always fails with
// ErrAlreadyInitialized.
func (d *DataStore) Initialize(
	caller identity.Principal,
	payload InitPayload,
) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if !d.registry.isWriter(caller) {
		return ErrPermission
	}
	if d.initialized {
		return ErrAlreadyInitialized
	}
	// Nested records go to the blob store first: they stay invisible if the
	// metadata commit below fails, since the store remains uninitialized
	for namespace, records := range payload.Records {
		for key, value := range records {
			if err := d.db.SetRecord(namespace, key, []byte(value)); err != nil {
				return err
			}
		}
	}
	err := d.db.Transaction(func(txn *gorm.DB) error {
		if err := d.db.SetResource(
			&models.Resource{
				Label:   payload.Label,
				Counter: payload.Counter,
			},
			txn,
		); err != nil {
			return err
		}
		for _, value := range payload.Sequence {
			if err := d.db.AppendSequenceEntry(value, txn); err != nil {
				return err
			}
		}
		return d.db.SetStoreState(
			&models.StoreState{
				Owner:          d.registry.owner.String(),
				ActiveHandler:  d.registry.activeHandler.String(),
				Initialized:    true,
				ProposalPeriod: d.proposalPeriod,
			},
			txn,
		)
	})
	if err != nil {
		return err
	}
	d.initialized = true
	d.logger.Info(
		"store initialized",
		"component", "store",
		"handler", caller.String(),
	)
	return nil
}

// SetActiveHandler registers the first active handler. Callable only by
// the owner and only before initialization; afterwards write authority
// moves exclusively through PerformHandoff.
func (d *DataStore) SetActiveHandler(
	caller identity.Principal,
	handler identity.Principal,
) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.authorizeWriter(caller, handler, d.registry.activeHandler)
}

// RegisterUpgradeIntent stamps a fresh upgrade-intent record at the current
// height. Only the owner may register one, and only while no other intent
// is still inside its window.
func (d *DataStore) RegisterUpgradeIntent(
	caller identity.Principal,
	upgrader identity.Principal,
) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if caller != d.registry.owner {
		return ErrPermission
	}
	if !upgrader.IsSet() {
		return ErrPermission
	}
	now := d.clock.Height()
	if d.pending != nil && now <= d.pending.StartHeight+d.pending.Period {
		return ErrUpgradeConflict
	}
	pending := &PendingUpgrade{
		Upgrader:    upgrader,
		StartHeight: now,
		Period:      d.proposalPeriod,
	}
	if err := d.db.SetPendingUpgrade(
		&models.PendingUpgrade{
			Upgrader:    pending.Upgrader.String(),
			StartHeight: pending.StartHeight,
			Period:      pending.Period,
		},
		nil,
	); err != nil {
		return err
	}
	d.pending = pending
	d.logger.Info(
		"upgrade intent registered",
		"component", "store",
		"upgrader", upgrader.String(),
		"start_height", pending.StartHeight,
		"period", pending.Period,
	)
	return nil
}

// PendingUpgrade returns a copy of the current upgrade-intent slot, or nil
// if the slot is empty
func (d *DataStore) PendingUpgrade() *PendingUpgrade {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.pending == nil {
		return nil
	}
	pending := *d.pending
	return &pending
}

// QueryUpgradeStatus reports the state of the pending-upgrade slot for the
// given caller. claim is the handler the caller believes is active; a stale
// claim yields UpgradeStatusError.
func (d *DataStore) QueryUpgradeStatus(
	caller identity.Principal,
	claim identity.Principal,
) UpgradeStatus {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if claim != d.registry.activeHandler {
		return UpgradeStatusError
	}
	if d.pending == nil {
		return UpgradeStatusDone
	}
	lapsed := d.clock.Height() > d.pending.StartHeight+d.pending.Period
	if caller == d.pending.Upgrader {
		if lapsed {
			return UpgradeStatusExpired
		}
		return UpgradeStatusInProgress
	}
	if lapsed {
		return UpgradeStatusDone
	}
	return UpgradeStatusBlocked
}

// PerformHandoff atomically transfers write authority from the original
// handler to the new one. Only reachable by the registered upgrader; the
// caller is responsible for confirming its own status reads in-progress
// before invoking it.
func (d *DataStore) PerformHandoff(
	caller identity.Principal,
	newHandler identity.Principal,
	originalHandler identity.Principal,
) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.authorizeWriter(caller, newHandler, originalHandler)
}
