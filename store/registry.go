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
	"gorm.io/gorm"

	"github.com/blinklabs-io/steward/database/models"
	"github.com/blinklabs-io/steward/identity"
)

// accessRegistry arbitrates who may read store state and which single
// principal (the active handler) may write it. The owner is a permanent
// member of the read set; handlers gain read+write on assignment and only
// the immediately preceding handler loses read permission on handoff.
type accessRegistry struct {
	owner         identity.Principal
	activeHandler identity.Principal
	readAllowed   map[identity.Principal]struct{}
}

func newAccessRegistry(owner identity.Principal) accessRegistry {
	return accessRegistry{
		owner: owner,
		readAllowed: map[identity.Principal]struct{}{
			owner: {},
		},
	}
}

func (r *accessRegistry) isReadAllowed(principal identity.Principal) bool {
	_, ok := r.readAllowed[principal]
	return ok
}

func (r *accessRegistry) isWriter(principal identity.Principal) bool {
	return r.activeHandler.IsSet() && principal == r.activeHandler
}

// authorizeWriter transfers write authority to candidate. The caller must
// be the owner before first initialization, or the registered upgrader.
// expectedPrevious protects against an authorization built against a stale
// handler. Must be called with the store mutex held.
func (d *DataStore) authorizeWriter(
	caller identity.Principal,
	candidate identity.Principal,
	expectedPrevious identity.Principal,
) error {
	if !candidate.IsSet() {
		return ErrPermission
	}
	ownerArm := caller == d.registry.owner && !d.initialized
	upgraderArm := d.pending != nil && caller == d.pending.Upgrader
	if !ownerArm && !upgraderArm {
		return ErrPermission
	}
	previous := d.registry.activeHandler
	if previous.IsSet() && previous != expectedPrevious {
		return ErrHandoffMismatch
	}
	// Apply the full transfer in one metadata transaction so a failure
	// leaves the registry untouched
	err := d.db.Transaction(func(txn *gorm.DB) error {
		if err := d.db.AddReadGrant(candidate.String(), txn); err != nil {
			return err
		}
		if previous.IsSet() &&
			previous != candidate &&
			previous != d.registry.owner {
			if err := d.db.RemoveReadGrant(previous.String(), txn); err != nil {
				return err
			}
		}
		if err := d.db.ClearPendingUpgrade(txn); err != nil {
			return err
		}
		return d.db.SetStoreState(
			&models.StoreState{
				Owner:          d.registry.owner.String(),
				ActiveHandler:  candidate.String(),
				Initialized:    d.initialized,
				ProposalPeriod: d.proposalPeriod,
			},
			txn,
		)
	})
	if err != nil {
		return err
	}
	d.registry.readAllowed[candidate] = struct{}{}
	if previous.IsSet() &&
		previous != candidate &&
		previous != d.registry.owner {
		delete(d.registry.readAllowed, previous)
	}
	d.registry.activeHandler = candidate
	d.pending = nil
	d.logger.Info(
		"write authority transferred",
		"component", "store",
		"handler", candidate.String(),
		"previous", previous.String(),
	)
	return nil
}

// IsReadAllowed returns true if the principal may read store resources
func (d *DataStore) IsReadAllowed(principal identity.Principal) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.registry.isReadAllowed(principal)
}

// IsWriter returns true if the principal is the active handler
func (d *DataStore) IsWriter(principal identity.Principal) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.registry.isWriter(principal)
}

// Owner returns the store's owner principal
func (d *DataStore) Owner() identity.Principal {
	return d.registry.owner
}

// ActiveHandler returns the current active handler, or identity.None if no
// handler has been registered yet
func (d *DataStore) ActiveHandler() identity.Principal {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.registry.activeHandler
}
