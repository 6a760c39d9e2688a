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

package database

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blinklabs-io/steward/database/models"
)

// GetStoreState retrieves the store state singleton. Returns nil if the
// store has never been persisted.
func (d *Database) GetStoreState(txn *gorm.DB) (*models.StoreState, error) {
	var state models.StoreState
	db := d.resolveDB(txn)
	if result := db.First(&state); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &state, nil
}

// SetStoreState creates or updates the store state singleton
func (d *Database) SetStoreState(
	state *models.StoreState,
	txn *gorm.DB,
) error {
	db := d.resolveDB(txn)
	state.ID = 1
	if result := db.Save(state); result.Error != nil {
		return result.Error
	}
	return nil
}

// AddReadGrant records read permission for a principal. Granting an already
// granted principal is a no-op.
func (d *Database) AddReadGrant(principal string, txn *gorm.DB) error {
	db := d.resolveDB(txn)
	result := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ReadGrant{Principal: principal})
	return result.Error
}

// RemoveReadGrant revokes read permission for a principal
func (d *Database) RemoveReadGrant(principal string, txn *gorm.DB) error {
	db := d.resolveDB(txn)
	result := db.Where("principal = ?", principal).
		Delete(&models.ReadGrant{})
	return result.Error
}

// GetReadGrants returns all principals with read permission
func (d *Database) GetReadGrants(txn *gorm.DB) ([]string, error) {
	var grants []models.ReadGrant
	db := d.resolveDB(txn)
	if result := db.Find(&grants); result.Error != nil {
		return nil, result.Error
	}
	ret := make([]string, 0, len(grants))
	for _, grant := range grants {
		ret = append(ret, grant.Principal)
	}
	return ret, nil
}

// GetPendingUpgrade retrieves the pending upgrade slot. Returns nil if the
// slot is empty.
func (d *Database) GetPendingUpgrade(
	txn *gorm.DB,
) (*models.PendingUpgrade, error) {
	var pending models.PendingUpgrade
	db := d.resolveDB(txn)
	if result := db.First(&pending); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &pending, nil
}

// SetPendingUpgrade overwrites the pending upgrade slot
func (d *Database) SetPendingUpgrade(
	pending *models.PendingUpgrade,
	txn *gorm.DB,
) error {
	db := d.resolveDB(txn)
	if result := db.Where("1 = 1").
		Delete(&models.PendingUpgrade{}); result.Error != nil {
		return result.Error
	}
	pending.ID = 0
	if result := db.Create(pending); result.Error != nil {
		return result.Error
	}
	return nil
}

// ClearPendingUpgrade empties the pending upgrade slot
func (d *Database) ClearPendingUpgrade(txn *gorm.DB) error {
	db := d.resolveDB(txn)
	result := db.Where("1 = 1").Delete(&models.PendingUpgrade{})
	return result.Error
}

// GetResource retrieves the scalar resource singleton. Returns nil if the
// store has never been initialized.
func (d *Database) GetResource(txn *gorm.DB) (*models.Resource, error) {
	var resource models.Resource
	db := d.resolveDB(txn)
	if result := db.First(&resource); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &resource, nil
}

// SetResource creates or updates the scalar resource singleton
func (d *Database) SetResource(
	resource *models.Resource,
	txn *gorm.DB,
) error {
	db := d.resolveDB(txn)
	resource.ID = 1
	if result := db.Save(resource); result.Error != nil {
		return result.Error
	}
	return nil
}

// AppendSequenceEntry appends a value to the ordered sequence resource
func (d *Database) AppendSequenceEntry(value string, txn *gorm.DB) error {
	db := d.resolveDB(txn)
	var count int64
	if result := db.Model(&models.SequenceEntry{}).
		Count(&count); result.Error != nil {
		return result.Error
	}
	entry := models.SequenceEntry{
		Position: uint64(count), //nolint:gosec
		Value:    value,
	}
	if result := db.Create(&entry); result.Error != nil {
		return result.Error
	}
	return nil
}

// GetSequenceEntries returns the ordered sequence resource values
func (d *Database) GetSequenceEntries(txn *gorm.DB) ([]string, error) {
	var entries []models.SequenceEntry
	db := d.resolveDB(txn)
	if result := db.Order("position").
		Find(&entries); result.Error != nil {
		return nil, result.Error
	}
	ret := make([]string, 0, len(entries))
	for _, entry := range entries {
		ret = append(ret, entry.Value)
	}
	return ret, nil
}
