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

package models

// StoreState is the singleton row describing a data store: its owner, the
// currently authorized writer, the one-shot initialization flag and the
// configured proposal period.
type StoreState struct {
	ID             uint   `gorm:"primarykey"`
	Owner          string `gorm:"size:64;not null"`
	ActiveHandler  string `gorm:"size:64"`
	Initialized    bool   `gorm:"not null"`
	ProposalPeriod uint64 `gorm:"not null"`
}

// TableName returns the table name
func (StoreState) TableName() string {
	return "store_state"
}

// ReadGrant records a principal permitted to read store resources.
type ReadGrant struct {
	ID        uint   `gorm:"primarykey"`
	Principal string `gorm:"uniqueIndex;size:64;not null"`
}

// TableName returns the table name
func (ReadGrant) TableName() string {
	return "read_grant"
}

// PendingUpgrade is the single upgrade-intent slot: at most one row exists
// at a time. A row past StartHeight+Period is expired but not removed until
// a successful handoff or a fresh registration overwrites it.
type PendingUpgrade struct {
	ID          uint   `gorm:"primarykey"`
	Upgrader    string `gorm:"size:64;not null"`
	StartHeight uint64 `gorm:"not null"`
	Period      uint64 `gorm:"not null"`
}

// TableName returns the table name
func (PendingUpgrade) TableName() string {
	return "pending_upgrade"
}
