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

import "errors"

var ErrProposalNotFound = errors.New("proposal not found")

// Proposal is the persisted audit record of an upgrade proposal. Proposals
// have a lifecycle: preparing -> voting -> success, expired or terminated.
type Proposal struct {
	ID               uint   `gorm:"primarykey"`
	ProposalId       string `gorm:"uniqueIndex;size:64;not null"`
	Owner            string `gorm:"size:64;not null"`
	OriginalHandler  string `gorm:"size:64;not null"`
	NewHandler       string `gorm:"size:64;not null"`
	QuorumPercentage uint32 `gorm:"not null"`
	NumVoters        uint32 `gorm:"not null"`
	AgreementCount   uint32 `gorm:"not null"`
	Status           string `gorm:"size:16;index;not null"`
	CreatedHeight    uint64 `gorm:"not null"`
	ResolvedHeight   *uint64
}

// TableName returns the table name
func (Proposal) TableName() string {
	return "proposal"
}

// Vote is one voter's current choice on a proposal. A voter has at most one
// row per proposal; changing a vote updates the row in place.
type Vote struct {
	ID            uint   `gorm:"primarykey"`
	ProposalId    string `gorm:"uniqueIndex:idx_vote_proposal_voter,priority:1;size:64;not null"`
	Voter         string `gorm:"uniqueIndex:idx_vote_proposal_voter,priority:2;size:64;not null"`
	Choice        bool   `gorm:"not null"`
	UpdatedHeight uint64 `gorm:"not null"`
}

// TableName returns the table name
func (Vote) TableName() string {
	return "vote"
}
