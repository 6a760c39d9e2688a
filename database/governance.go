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

// GetProposal retrieves a proposal audit record by proposal identity.
// Returns models.ErrProposalNotFound if no record exists.
func (d *Database) GetProposal(
	proposalId string,
	txn *gorm.DB,
) (*models.Proposal, error) {
	var proposal models.Proposal
	db := d.resolveDB(txn)
	if result := db.Where(
		"proposal_id = ?",
		proposalId,
	).First(&proposal); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrProposalNotFound
		}
		return nil, result.Error
	}
	return &proposal, nil
}

// SetProposal creates or updates a proposal audit record
func (d *Database) SetProposal(
	proposal *models.Proposal,
	txn *gorm.DB,
) error {
	db := d.resolveDB(txn)
	onConflict := clause.OnConflict{
		Columns: []clause.Column{
			{Name: "proposal_id"},
		},
		// created_height is NOT updated on conflict: it records when the
		// proposal was first persisted
		DoUpdates: clause.AssignmentColumns([]string{
			"quorum_percentage",
			"num_voters",
			"agreement_count",
			"status",
			"resolved_height",
		}),
	}
	if result := db.Clauses(onConflict).
		Create(proposal); result.Error != nil {
		return result.Error
	}
	return nil
}

// SetVote creates or updates a voter's current choice on a proposal
func (d *Database) SetVote(vote *models.Vote, txn *gorm.DB) error {
	db := d.resolveDB(txn)
	onConflict := clause.OnConflict{
		Columns: []clause.Column{
			{Name: "proposal_id"},
			{Name: "voter"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"choice",
			"updated_height",
		}),
	}
	if result := db.Clauses(onConflict).Create(vote); result.Error != nil {
		return result.Error
	}
	return nil
}

// GetVotesByProposal returns all votes recorded for a proposal
func (d *Database) GetVotesByProposal(
	proposalId string,
	txn *gorm.DB,
) ([]*models.Vote, error) {
	var votes []*models.Vote
	db := d.resolveDB(txn)
	if result := db.Where(
		"proposal_id = ?",
		proposalId,
	).Order("voter").Find(&votes); result.Error != nil {
		return nil, result.Error
	}
	return votes, nil
}
