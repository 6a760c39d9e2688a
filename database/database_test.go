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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/blinklabs-io/steward/database/models"
)

func setupTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := New(&Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close() //nolint:errcheck
	})
	return db
}

func TestStoreStateRoundTrip(t *testing.T) {
	db := setupTestDatabase(t)

	// Initially no state
	state, err := db.GetStoreState(nil)
	require.NoError(t, err)
	assert.Nil(t, state)

	err = db.SetStoreState(&models.StoreState{
		Owner:          "owner-1",
		ActiveHandler:  "handler-1",
		Initialized:    true,
		ProposalPeriod: 100,
	}, nil)
	require.NoError(t, err)

	state, err = db.GetStoreState(nil)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "owner-1", state.Owner)
	assert.Equal(t, "handler-1", state.ActiveHandler)
	assert.True(t, state.Initialized)
	assert.Equal(t, uint64(100), state.ProposalPeriod)

	// A second write replaces the singleton
	err = db.SetStoreState(&models.StoreState{
		Owner:          "owner-1",
		ActiveHandler:  "handler-2",
		Initialized:    true,
		ProposalPeriod: 100,
	}, nil)
	require.NoError(t, err)
	state, err = db.GetStoreState(nil)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "handler-2", state.ActiveHandler)
}

func TestReadGrants(t *testing.T) {
	db := setupTestDatabase(t)

	require.NoError(t, db.AddReadGrant("principal-1", nil))
	require.NoError(t, db.AddReadGrant("principal-2", nil))
	// Adding the same grant twice is a no-op
	require.NoError(t, db.AddReadGrant("principal-1", nil))

	grants, err := db.GetReadGrants(nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"principal-1", "principal-2"}, grants)

	require.NoError(t, db.RemoveReadGrant("principal-1", nil))
	grants, err = db.GetReadGrants(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"principal-2"}, grants)
}

func TestPendingUpgradeSlot(t *testing.T) {
	db := setupTestDatabase(t)

	pending, err := db.GetPendingUpgrade(nil)
	require.NoError(t, err)
	assert.Nil(t, pending)

	err = db.SetPendingUpgrade(&models.PendingUpgrade{
		Upgrader:    "proposal-1",
		StartHeight: 10,
		Period:      100,
	}, nil)
	require.NoError(t, err)

	// Setting again replaces the slot rather than stacking
	err = db.SetPendingUpgrade(&models.PendingUpgrade{
		Upgrader:    "proposal-2",
		StartHeight: 20,
		Period:      100,
	}, nil)
	require.NoError(t, err)
	pending, err = db.GetPendingUpgrade(nil)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "proposal-2", pending.Upgrader)
	assert.Equal(t, uint64(20), pending.StartHeight)

	require.NoError(t, db.ClearPendingUpgrade(nil))
	pending, err = db.GetPendingUpgrade(nil)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestSequenceEntries(t *testing.T) {
	db := setupTestDatabase(t)

	entries, err := db.GetSequenceEntries(nil)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, db.AppendSequenceEntry("one", nil))
	require.NoError(t, db.AppendSequenceEntry("two", nil))
	require.NoError(t, db.AppendSequenceEntry("three", nil))
	entries, err = db.GetSequenceEntries(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, entries)
}

func TestBlobRecords(t *testing.T) {
	db := setupTestDatabase(t)

	_, err := db.GetRecord("ns", "missing")
	require.ErrorIs(t, err, ErrRecordNotFound)

	require.NoError(t, db.SetRecord("ns", "key-1", []byte("value-1")))
	require.NoError(t, db.SetRecord("ns", "key-2", []byte("value-2")))
	require.NoError(t, db.SetRecord("other", "key-3", []byte("value-3")))

	value, err := db.GetRecord("ns", "key-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("value-1"), value)

	// Keys are scoped per namespace
	keys, err := db.RecordKeys("ns")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"key-1", "key-2"}, keys)

	require.NoError(t, db.DeleteRecord("ns", "key-1"))
	_, err = db.GetRecord("ns", "key-1")
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestProposalArchive(t *testing.T) {
	db := setupTestDatabase(t)

	_, err := db.GetProposal("proposal-1", nil)
	require.ErrorIs(t, err, models.ErrProposalNotFound)

	err = db.SetProposal(&models.Proposal{
		ProposalId:       "proposal-1",
		Owner:            "owner-1",
		OriginalHandler:  "handler-1",
		NewHandler:       "handler-2",
		QuorumPercentage: 50,
		NumVoters:        3,
		Status:           "preparing",
		CreatedHeight:    10,
	}, nil)
	require.NoError(t, err)

	// Updates keep the original created height
	resolvedHeight := uint64(50)
	err = db.SetProposal(&models.Proposal{
		ProposalId:       "proposal-1",
		Owner:            "owner-1",
		OriginalHandler:  "handler-1",
		NewHandler:       "handler-2",
		QuorumPercentage: 50,
		NumVoters:        3,
		AgreementCount:   2,
		Status:           "success",
		CreatedHeight:    50,
		ResolvedHeight:   &resolvedHeight,
	}, nil)
	require.NoError(t, err)

	proposal, err := db.GetProposal("proposal-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "success", proposal.Status)
	assert.Equal(t, uint32(2), proposal.AgreementCount)
	assert.Equal(t, uint64(10), proposal.CreatedHeight)
	require.NotNil(t, proposal.ResolvedHeight)
	assert.Equal(t, uint64(50), *proposal.ResolvedHeight)
}

func TestVoteUpsert(t *testing.T) {
	db := setupTestDatabase(t)

	require.NoError(t, db.SetVote(&models.Vote{
		ProposalId:    "proposal-1",
		Voter:         "voter-1",
		Choice:        true,
		UpdatedHeight: 10,
	}, nil))
	require.NoError(t, db.SetVote(&models.Vote{
		ProposalId:    "proposal-1",
		Voter:         "voter-2",
		Choice:        false,
		UpdatedHeight: 11,
	}, nil))
	// Same voter on another proposal is a separate row
	require.NoError(t, db.SetVote(&models.Vote{
		ProposalId:    "proposal-2",
		Voter:         "voter-1",
		Choice:        true,
		UpdatedHeight: 12,
	}, nil))
	// Re-voting updates in place
	require.NoError(t, db.SetVote(&models.Vote{
		ProposalId:    "proposal-1",
		Voter:         "voter-1",
		Choice:        false,
		UpdatedHeight: 13,
	}, nil))

	votes, err := db.GetVotesByProposal("proposal-1", nil)
	require.NoError(t, err)
	require.Len(t, votes, 2)
	assert.Equal(t, "voter-1", votes[0].Voter)
	assert.False(t, votes[0].Choice)
	assert.Equal(t, uint64(13), votes[0].UpdatedHeight)
	assert.Equal(t, "voter-2", votes[1].Voter)
}

func TestTransactionRollback(t *testing.T) {
	db := setupTestDatabase(t)

	// A failing transaction leaves no partial writes behind
	err := db.Transaction(func(txn *gorm.DB) error {
		if err := db.AddReadGrant("principal-1", txn); err != nil {
			return err
		}
		return errors.New("forced rollback")
	})
	require.Error(t, err)

	grants, err := db.GetReadGrants(nil)
	require.NoError(t, err)
	assert.Empty(t, grants)
}
