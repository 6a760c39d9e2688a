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

package govern_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/steward/clock"
	"github.com/blinklabs-io/steward/database"
	"github.com/blinklabs-io/steward/event"
	"github.com/blinklabs-io/steward/govern"
	"github.com/blinklabs-io/steward/handler"
	"github.com/blinklabs-io/steward/identity"
	"github.com/blinklabs-io/steward/store"
)

type proposalFixture struct {
	db       *database.Database
	store    *store.DataStore
	clk      *clock.Manual
	eventBus *event.EventBus
	owner    identity.Principal
	original *handler.Handler
	next     *handler.Handler
	voters   []identity.Principal
	proposal *govern.Proposal
}

// setupProposal builds an initialized store with two live handlers and a
// proposal in the Preparing state
func setupProposal(
	t *testing.T,
	numVoters int,
	quorumPct uint32,
) *proposalFixture {
	t.Helper()
	db, err := database.New(&database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close() //nolint:errcheck
	})
	eventBus := event.NewEventBus(nil, nil)
	t.Cleanup(eventBus.Stop)
	owner := identity.New("owner")
	clk := clock.NewManual(0)
	d, err := store.New(store.DataStoreConfig{
		Database:       db,
		Clock:          clk,
		Owner:          owner,
		ProposalPeriod: 100,
	})
	require.NoError(t, err)
	original, err := handler.New(handler.HandlerConfig{
		EventBus: eventBus,
		Store:    d,
		Owner:    owner,
	})
	require.NoError(t, err)
	require.NoError(t, d.SetActiveHandler(owner, original.Id()))
	require.NoError(t, original.Initialize(owner, store.InitPayload{
		Label:   "test",
		Counter: 1,
	}))
	next, err := handler.New(handler.HandlerConfig{
		EventBus: eventBus,
		Store:    d,
		Owner:    owner,
	})
	require.NoError(t, err)
	voters := make([]identity.Principal, 0, numVoters)
	for range numVoters {
		voters = append(voters, identity.New("voter"))
	}
	proposal, err := govern.NewProposal(govern.ProposalConfig{
		PromRegistry:     prometheus.NewRegistry(),
		EventBus:         eventBus,
		Database:         db,
		Store:            d,
		OriginalHandler:  original,
		NewHandler:       next,
		Owner:            owner,
		Voters:           voters,
		QuorumPercentage: quorumPct,
	})
	require.NoError(t, err)
	return &proposalFixture{
		db:       db,
		store:    d,
		clk:      clk,
		eventBus: eventBus,
		owner:    owner,
		original: original,
		next:     next,
		voters:   voters,
		proposal: proposal,
	}
}

// openVoting registers the proposal with the store and both handlers, then
// opens voting
func openVoting(t *testing.T, f *proposalFixture) {
	t.Helper()
	id := f.proposal.Id()
	require.NoError(t, f.store.RegisterUpgradeIntent(f.owner, id))
	require.NoError(t, f.original.RegisterPendingUpgrader(f.owner, id))
	require.NoError(t, f.next.RegisterPendingUpgrader(f.owner, id))
	require.NoError(t, f.proposal.Start(f.owner))
	require.Equal(t, govern.StatusVoting, f.proposal.Status())
}

func waitForEvent(t *testing.T, evtCh <-chan event.Event) event.Event {
	t.Helper()
	select {
	case evt := <-evtCh:
		return evt
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event")
		return event.Event{}
	}
}

func TestNewProposalRequiresInitializedStore(t *testing.T) {
	db, err := database.New(&database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close() //nolint:errcheck
	})
	owner := identity.New("owner")
	d, err := store.New(store.DataStoreConfig{
		Database: db,
		Owner:    owner,
	})
	require.NoError(t, err)
	original, err := handler.New(handler.HandlerConfig{Store: d, Owner: owner})
	require.NoError(t, err)
	next, err := handler.New(handler.HandlerConfig{Store: d, Owner: owner})
	require.NoError(t, err)

	_, err = govern.NewProposal(govern.ProposalConfig{
		PromRegistry:    prometheus.NewRegistry(),
		Database:        db,
		Store:           d,
		OriginalHandler: original,
		NewHandler:      next,
		Owner:           owner,
	})
	require.ErrorIs(t, err, store.ErrNotReady)
}

func TestNewProposalRequiresEmptySlot(t *testing.T) {
	f := setupProposal(t, 3, 50)

	// The first proposal occupies the slot, a rival cannot be created
	require.NoError(
		t,
		f.store.RegisterUpgradeIntent(f.owner, f.proposal.Id()),
	)
	_, err := govern.NewProposal(govern.ProposalConfig{
		PromRegistry:    prometheus.NewRegistry(),
		Database:        f.db,
		Store:           f.store,
		OriginalHandler: f.original,
		NewHandler:      f.next,
		Owner:           f.owner,
	})
	require.ErrorIs(t, err, store.ErrUpgradeConflict)
}

func TestNewProposalRequiresLiveHandlers(t *testing.T) {
	f := setupProposal(t, 3, 50)
	require.NoError(t, f.next.Retire(f.owner))

	_, err := govern.NewProposal(govern.ProposalConfig{
		PromRegistry:    prometheus.NewRegistry(),
		Database:        f.db,
		Store:           f.store,
		OriginalHandler: f.original,
		NewHandler:      f.next,
		Owner:           f.owner,
	})
	require.ErrorIs(t, err, govern.ErrHandlerNotLive)
}

func TestStartRequiresRegistrations(t *testing.T) {
	f := setupProposal(t, 3, 50)

	// No upgrade intent registered yet
	err := f.proposal.Start(f.owner)
	require.ErrorIs(t, err, govern.ErrNotPrepared)

	// Intent registered but handlers have not recognized the proposal
	require.NoError(
		t,
		f.store.RegisterUpgradeIntent(f.owner, f.proposal.Id()),
	)
	err = f.proposal.Start(f.owner)
	require.ErrorIs(t, err, govern.ErrNotPrepared)

	// Only the owner may open voting
	require.NoError(
		t,
		f.original.RegisterPendingUpgrader(f.owner, f.proposal.Id()),
	)
	require.NoError(
		t,
		f.next.RegisterPendingUpgrader(f.owner, f.proposal.Id()),
	)
	err = f.proposal.Start(identity.New("stranger"))
	require.ErrorIs(t, err, store.ErrPermission)

	require.NoError(t, f.proposal.Start(f.owner))
	err = f.proposal.Start(f.owner)
	require.ErrorIs(t, err, govern.ErrAlreadyStarted)
}

func TestStartPublishesEvent(t *testing.T) {
	f := setupProposal(t, 3, 50)
	_, evtCh := f.eventBus.Subscribe(govern.ProposalStartedEventType)
	openVoting(t, f)

	evt := waitForEvent(t, evtCh)
	started, ok := evt.Data.(govern.ProposalStartedEvent)
	require.True(t, ok)
	assert.Equal(t, f.proposal.Id(), started.Proposal)
	assert.Equal(t, f.original.Id(), started.OriginalHandler)
	assert.Equal(t, f.next.Id(), started.NewHandler)
}

func TestVoteGating(t *testing.T) {
	f := setupProposal(t, 3, 50)

	// Voting is not open during preparation
	err := f.proposal.Vote(f.voters[0], true)
	require.ErrorIs(t, err, govern.ErrVotingNotOpen)

	openVoting(t, f)

	err = f.proposal.Vote(identity.New("stranger"), true)
	require.ErrorIs(t, err, store.ErrPermission)

	require.NoError(t, f.proposal.Vote(f.voters[0], true))
	assert.Equal(t, uint32(1), f.proposal.AgreementCount())
}

func TestVoteTally(t *testing.T) {
	f := setupProposal(t, 3, 50)
	openVoting(t, f)

	// Repeating the stored choice never drifts the tally
	require.NoError(t, f.proposal.Vote(f.voters[0], true))
	require.NoError(t, f.proposal.Vote(f.voters[0], true))
	assert.Equal(t, uint32(1), f.proposal.AgreementCount())

	// Switching away decrements, switching back increments
	require.NoError(t, f.proposal.Vote(f.voters[0], false))
	assert.Equal(t, uint32(0), f.proposal.AgreementCount())
	require.NoError(t, f.proposal.Vote(f.voters[0], true))
	assert.Equal(t, uint32(1), f.proposal.AgreementCount())

	// A fresh disagreement stores the choice without touching the tally
	require.NoError(t, f.proposal.Vote(f.voters[1], false))
	assert.Equal(t, uint32(1), f.proposal.AgreementCount())
}

func TestResolveQuorum(t *testing.T) {
	f := setupProposal(t, 3, 50)
	_, evtCh := f.eventBus.Subscribe(govern.HandoffEventType)
	openVoting(t, f)

	// floor(3*50/100) = 1, so a single agreement is a tie and does not pass
	require.NoError(t, f.proposal.Vote(f.voters[0], true))
	status, err := f.proposal.Resolve(f.voters[0])
	require.NoError(t, err)
	assert.Equal(t, govern.StatusVoting, status)
	assert.Equal(t, f.original.Id(), f.store.ActiveHandler())

	// A second agreement exceeds the threshold
	require.NoError(t, f.proposal.Vote(f.voters[1], true))
	status, err = f.proposal.Resolve(f.voters[1])
	require.NoError(t, err)
	assert.Equal(t, govern.StatusSuccess, status)
	assert.Equal(t, f.next.Id(), f.store.ActiveHandler())
	assert.False(t, f.original.Live())
	assert.True(t, f.next.Live())
	assert.Nil(t, f.store.PendingUpgrade())

	evt := waitForEvent(t, evtCh)
	handoff, ok := evt.Data.(govern.HandoffEvent)
	require.True(t, ok)
	assert.Equal(t, f.proposal.Id(), handoff.Proposal)
	assert.Equal(t, f.next.Id(), handoff.NewHandler)

	// The swapped-in handler owns the state now
	label, err := f.next.Label()
	require.NoError(t, err)
	assert.Equal(t, "test", label)
	_, err = f.original.Label()
	require.ErrorIs(t, err, handler.ErrAlreadyRetired)
}

func TestResolveIdempotentAfterSuccess(t *testing.T) {
	f := setupProposal(t, 1, 0)
	openVoting(t, f)
	require.NoError(t, f.proposal.Vote(f.voters[0], true))

	status, err := f.proposal.Resolve(f.voters[0])
	require.NoError(t, err)
	require.Equal(t, govern.StatusSuccess, status)

	status, err = f.proposal.Resolve(identity.New("stranger"))
	require.NoError(t, err)
	assert.Equal(t, govern.StatusSuccess, status)

	// Mutations after success report resolution
	err = f.proposal.Vote(f.voters[0], false)
	require.ErrorIs(t, err, govern.ErrAlreadyResolved)
}

func TestUnanimousQuorumNeverPasses(t *testing.T) {
	// With quorum at 100 percent the tally can never strictly exceed the
	// threshold, even unanimously
	f := setupProposal(t, 2, 100)
	openVoting(t, f)
	require.NoError(t, f.proposal.Vote(f.voters[0], true))
	require.NoError(t, f.proposal.Vote(f.voters[1], true))

	status, err := f.proposal.Resolve(f.owner)
	require.NoError(t, err)
	assert.Equal(t, govern.StatusVoting, status)
}

func TestSetQuorumPercentage(t *testing.T) {
	f := setupProposal(t, 3, 50)
	openVoting(t, f)

	err := f.proposal.SetQuorumPercentage(identity.New("stranger"), 10)
	require.ErrorIs(t, err, store.ErrPermission)

	// Values above 100 clamp
	require.NoError(t, f.proposal.SetQuorumPercentage(f.owner, 150))
	require.NoError(t, f.proposal.Vote(f.voters[0], true))
	require.NoError(t, f.proposal.Vote(f.voters[1], true))
	require.NoError(t, f.proposal.Vote(f.voters[2], true))
	status, err := f.proposal.Resolve(f.owner)
	require.NoError(t, err)
	assert.Equal(t, govern.StatusVoting, status)

	// Dropping the quorum lets the same tally pass
	require.NoError(t, f.proposal.SetQuorumPercentage(f.owner, 50))
	status, err = f.proposal.Resolve(f.owner)
	require.NoError(t, err)
	assert.Equal(t, govern.StatusSuccess, status)
}

func TestAddVoters(t *testing.T) {
	f := setupProposal(t, 1, 50)
	openVoting(t, f)
	extra := identity.New("voter")

	err := f.proposal.AddVoters(identity.New("stranger"), extra)
	require.ErrorIs(t, err, store.ErrPermission)

	// Duplicates are ignored silently
	require.NoError(t, f.proposal.AddVoters(f.owner, f.voters[0]))
	require.NoError(t, f.proposal.AddVoters(f.owner, extra))
	require.NoError(t, f.proposal.Vote(extra, true))

	// floor(2*50/100) = 1, one agreement ties
	status, err := f.proposal.Resolve(f.owner)
	require.NoError(t, err)
	assert.Equal(t, govern.StatusVoting, status)
	require.NoError(t, f.proposal.Vote(f.voters[0], true))
	status, err = f.proposal.Resolve(f.owner)
	require.NoError(t, err)
	assert.Equal(t, govern.StatusSuccess, status)
}

func TestProposalExpiry(t *testing.T) {
	f := setupProposal(t, 3, 50)
	openVoting(t, f)
	require.NoError(t, f.proposal.Vote(f.voters[0], true))

	// One height past the window every mutation fails and the state flip
	// is irreversible
	f.clk.Set(101)
	err := f.proposal.Vote(f.voters[1], true)
	require.ErrorIs(t, err, govern.ErrExpired)
	assert.Equal(t, govern.StatusExpired, f.proposal.Status())

	_, err = f.proposal.Resolve(f.owner)
	require.ErrorIs(t, err, govern.ErrExpired)
	err = f.proposal.Terminate(f.owner)
	require.ErrorIs(t, err, govern.ErrExpired)

	// The store keeps its handler and the old handler stays live
	assert.Equal(t, f.original.Id(), f.store.ActiveHandler())
	assert.True(t, f.original.Live())
}

func TestProposalDisplacedByNewIntent(t *testing.T) {
	f := setupProposal(t, 3, 50)
	openVoting(t, f)

	// A lapsed window lets the owner hand the slot to someone else; the
	// displaced proposal expires on its next mutation
	f.clk.Set(101)
	rival := identity.New("proposal")
	require.NoError(t, f.store.RegisterUpgradeIntent(f.owner, rival))
	err := f.proposal.Vote(f.voters[0], true)
	require.ErrorIs(t, err, govern.ErrExpired)
	assert.Equal(t, govern.StatusExpired, f.proposal.Status())
}

func TestTerminate(t *testing.T) {
	f := setupProposal(t, 3, 50)
	openVoting(t, f)

	err := f.proposal.Terminate(identity.New("stranger"))
	require.ErrorIs(t, err, store.ErrPermission)

	require.NoError(t, f.proposal.Terminate(f.owner))
	assert.Equal(t, govern.StatusTerminated, f.proposal.Status())

	err = f.proposal.Terminate(f.owner)
	require.ErrorIs(t, err, govern.ErrTerminated)
	err = f.proposal.Vote(f.voters[0], true)
	require.ErrorIs(t, err, govern.ErrTerminated)
	_, err = f.proposal.Resolve(f.owner)
	require.ErrorIs(t, err, govern.ErrTerminated)
}

func TestProposalArchive(t *testing.T) {
	f := setupProposal(t, 3, 50)
	openVoting(t, f)
	require.NoError(t, f.proposal.Vote(f.voters[0], true))
	require.NoError(t, f.proposal.Vote(f.voters[1], true))
	f.clk.Set(42)
	_, err := f.proposal.Resolve(f.owner)
	require.NoError(t, err)

	archived, err := f.db.GetProposal(f.proposal.Id().String(), nil)
	require.NoError(t, err)
	assert.Equal(t, govern.StatusSuccess.String(), archived.Status)
	assert.Equal(t, uint32(2), archived.AgreementCount)
	assert.Equal(t, uint32(3), archived.NumVoters)
	require.NotNil(t, archived.ResolvedHeight)
	assert.Equal(t, uint64(42), *archived.ResolvedHeight)

	votes, err := f.db.GetVotesByProposal(f.proposal.Id().String(), nil)
	require.NoError(t, err)
	assert.Len(t, votes, 2)
}
