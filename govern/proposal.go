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

package govern

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"

	"github.com/blinklabs-io/steward/database"
	"github.com/blinklabs-io/steward/database/models"
	"github.com/blinklabs-io/steward/event"
	"github.com/blinklabs-io/steward/handler"
	"github.com/blinklabs-io/steward/identity"
	"github.com/blinklabs-io/steward/store"
)

const (
	ProposalStartedEventType event.EventType = "govern.proposal_started"
	HandoffEventType         event.EventType = "govern.handoff"
)

// ProposalStartedEvent is published when voting opens on a proposal
type ProposalStartedEvent struct {
	Proposal        identity.Principal
	OriginalHandler identity.Principal
	NewHandler      identity.Principal
}

// HandoffEvent is published after a successful handler swap
type HandoffEvent struct {
	Proposal        identity.Principal
	OriginalHandler identity.Principal
	NewHandler      identity.Principal
	Height          uint64
}

var ErrNotPrepared = errors.New(
	"collaborators have not all registered the proposal",
)

var ErrExpired = errors.New("proposal window has lapsed")

var ErrTerminated = errors.New("proposal has been terminated")

var ErrAlreadyStarted = errors.New("proposal voting already opened")

var ErrAlreadyResolved = errors.New("proposal already resolved")

var ErrVotingNotOpen = errors.New("proposal voting not open")

var ErrHandlerNotLive = errors.New("handler failed liveness probe")

// ProposalConfig holds the configuration for an upgrade proposal
type ProposalConfig struct {
	PromRegistry     prometheus.Registerer
	Logger           *slog.Logger
	EventBus         *event.EventBus
	Database         *database.Database
	Store            *store.DataStore
	OriginalHandler  *handler.Handler
	NewHandler       *handler.Handler
	Owner            identity.Principal
	Id               identity.Principal
	Voters           []identity.Principal
	QuorumPercentage uint32
}

// Proposal is a one-shot, time-boxed coordinator for a quorum vote to swap
// a data store's active handler. It stores no timer of its own: liveness is
// always re-derived from the store's pending-upgrade slot, so the proposal
// and its backing store can never disagree about whether the window is
// still open.
type Proposal struct {
	logger          *slog.Logger
	eventBus        *event.EventBus
	db              *database.Database
	store           *store.DataStore
	originalHandler *handler.Handler
	newHandler      *handler.Handler
	owner           identity.Principal
	id              identity.Principal
	voters          map[identity.Principal]struct{}
	voterChoice     map[identity.Principal]bool
	quorumPct       uint32
	agreementCount  uint32
	status          Status
	metrics         struct {
		votesCast   prometheus.Counter
		resolutions *prometheus.CounterVec
	}
	mutex sync.Mutex
}

// NewProposal creates a proposal in the Preparing state. Creation fails
// unless the store is initialized, no conflicting live proposal occupies
// the store's upgrade slot and both handlers answer a liveness probe.
func NewProposal(cfg ProposalConfig) (*Proposal, error) {
	if cfg.Database == nil {
		return nil, errors.New("no database provided")
	}
	if cfg.Store == nil {
		return nil, errors.New("no data store provided")
	}
	if cfg.OriginalHandler == nil || cfg.NewHandler == nil {
		return nil, errors.New("both handlers must be provided")
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
	id := cfg.Id
	if !id.IsSet() {
		id = identity.New("proposal")
	}
	if !cfg.Store.Initialized() {
		return nil, store.ErrNotReady
	}
	originalId := cfg.OriginalHandler.Id()
	if status := cfg.Store.QueryUpgradeStatus(id, originalId); status != store.UpgradeStatusDone {
		return nil, fmt.Errorf(
			"%w: upgrade slot status %s",
			store.ErrUpgradeConflict,
			status,
		)
	}
	if !cfg.OriginalHandler.Live() || !cfg.NewHandler.Live() {
		return nil, ErrHandlerNotLive
	}
	p := &Proposal{
		logger:          logger,
		eventBus:        cfg.EventBus,
		db:              cfg.Database,
		store:           cfg.Store,
		originalHandler: cfg.OriginalHandler,
		newHandler:      cfg.NewHandler,
		owner:           cfg.Owner,
		id:              id,
		voters:          make(map[identity.Principal]struct{}),
		voterChoice:     make(map[identity.Principal]bool),
		quorumPct:       min(cfg.QuorumPercentage, 100),
		status:          StatusPreparing,
	}
	for _, voter := range cfg.Voters {
		if voter.IsSet() {
			p.voters[voter] = struct{}{}
		}
	}
	promautoFactory := promauto.With(cfg.PromRegistry)
	p.metrics.votesCast = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name:        "steward_govern_votes_cast_total",
			Help:        "total votes cast on the proposal",
			ConstLabels: prometheus.Labels{"proposal": id.String()},
		},
	)
	p.metrics.resolutions = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "steward_govern_resolutions_total",
			Help:        "proposal resolutions by outcome",
			ConstLabels: prometheus.Labels{"proposal": id.String()},
		},
		[]string{"outcome"},
	)
	if err := p.persist(nil); err != nil {
		return nil, fmt.Errorf("failed to persist proposal: %w", err)
	}
	return p, nil
}

// Id returns the proposal's own principal
func (p *Proposal) Id() identity.Principal {
	return p.id
}

// Status returns the proposal's current lifecycle state
func (p *Proposal) Status() Status {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.status
}

// AgreementCount returns the current net agreement tally
func (p *Proposal) AgreementCount() uint32 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.agreementCount
}

// persist writes the proposal's audit record. Must be called with the
// mutex held (or before the proposal is shared).
func (p *Proposal) persist(resolvedHeight *uint64) error {
	return p.db.SetProposal(
		&models.Proposal{
			ProposalId:       p.id.String(),
			Owner:            p.owner.String(),
			OriginalHandler:  p.originalHandler.Id().String(),
			NewHandler:       p.newHandler.Id().String(),
			QuorumPercentage: p.quorumPct,
			NumVoters:        uint32(len(p.voters)), //nolint:gosec
			AgreementCount:   p.agreementCount,
			Status:           p.status.String(),
			CreatedHeight:    p.store.Height(),
			ResolvedHeight:   resolvedHeight,
		},
		nil,
	)
}

// terminalErr maps a terminal status to the error surfaced by mutators
func terminalErr(status Status) error {
	switch status {
	case StatusSuccess:
		return ErrAlreadyResolved
	case StatusExpired:
		return ErrExpired
	case StatusTerminated:
		return ErrTerminated
	default:
		return nil
	}
}

// guard is the lazy expiry check run before every state-mutating call.
// While voting is open it re-derives liveness from the store; a lapsed or
// displaced registration flips the proposal to Expired irreversibly and
// fails the triggering call. Must be called with the mutex held.
func (p *Proposal) guard() error {
	if err := terminalErr(p.status); err != nil {
		return err
	}
	if p.status != StatusVoting {
		return nil
	}
	status := p.store.QueryUpgradeStatus(p.id, p.originalHandler.Id())
	if status == store.UpgradeStatusInProgress {
		return nil
	}
	p.status = StatusExpired
	if err := p.persist(nil); err != nil {
		p.logger.Warn(
			"failed to persist expired proposal",
			"component", "govern",
			"proposal", p.id.String(),
			"error", err,
		)
	}
	p.metrics.resolutions.WithLabelValues(StatusExpired.String()).Inc()
	p.logger.Info(
		"proposal expired",
		"component", "govern",
		"proposal", p.id.String(),
		"slot_status", status.String(),
	)
	return ErrExpired
}

// Start opens voting. Owner-only, one-shot: it requires that the store has
// registered this proposal as its pending upgrader and that both handlers
// have registered it as their pending upgrader. This ordering dependency is
// intentional: it prevents a vote on a proposal no one can execute.
func (p *Proposal) Start(caller identity.Principal) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if err := terminalErr(p.status); err != nil {
		return err
	}
	if p.status != StatusPreparing {
		return ErrAlreadyStarted
	}
	if caller != p.owner {
		return store.ErrPermission
	}
	originalId := p.originalHandler.Id()
	if status := p.store.QueryUpgradeStatus(p.id, originalId); status != store.UpgradeStatusInProgress {
		return fmt.Errorf("%w: upgrade slot status %s", ErrNotPrepared, status)
	}
	if !p.originalHandler.IsPreparedForUpgrade(p.id) ||
		!p.newHandler.IsPreparedForUpgrade(p.id) {
		return fmt.Errorf("%w: handler registration missing", ErrNotPrepared)
	}
	p.status = StatusVoting
	if err := p.persist(nil); err != nil {
		p.status = StatusPreparing
		return err
	}
	p.logger.Info(
		"proposal voting opened",
		"component", "govern",
		"proposal", p.id.String(),
		"voters", len(p.voters),
		"quorum_pct", p.quorumPct,
	)
	if p.eventBus != nil {
		p.eventBus.PublishAsync(
			ProposalStartedEventType,
			event.NewEvent(
				ProposalStartedEventType,
				ProposalStartedEvent{
					Proposal:        p.id,
					OriginalHandler: originalId,
					NewHandler:      p.newHandler.Id(),
				},
			),
		)
	}
	return nil
}

// AddVoters registers additional voters. Owner-only; identities already
// registered are silently ignored.
func (p *Proposal) AddVoters(
	caller identity.Principal,
	voters ...identity.Principal,
) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if err := p.guard(); err != nil {
		return err
	}
	if caller != p.owner {
		return store.ErrPermission
	}
	added := false
	for _, voter := range voters {
		if !voter.IsSet() {
			continue
		}
		if _, ok := p.voters[voter]; ok {
			continue
		}
		p.voters[voter] = struct{}{}
		added = true
	}
	if !added {
		return nil
	}
	return p.persist(nil)
}

// Vote records a registered voter's choice. A repeat of the stored choice
// is a no-op; switching to agree increments the tally and switching away
// decrements it, so alternating votes never drift the count.
func (p *Proposal) Vote(caller identity.Principal, choice bool) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if err := p.guard(); err != nil {
		return err
	}
	if p.status != StatusVoting {
		return ErrVotingNotOpen
	}
	if _, ok := p.voters[caller]; !ok {
		return store.ErrPermission
	}
	previous, voted := p.voterChoice[caller]
	if voted && previous == choice {
		return nil
	}
	err := p.db.Transaction(func(txn *gorm.DB) error {
		if err := p.db.SetVote(
			&models.Vote{
				ProposalId:    p.id.String(),
				Voter:         caller.String(),
				Choice:        choice,
				UpdatedHeight: p.store.Height(),
			},
			txn,
		); err != nil {
			return err
		}
		count := p.agreementCount
		if choice {
			count++
		} else if voted {
			count--
		}
		return p.db.SetProposal(
			&models.Proposal{
				ProposalId:       p.id.String(),
				Owner:            p.owner.String(),
				OriginalHandler:  p.originalHandler.Id().String(),
				NewHandler:       p.newHandler.Id().String(),
				QuorumPercentage: p.quorumPct,
				NumVoters:        uint32(len(p.voters)), //nolint:gosec
				AgreementCount:   count,
				Status:           p.status.String(),
				CreatedHeight:    p.store.Height(),
			},
			txn,
		)
	})
	if err != nil {
		return err
	}
	p.voterChoice[caller] = choice
	if choice {
		p.agreementCount++
	} else if voted {
		p.agreementCount--
	}
	p.metrics.votesCast.Inc()
	return nil
}

// SetQuorumPercentage overwrites the quorum percentage, clamped to 100.
// Owner-only; already-cast votes are unaffected.
func (p *Proposal) SetQuorumPercentage(
	caller identity.Principal,
	pct uint32,
) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if err := p.guard(); err != nil {
		return err
	}
	if caller != p.owner {
		return store.ErrPermission
	}
	p.quorumPct = min(pct, 100)
	return p.persist(nil)
}

// Resolve tallies the vote and performs the handler swap if the quorum is
// exceeded. Anyone may call it. Ties do not pass: the net agreement must
// be strictly greater than floor(numVoters * quorumPercentage / 100). A
// short tally leaves the proposal in Voting; once Success is reached the
// call is idempotent.
func (p *Proposal) Resolve(caller identity.Principal) (Status, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.status == StatusSuccess {
		return StatusSuccess, nil
	}
	if err := p.guard(); err != nil {
		return p.status, err
	}
	if p.status != StatusVoting {
		return p.status, ErrVotingNotOpen
	}
	threshold := uint32(len(p.voters)) * p.quorumPct / 100 //nolint:gosec
	if p.agreementCount <= threshold {
		return p.status, nil
	}
	originalId := p.originalHandler.Id()
	newId := p.newHandler.Id()
	if err := p.store.PerformHandoff(p.id, newId, originalId); err != nil {
		return p.status, err
	}
	if err := p.originalHandler.Retire(p.id); err != nil {
		// Handoff already committed; the swap stands even if the old
		// handler could not be retired cleanly
		p.logger.Warn(
			"failed to retire original handler",
			"component", "govern",
			"proposal", p.id.String(),
			"error", err,
		)
	}
	p.status = StatusSuccess
	height := p.store.Height()
	if err := p.persist(&height); err != nil {
		p.logger.Warn(
			"failed to persist resolved proposal",
			"component", "govern",
			"proposal", p.id.String(),
			"error", err,
		)
	}
	p.metrics.resolutions.WithLabelValues(StatusSuccess.String()).Inc()
	p.logger.Info(
		"proposal resolved",
		"component", "govern",
		"proposal", p.id.String(),
		"new_handler", newId.String(),
		"agreements", p.agreementCount,
		"threshold", threshold,
	)
	if p.eventBus != nil {
		p.eventBus.PublishAsync(
			HandoffEventType,
			event.NewEvent(
				HandoffEventType,
				HandoffEvent{
					Proposal:        p.id,
					OriginalHandler: originalId,
					NewHandler:      newId,
					Height:          height,
				},
			),
		)
	}
	return StatusSuccess, nil
}

// Terminate marks the proposal inert. Owner-only, allowed from any
// non-terminal state.
func (p *Proposal) Terminate(caller identity.Principal) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if err := terminalErr(p.status); err != nil {
		return err
	}
	if caller != p.owner {
		return store.ErrPermission
	}
	p.status = StatusTerminated
	if err := p.persist(nil); err != nil {
		p.logger.Warn(
			"failed to persist terminated proposal",
			"component", "govern",
			"proposal", p.id.String(),
			"error", err,
		)
	}
	p.metrics.resolutions.WithLabelValues(StatusTerminated.String()).Inc()
	return nil
}
