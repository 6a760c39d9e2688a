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

package steward

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blinklabs-io/steward/clock"
	"github.com/blinklabs-io/steward/database"
	"github.com/blinklabs-io/steward/event"
	"github.com/blinklabs-io/steward/govern"
	"github.com/blinklabs-io/steward/handler"
	"github.com/blinklabs-io/steward/identity"
	"github.com/blinklabs-io/steward/store"
)

// Steward wires together the persistence, event and governance components
// around one governed data store. It is the deployer: its owner principal
// owns the store, every handler it creates and every proposal it runs.
type Steward struct {
	config        Config
	db            *database.Database
	eventBus      *event.EventBus
	dataStore     *store.DataStore
	clock         clock.Source
	owner         identity.Principal
	metricsServer *http.Server
	shutdownFuncs []func(context.Context) error
	done          chan struct{}
	shutdownOnce  sync.Once
}

// New creates a new Steward with the given config
func New(cfg Config) (*Steward, error) {
	s := &Steward{
		config: cfg,
		owner:  cfg.owner,
		clock:  cfg.clock,
		done:   make(chan struct{}),
	}
	if !s.owner.IsSet() {
		s.owner = identity.New("owner")
	}
	if s.clock == nil {
		s.clock = clock.NewManual(0)
	}
	return s, nil
}

// Start opens the database and builds the data store and event bus. It
// returns once everything is ready; use Run to also block until Stop.
func (s *Steward) Start() error {
	if s.config.tracing {
		if err := s.setupTracing(); err != nil {
			return err
		}
	}
	db, err := database.New(
		&database.Config{
			DataDir:      s.config.dataDir,
			Logger:       s.config.logger,
			PromRegistry: s.config.promRegistry,
			Tracing:      s.config.tracing,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db
	s.eventBus = event.NewEventBus(s.config.promRegistry, s.config.logger)
	dataStore, err := store.New(
		store.DataStoreConfig{
			Logger:         s.config.logger,
			Database:       s.db,
			Clock:          s.clock,
			Owner:          s.owner,
			ProposalPeriod: s.config.proposalPeriod,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to load data store: %w", err)
	}
	s.dataStore = dataStore
	if s.config.metricsPort > 0 {
		s.startMetricsListener()
	}
	return nil
}

// Run starts the Steward and blocks until Stop is called
func (s *Steward) Run() error {
	if err := s.Start(); err != nil {
		return err
	}
	<-s.done
	return nil
}

// Stop shuts everything down gracefully. Stop is idempotent.
func (s *Steward) Stop() error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.shutdown()
	})
	return err
}

func (s *Steward) shutdown() error {
	shutdownTimeout := 30 * time.Second
	if s.config.shutdownTimeout > 0 {
		shutdownTimeout = s.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error
	s.config.logger.Debug("starting graceful shutdown")
	if s.metricsServer != nil {
		if stopErr := s.metricsServer.Shutdown(ctx); stopErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("metrics listener shutdown: %w", stopErr),
			)
		}
	}
	if s.eventBus != nil {
		s.eventBus.Stop()
	}
	if s.db != nil {
		if closeErr := s.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}
	for _, fn := range s.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	s.shutdownFuncs = nil
	s.config.logger.Debug("graceful shutdown complete")
	close(s.done)
	return err
}

func (s *Steward) startMetricsListener() {
	gatherer, ok := s.config.promRegistry.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle(
		"/metrics",
		promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	)
	s.metricsServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.metricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
	}
	go func() {
		if err := s.metricsServer.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				s.config.logger.Error(
					"metrics listener failure",
					"component", "steward",
					"error", err,
				)
			}
		}
	}()
}

// Owner returns the deployer principal
func (s *Steward) Owner() identity.Principal {
	return s.owner
}

// Store returns the governed data store
func (s *Steward) Store() *store.DataStore {
	return s.dataStore
}

// EventBus returns the event bus
func (s *Steward) EventBus() *event.EventBus {
	return s.eventBus
}

// Database returns the underlying database
func (s *Steward) Database() *database.Database {
	return s.db
}

// NewHandler creates a handler owned by the deployer and bound to the data
// store. The handler is not yet active; use Deploy for the full bootstrap.
func (s *Steward) NewHandler() (*handler.Handler, error) {
	return handler.New(
		handler.HandlerConfig{
			Logger:   s.config.logger,
			EventBus: s.eventBus,
			Store:    s.dataStore,
			Owner:    s.owner,
		},
	)
}

// Deploy runs the bootstrap sequence for a brand new store: create a
// handler, register it as the active handler and have it initialize the
// store's resources
func (s *Steward) Deploy(payload store.InitPayload) (*handler.Handler, error) {
	h, err := s.NewHandler()
	if err != nil {
		return nil, err
	}
	if err := s.dataStore.SetActiveHandler(s.owner, h.Id()); err != nil {
		return nil, fmt.Errorf("failed to register active handler: %w", err)
	}
	if err := h.Initialize(s.owner, payload); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return h, nil
}

// ProposeUpgrade runs the full proposal choreography: create the proposal,
// register the upgrade intent in the store, register the proposal with both
// handlers and open voting. The returned proposal is in the Voting state.
func (s *Steward) ProposeUpgrade(
	original *handler.Handler,
	candidate *handler.Handler,
	voters []identity.Principal,
	quorumPercentage uint32,
) (*govern.Proposal, error) {
	proposal, err := govern.NewProposal(
		govern.ProposalConfig{
			PromRegistry:     s.config.promRegistry,
			Logger:           s.config.logger,
			EventBus:         s.eventBus,
			Database:         s.db,
			Store:            s.dataStore,
			OriginalHandler:  original,
			NewHandler:       candidate,
			Owner:            s.owner,
			Voters:           voters,
			QuorumPercentage: quorumPercentage,
		},
	)
	if err != nil {
		return nil, err
	}
	if err := s.dataStore.RegisterUpgradeIntent(s.owner, proposal.Id()); err != nil {
		return nil, fmt.Errorf("failed to register upgrade intent: %w", err)
	}
	if err := original.RegisterPendingUpgrader(s.owner, proposal.Id()); err != nil {
		return nil, err
	}
	if err := candidate.RegisterPendingUpgrader(s.owner, proposal.Id()); err != nil {
		return nil, err
	}
	if err := proposal.Start(s.owner); err != nil {
		return nil, fmt.Errorf("failed to open voting: %w", err)
	}
	return proposal, nil
}
