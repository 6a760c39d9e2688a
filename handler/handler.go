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

package handler

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/steward/event"
	"github.com/blinklabs-io/steward/identity"
	"github.com/blinklabs-io/steward/store"
)

const CreatedEventType event.EventType = "handler.created"

// CreatedEvent is published once when a handler successfully initializes
// its data store
type CreatedEvent struct {
	Handler identity.Principal
	Owner   identity.Principal
}

var ErrAlreadyRetired = errors.New("handler already retired")

// HandlerConfig holds the configuration for a handler
type HandlerConfig struct {
	Logger   *slog.Logger
	EventBus *event.EventBus
	Store    *store.DataStore
	Owner    identity.Principal
	Id       identity.Principal
}

// Handler is a replaceable facade implementing business operations by
// delegating reads and writes to its data store under its own principal.
// A handler is created bound to one store, becomes active via explicit
// registration and is eventually retired by its owner or by the upgrade
// coordinator that superseded it.
type Handler struct {
	logger          *slog.Logger
	eventBus        *event.EventBus
	store           *store.DataStore
	owner           identity.Principal
	id              identity.Principal
	pendingUpgrader identity.Principal
	retired         bool
	mutex           sync.Mutex
}

// New creates a handler bound to the given data store. A fresh principal is
// generated when none is supplied.
func New(cfg HandlerConfig) (*Handler, error) {
	if cfg.Store == nil {
		return nil, errors.New("no data store provided")
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
		id = identity.New("handler")
	}
	return &Handler{
		logger:   logger,
		eventBus: cfg.EventBus,
		store:    cfg.Store,
		owner:    cfg.Owner,
		id:       id,
	}, nil
}

// Id returns the handler's own principal
func (h *Handler) Id() identity.Principal {
	return h.id
}

// Owner returns the principal that deployed the handler
func (h *Handler) Owner() identity.Principal {
	return h.owner
}

// Live returns true until the handler has been retired
func (h *Handler) Live() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return !h.retired
}

// requireLive checks the dead flag. Must be called with the mutex held.
func (h *Handler) requireLive() error {
	if h.retired {
		return ErrAlreadyRetired
	}
	return nil
}

// Initialize performs the one-shot initialization of the handler's data
// store. Owner-only; propagates store.ErrAlreadyInitialized if the store
// has already been initialized. Emits a creation notification on success.
func (h *Handler) Initialize(
	caller identity.Principal,
	payload store.InitPayload,
) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if err := h.requireLive(); err != nil {
		return err
	}
	if caller != h.owner {
		return store.ErrPermission
	}
	if err := h.store.Initialize(h.id, payload); err != nil {
		return err
	}
	h.logger.Info(
		"handler initialized store",
		"component", "handler",
		"handler", h.id.String(),
	)
	if h.eventBus != nil {
		// Fire-and-forget, at-most-once
		h.eventBus.PublishAsync(
			CreatedEventType,
			event.NewEvent(
				CreatedEventType,
				CreatedEvent{
					Handler: h.id,
					Owner:   h.owner,
				},
			),
		)
	}
	return nil
}

// RegisterPendingUpgrader records the principal of an upgrade proposal the
// owner intends to recognize. The id is not validated here; trust is
// established when the store also accepts the same proposal as its
// registered upgrader.
func (h *Handler) RegisterPendingUpgrader(
	caller identity.Principal,
	upgrader identity.Principal,
) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if err := h.requireLive(); err != nil {
		return err
	}
	if caller != h.owner {
		return store.ErrPermission
	}
	h.pendingUpgrader = upgrader
	return nil
}

// IsPreparedForUpgrade returns true if the caller is the handler's
// registered pending upgrader
func (h *Handler) IsPreparedForUpgrade(caller identity.Principal) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.retired {
		return false
	}
	return caller.IsSet() && caller == h.pendingUpgrader
}

// Retire renders the handler permanently inert. Callable by the owner or
// by the registered upgrader; a second call fails with ErrAlreadyRetired.
func (h *Handler) Retire(caller identity.Principal) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.retired {
		return ErrAlreadyRetired
	}
	if caller != h.owner &&
		(!caller.IsSet() || caller != h.pendingUpgrader) {
		return store.ErrPermission
	}
	h.retired = true
	h.logger.Info(
		"handler retired",
		"component", "handler",
		"handler", h.id.String(),
		"caller", caller.String(),
	)
	return nil
}
