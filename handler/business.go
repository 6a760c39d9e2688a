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

// Business operations. Each forwards to the data store under the handler's
// own principal; the store's access registry decides whether that principal
// may still read or write.

// Label returns the store's string resource
func (h *Handler) Label() (string, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if err := h.requireLive(); err != nil {
		return "", err
	}
	return h.store.ReadLabel(h.id)
}

// SetLabel replaces the store's string resource
func (h *Handler) SetLabel(label string) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if err := h.requireLive(); err != nil {
		return err
	}
	return h.store.WriteLabel(h.id, label)
}

// Counter returns the store's integer resource
func (h *Handler) Counter() (int64, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if err := h.requireLive(); err != nil {
		return 0, err
	}
	return h.store.ReadCounter(h.id)
}

// SetCounter replaces the store's integer resource
func (h *Handler) SetCounter(counter int64) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if err := h.requireLive(); err != nil {
		return err
	}
	return h.store.WriteCounter(h.id, counter)
}

// AppendEntry appends a value to the store's ordered sequence resource
func (h *Handler) AppendEntry(value string) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if err := h.requireLive(); err != nil {
		return err
	}
	return h.store.AppendEntry(h.id, value)
}

// Entries returns the store's ordered sequence resource
func (h *Handler) Entries() ([]string, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if err := h.requireLive(); err != nil {
		return nil, err
	}
	return h.store.Entries(h.id)
}

// PutRecord stores one value in the store's nested keyed resource
func (h *Handler) PutRecord(namespace, key, value string) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if err := h.requireLive(); err != nil {
		return err
	}
	return h.store.PutRecord(h.id, namespace, key, value)
}

// GetRecord retrieves one value from the store's nested keyed resource
func (h *Handler) GetRecord(namespace, key string) (string, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if err := h.requireLive(); err != nil {
		return "", err
	}
	return h.store.GetRecord(h.id, namespace, key)
}
