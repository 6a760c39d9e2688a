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

package clock

import (
	"sync/atomic"
	"time"
)

// Source provides the monotonically non-decreasing logical height used for
// proposal expiry comparisons. Implementations must never report a smaller
// height than a previous call.
type Source interface {
	Height() uint64
}

// Manual is a height source advanced explicitly by the host. Useful for
// tests and for hosts that follow an external ledger.
type Manual struct {
	height atomic.Uint64
}

// NewManual creates a manual height source starting at the given height.
func NewManual(height uint64) *Manual {
	m := &Manual{}
	m.height.Store(height)
	return m
}

func (m *Manual) Height() uint64 {
	return m.height.Load()
}

// Advance moves the height forward by delta and returns the new height.
func (m *Manual) Advance(delta uint64) uint64 {
	return m.height.Add(delta)
}

// Set moves the height to the given value. Attempts to move backwards are
// ignored so the non-decreasing contract holds.
func (m *Manual) Set(height uint64) {
	for {
		cur := m.height.Load()
		if height <= cur {
			return
		}
		if m.height.CompareAndSwap(cur, height) {
			return
		}
	}
}

// Slot derives heights from wall-clock time, counting fixed-length slots
// since a genesis instant. Heights before genesis are reported as zero.
type Slot struct {
	genesis    time.Time
	slotLength time.Duration
}

// NewSlot creates a slot-based height source. A zero or negative slot length
// defaults to one second.
func NewSlot(genesis time.Time, slotLength time.Duration) *Slot {
	if slotLength <= 0 {
		slotLength = time.Second
	}
	return &Slot{
		genesis:    genesis,
		slotLength: slotLength,
	}
}

func (s *Slot) Height() uint64 {
	elapsed := time.Since(s.genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / s.slotLength)
}
