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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualAdvance(t *testing.T) {
	m := NewManual(10)
	assert.Equal(t, uint64(10), m.Height())
	assert.Equal(t, uint64(15), m.Advance(5))
	assert.Equal(t, uint64(15), m.Height())
}

func TestManualSetNeverBackwards(t *testing.T) {
	m := NewManual(10)
	m.Set(20)
	assert.Equal(t, uint64(20), m.Height())

	// Attempts to rewind are ignored
	m.Set(5)
	assert.Equal(t, uint64(20), m.Height())
	m.Set(20)
	assert.Equal(t, uint64(20), m.Height())
}

func TestSlotHeight(t *testing.T) {
	s := NewSlot(time.Now().Add(-10*time.Second), time.Second)
	height := s.Height()
	assert.GreaterOrEqual(t, height, uint64(10))
	assert.Less(t, height, uint64(12))
}

func TestSlotPreGenesis(t *testing.T) {
	s := NewSlot(time.Now().Add(time.Hour), time.Second)
	assert.Equal(t, uint64(0), s.Height())
}

func TestSlotDefaultLength(t *testing.T) {
	s := NewSlot(time.Now().Add(-5*time.Second), 0)
	height := s.Height()
	assert.GreaterOrEqual(t, height, uint64(5))
	assert.Less(t, height, uint64(7))
}
