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

package store

// UpgradeStatus reports the state of the pending-upgrade slot from the
// point of view of a particular caller. It is the single source of truth a
// proposal polls to re-derive its own liveness; the store never initiates a
// handoff on its own.
type UpgradeStatus int

const (
	// UpgradeStatusError means the caller's handler claim does not match
	// the store's active handler
	UpgradeStatusError UpgradeStatus = iota
	// UpgradeStatusInProgress means the caller is the registered upgrader
	// and its window is still open
	UpgradeStatusInProgress
	// UpgradeStatusExpired means the caller is the registered upgrader but
	// its window has lapsed
	UpgradeStatusExpired
	// UpgradeStatusBlocked means another upgrader holds a live registration
	UpgradeStatusBlocked
	// UpgradeStatusDone means the slot is free for a new registration
	UpgradeStatusDone
)

func (s UpgradeStatus) String() string {
	switch s {
	case UpgradeStatusError:
		return "error"
	case UpgradeStatusInProgress:
		return "in-progress"
	case UpgradeStatusExpired:
		return "expired"
	case UpgradeStatusBlocked:
		return "blocked"
	case UpgradeStatusDone:
		return "done"
	default:
		return "unknown"
	}
}
