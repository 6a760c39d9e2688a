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

// Status is the lifecycle state of an upgrade proposal. Proposals move
// forward only: Preparing -> Voting -> Success or Expired, with Terminated
// reachable from any non-terminal state by explicit owner action.
type Status int

const (
	StatusPreparing Status = iota
	StatusVoting
	StatusSuccess
	StatusExpired
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusPreparing:
		return "preparing"
	case StatusVoting:
		return "voting"
	case StatusSuccess:
		return "success"
	case StatusExpired:
		return "expired"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Terminal returns true once no further transitions are possible
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusExpired, StatusTerminated:
		return true
	default:
		return false
	}
}
