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

package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Principal is an opaque caller identity supplied by the host environment.
// The core trusts it completely and performs no authentication of its own.
// The zero value means "no principal".
type Principal string

// None is the absent principal.
const None Principal = ""

// IsSet returns true if the principal is non-empty.
func (p Principal) IsSet() bool {
	return p != None
}

// String returns the principal as a plain string.
func (p Principal) String() string {
	return string(p)
}

// New generates a fresh random principal with the given role prefix. This is
// a convenience for hosts (and tests) that don't bring their own identity
// scheme; principals from any other source work just as well.
func New(role string) Principal {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// rand.Read only fails if the host entropy source is broken
		panic(fmt.Sprintf("identity: entropy source unavailable: %s", err))
	}
	return Principal(role + "-" + hex.EncodeToString(buf))
}
