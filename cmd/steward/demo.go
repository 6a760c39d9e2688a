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

package main

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	steward "github.com/blinklabs-io/steward"
	"github.com/blinklabs-io/steward/clock"
	"github.com/blinklabs-io/steward/identity"
	"github.com/blinklabs-io/steward/store"
)

func demoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a full governed upgrade in memory",
		Run: func(cmd *cobra.Command, args []string) {
			demoRun()
		},
	}
}

// demoRun walks a store through its full handler lineage: bootstrap with a
// first handler, then swap to a second one through a quorum vote.
func demoRun() {
	logger := commonRun()
	fail := func(msg string, err error) {
		logger.Error(msg, "component", programName, "error", err)
		os.Exit(1)
	}
	heights := clock.NewManual(0)
	s, err := steward.New(steward.NewConfig(
		steward.WithLogger(logger),
		steward.WithClock(heights),
		steward.WithProposalPeriod(100),
		steward.WithPrometheusRegistry(prometheus.NewRegistry()),
	))
	if err != nil {
		fail("failed to create steward", err)
	}
	if err := s.Start(); err != nil {
		fail("failed to start steward", err)
	}
	defer s.Stop() //nolint:errcheck

	// Bootstrap the store with its first handler
	original, err := s.Deploy(store.InitPayload{
		Label:    "demo",
		Counter:  1,
		Sequence: []string{"genesis"},
		Records: map[string]map[string]string{
			"greetings": {"en": "hello"},
		},
	})
	if err != nil {
		fail("failed to deploy", err)
	}
	logger.Info(
		"store deployed",
		"component", programName,
		"handler", original.Id().String(),
	)

	// Propose swapping to a fresh handler, majority of three voters
	candidate, err := s.NewHandler()
	if err != nil {
		fail("failed to create candidate handler", err)
	}
	voters := []identity.Principal{
		identity.New("voter"),
		identity.New("voter"),
		identity.New("voter"),
	}
	heights.Advance(10)
	proposal, err := s.ProposeUpgrade(original, candidate, voters, 50)
	if err != nil {
		fail("failed to propose upgrade", err)
	}
	logger.Info(
		"voting opened",
		"component", programName,
		"proposal", proposal.Id().String(),
	)
	for _, voter := range voters[:2] {
		if err := proposal.Vote(voter, true); err != nil {
			fail("failed to vote", err)
		}
	}
	heights.Advance(40)
	status, err := proposal.Resolve(s.Owner())
	if err != nil {
		fail("failed to resolve proposal", err)
	}
	logger.Info(
		"proposal resolved",
		"component", programName,
		"status", status.String(),
		"active_handler", s.Store().ActiveHandler().String(),
		"original_live", original.Live(),
	)

	// The new handler now owns the accumulated state
	label, err := candidate.Label()
	if err != nil {
		fail("failed to read label via new handler", err)
	}
	logger.Info(
		"state preserved across swap",
		"component", programName,
		"label", label,
	)
}
