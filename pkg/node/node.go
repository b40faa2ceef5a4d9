// Copyright 2023 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package node runs the org node: it watches the on-chain anchor registry
// for project announcements and replicates the corresponding repositories
// over the peer-to-peer protocol.
//
// The node can be configured to listen to any number of orgs, or all orgs.
package node

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sethvargo/go-retry"

	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/serving"

	"github.com/alexjg/radicle-client-services/pkg/dashboard"
	"github.com/alexjg/radicle-client-services/pkg/identity"
	"github.com/alexjg/radicle-client-services/pkg/indexer"
	"github.com/alexjg/radicle-client-services/pkg/metrics"
	"github.com/alexjg/radicle-client-services/pkg/p2p"
	"github.com/alexjg/radicle-client-services/pkg/urn"
	"github.com/alexjg/radicle-client-services/pkg/watcher"
)

// ErrGitNotFound reports that no usable git binary is on the PATH.
var ErrGitNotFound = errors.New("git binary not found")

const (
	bootstrapRetryWait     = time.Second
	bootstrapRetryAttempts = 4
)

// Node owns the org-node task set.
type Node struct {
	cfg    *Config
	client *p2p.Client
	handle p2p.Handle
	peer   identity.PeerID
	idx    *indexer.Client
	feed   *dashboard.Feed
	hub    *dashboard.Hub
	dash   *dashboard.Server
	sink   metrics.Sink
	urns   []urn.URN
}

// New assembles a node around the given protocol client.
func New(cfg *Config, client *p2p.Client, sink metrics.Sink) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if sink == nil {
		sink = metrics.Nop{}
	}

	peer, err := client.PeerID()
	if err != nil {
		return nil, fmt.Errorf("failed to derive peer id: %w", err)
	}

	urns := make([]urn.URN, 0, len(cfg.URNs))
	for _, s := range cfg.URNs {
		id, err := urn.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid urn %q: %w", s, err)
		}
		urns = append(urns, id)
	}

	feed := dashboard.NewFeed()
	hub := dashboard.NewHub(feed)

	return &Node{
		cfg:    cfg,
		client: client,
		handle: client.Handle(),
		peer:   peer,
		idx:    indexer.New(cfg.Subgraph),
		feed:   feed,
		hub:    hub,
		dash:   dashboard.NewServer(hub),
		sink:   sink,
		urns:   urns,
	}, nil
}

// PeerID returns the node's identity.
func (n *Node) PeerID() identity.PeerID { return n.peer }

type taskExit struct {
	name string
	err  error
}

// Run starts every task, then blocks until the first of them completes.
// Siblings are not cancelled beyond process teardown; a finished task means
// the node is done.
func (n *Node) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	out, err := exec.CommandContext(ctx, "git", "version").Output()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGitNotFound, err)
	}
	logger.InfoContext(ctx, strings.TrimSpace(string(out)), "task", "org-node")

	addresses := n.cfg.OrgAddresses()

	logger.InfoContext(ctx, "starting org node",
		"task", "org-node",
		"peer_id", n.peer.String(),
		"orgs", n.cfg.Orgs,
		"timestamp", n.cfg.Timestamp,
		"subgraph", n.cfg.Subgraph)

	// Queue of projects to track.
	work := make(chan urn.URN, WorkChannelSize)

	// Queue of events on orgs.
	events := make(chan types.Log, watcher.ChannelSize)

	done := make(chan taskExit, 8)
	spawn := func(name string, fn func(context.Context) error) {
		go func() {
			done <- taskExit{name: name, err: fn(ctx)}
		}()
	}

	srv, err := serving.New(n.cfg.DashboardPort)
	if err != nil {
		return fmt.Errorf("failed to create serving infrastructure: %w", err)
	}
	mux := n.dash.Routes(ctx)
	spawn("dashboard", func(ctx context.Context) error {
		return srv.StartHTTPHandler(ctx, mux) //nolint:wrapcheck // Want passthrough
	})
	spawn("fan-out", n.hub.Run)
	spawn("client", n.client.Run)

	tracker := NewTracker(n.handle, work, n.sink)
	spawn("tracker", tracker.Run)

	// First get up to speed with existing anchors, before listening for
	// events. The query layer is retry-free; availability at process start
	// is an orchestrator concern, so the bootstrap round gets a short
	// fibonacci backoff.
	var projects []indexer.Project
	backoff := retry.WithMaxRetries(bootstrapRetryAttempts, retry.NewFibonacci(bootstrapRetryWait))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var qerr error
		projects, qerr = n.idx.Query(ctx, n.cfg.Timestamp, addresses)
		var terr *indexer.TransportError
		if errors.As(qerr, &terr) {
			return retry.RetryableError(qerr)
		}
		return qerr
	}); err != nil {
		return fmt.Errorf("bootstrap query failed: %w", err)
	}
	if err := ProcessAnchors(ctx, projects, work); err != nil {
		return err
	}
	if err := ProcessURNs(ctx, n.urns, work); err != nil {
		return err
	}

	// Now launch the event subscriber and listen on events.
	sub := watcher.New(n.cfg.RPCURL, addresses)
	spawn("subscriber", func(ctx context.Context) error {
		return sub.Run(ctx, events)
	})

	listener := NewUpdateListener(n.cfg.EffectiveSocketDir(), n.handle, n.peer, n.feed, n.sink)
	spawn("update-refs", listener.Run)

	spawn("query-projects", func(ctx context.Context) error {
		return QueryProjects(ctx, n.idx, n.cfg.Timestamp, events, work)
	})

	exit := <-done
	if exit.err != nil && !errors.Is(exit.err, context.Canceled) {
		logger.ErrorContext(ctx, "task failed",
			"task", exit.name,
			"error", exit.err)
	} else {
		logger.InfoContext(ctx, "task completed",
			"task", exit.name)
	}
	logger.InfoContext(ctx, "exiting", "task", "org-node")
	return exit.err
}
