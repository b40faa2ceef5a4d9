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

package cli

import (
	"context"
	"fmt"

	"github.com/abcxyz/pkg/cli"
	"github.com/abcxyz/pkg/logging"

	"github.com/alexjg/radicle-client-services/pkg/identity"
	"github.com/alexjg/radicle-client-services/pkg/metrics"
	"github.com/alexjg/radicle-client-services/pkg/node"
	"github.com/alexjg/radicle-client-services/pkg/p2p"
	"github.com/alexjg/radicle-client-services/pkg/version"
)

var _ cli.Command = (*NodeStartCommand)(nil)

// NodeStartCommand starts the org node.
type NodeStartCommand struct {
	cli.BaseCommand

	cfg *node.Config

	// testFlagSetOpts is only used for testing.
	testFlagSetOpts []cli.Option
}

func (c *NodeStartCommand) Desc() string {
	return `Start the org node`
}

func (c *NodeStartCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options]

  Start the org node: replay anchors from the subgraph, subscribe to
  on-chain anchor events, and replicate the anchored projects.
`
}

func (c *NodeStartCommand) Flags() *cli.FlagSet {
	c.cfg = &node.Config{}
	set := cli.NewFlagSet(c.testFlagSetOpts...)
	return c.cfg.ToFlags(set)
}

func (c *NodeStartCommand) Run(ctx context.Context, args []string) error {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	args = f.Args()
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %q", args)
	}

	logger := logging.FromContext(ctx)
	logger.DebugContext(ctx, "node starting",
		"name", version.Name,
		"commit", version.Commit,
		"version", version.Version)

	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	signer, err := identity.LoadSigner(c.cfg.Identity, c.cfg.IdentityPassphrase)
	if err != nil {
		return fmt.Errorf("unable to load identity %q: %w", c.cfg.Identity, err)
	}

	seeds := make([]p2p.Seed, 0, len(c.cfg.Seeds))
	for _, s := range c.cfg.Seeds {
		seed, err := p2p.ParseSeed(s)
		if err != nil {
			return err //nolint:wrapcheck // Already wrapped
		}
		seeds = append(seeds, seed)
	}

	peers := make([]identity.PeerID, 0, len(c.cfg.Peers))
	for _, s := range c.cfg.Peers {
		peer, err := identity.DecodePeerID(s)
		if err != nil {
			return fmt.Errorf("invalid peer %q: %w", s, err)
		}
		peers = append(peers, peer)
	}

	client := p2p.NewClient(signer, p2p.NewGitService(c.cfg.GitDir, seeds), p2p.Config{
		RequestTimeout:    c.cfg.TrackTimeout,
		Peers:             peers,
		AllowUnknownPeers: c.cfg.AllowUnknownPeers,
	})

	var sink metrics.Sink = metrics.Nop{}
	if c.cfg.InfluxURL != "" {
		peer, err := client.PeerID()
		if err != nil {
			return fmt.Errorf("failed to derive peer id: %w", err)
		}
		influx := metrics.NewInflux(&metrics.InfluxConfig{
			URL:      c.cfg.InfluxURL,
			Token:    c.cfg.InfluxToken,
			Org:      c.cfg.InfluxOrg,
			Bucket:   c.cfg.InfluxBucket,
			NodePeer: peer,
		})
		defer influx.Close()
		sink = influx
	}

	n, err := node.New(c.cfg, client, sink)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	return n.Run(ctx) //nolint:wrapcheck // Want passthrough
}
