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

package node

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/abcxyz/pkg/cfgloader"
	"github.com/abcxyz/pkg/cli"
	"github.com/sethvargo/go-envconfig"
)

// Config defines the set of environment variables required for running the
// org node.
type Config struct {
	Identity           string        `env:"RAD_IDENTITY,required"`
	IdentityPassphrase string        `env:"RAD_IDENTITY_PASSPHRASE"`
	GitDir             string        `env:"RAD_GIT_DIR,required"`
	RPCURL             string        `env:"RAD_RPC_URL,required"`
	Subgraph           string        `env:"RAD_SUBGRAPH,required"`
	Orgs               []string      `env:"RAD_ORGS"`
	URNs               []string      `env:"RAD_URNS"`
	Seeds              []string      `env:"RAD_SEEDS"`
	Peers              []string      `env:"RAD_PEERS"`
	AllowUnknownPeers  bool          `env:"RAD_ALLOW_UNKNOWN_PEERS"`
	Timestamp          uint64        `env:"RAD_TIMESTAMP"`
	SocketDir          string        `env:"RAD_SOCKET_DIR"`
	DashboardPort      string        `env:"RAD_DASHBOARD_PORT,default=8336"`
	TrackTimeout       time.Duration `env:"RAD_TRACK_TIMEOUT,default=1m"`

	// InfluxURL enables the InfluxDB metrics sink when set.
	InfluxURL    string `env:"RAD_INFLUX_URL"`
	InfluxToken  string `env:"RAD_INFLUX_TOKEN"`
	InfluxOrg    string `env:"RAD_INFLUX_ORG"`
	InfluxBucket string `env:"RAD_INFLUX_BUCKET"`
}

// Validate validates the config after load.
func (cfg *Config) Validate() error {
	if cfg.Identity == "" {
		return fmt.Errorf("RAD_IDENTITY is required")
	}
	if cfg.GitDir == "" {
		return fmt.Errorf("RAD_GIT_DIR is required")
	}
	if cfg.RPCURL == "" {
		return fmt.Errorf("RAD_RPC_URL is required")
	}
	if cfg.Subgraph == "" {
		return fmt.Errorf("RAD_SUBGRAPH is required")
	}
	for _, org := range cfg.Orgs {
		if !common.IsHexAddress(org) {
			return fmt.Errorf("invalid org address %q", org)
		}
	}
	if cfg.InfluxURL != "" && (cfg.InfluxOrg == "" || cfg.InfluxBucket == "") {
		return fmt.Errorf("RAD_INFLUX_ORG and RAD_INFLUX_BUCKET are required with RAD_INFLUX_URL")
	}
	return nil
}

// OrgAddresses parses the configured org ids as chain addresses.
func (cfg *Config) OrgAddresses() []common.Address {
	addrs := make([]common.Address, 0, len(cfg.Orgs))
	for _, org := range cfg.Orgs {
		addrs = append(addrs, common.HexToAddress(org))
	}
	return addrs
}

// EffectiveSocketDir returns the configured socket directory, defaulting to
// the OS temp directory.
func (cfg *Config) EffectiveSocketDir() string {
	if cfg.SocketDir != "" {
		return cfg.SocketDir
	}
	return os.TempDir()
}

// NewConfig creates a new Config from environment variables.
func NewConfig(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := cfgloader.Load(ctx, &cfg, cfgloader.WithLookuper(envconfig.OsLookuper())); err != nil {
		return nil, fmt.Errorf("failed to parse org-node config: %w", err)
	}
	return &cfg, nil
}

// ToFlags binds the config to the given [cli.FlagSet] and returns it.
func (cfg *Config) ToFlags(set *cli.FlagSet) *cli.FlagSet {
	f := set.NewSection("ORG NODE OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:   "identity",
		Target: &cfg.Identity,
		EnvVar: "RAD_IDENTITY",
		Usage:  `Path to the node's secret key file.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "identity-passphrase",
		Target: &cfg.IdentityPassphrase,
		EnvVar: "RAD_IDENTITY_PASSPHRASE",
		Usage:  `Passphrase of the encrypted identity file, if any.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "git-dir",
		Target: &cfg.GitDir,
		EnvVar: "RAD_GIT_DIR",
		Usage:  `Path to the bare monorepo projects are replicated into.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "rpc-url",
		Target: &cfg.RPCURL,
		EnvVar: "RAD_RPC_URL",
		Usage:  `WebSocket-capable chain RPC endpoint.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "subgraph",
		Target: &cfg.Subgraph,
		EnvVar: "RAD_SUBGRAPH",
		Usage:  `URL of the org subgraph to query for anchors.`,
	})

	f.StringSliceVar(&cli.StringSliceVar{
		Name:   "orgs",
		Target: &cfg.Orgs,
		EnvVar: "RAD_ORGS",
		Usage:  `Org contract addresses to track. Empty tracks all orgs.`,
	})

	f.StringSliceVar(&cli.StringSliceVar{
		Name:   "urns",
		Target: &cfg.URNs,
		EnvVar: "RAD_URNS",
		Usage:  `Project URNs to track in addition to anchored projects.`,
	})

	f.StringSliceVar(&cli.StringSliceVar{
		Name:   "seeds",
		Target: &cfg.Seeds,
		EnvVar: "RAD_SEEDS",
		Usage:  `Seed nodes as <peer>@<address> pairs.`,
	})

	f.StringSliceVar(&cli.StringSliceVar{
		Name:   "peers",
		Target: &cfg.Peers,
		EnvVar: "RAD_PEERS",
		Usage:  `Pinned peer ids, passed to the p2p client config; replication does not consult them.`,
	})

	f.BoolVar(&cli.BoolVar{
		Name:   "allow-unknown-peers",
		Target: &cfg.AllowUnknownPeers,
		EnvVar: "RAD_ALLOW_UNKNOWN_PEERS",
		Usage:  `Unknown-peer flag, passed to the p2p client config; replication does not consult it.`,
	})

	f.Uint64Var(&cli.Uint64Var{
		Name:   "timestamp",
		Target: &cfg.Timestamp,
		EnvVar: "RAD_TIMESTAMP",
		Usage:  `Watermark to replay anchors from, as a unix timestamp.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "socket-dir",
		Target: &cfg.SocketDir,
		EnvVar: "RAD_SOCKET_DIR",
		Usage:  `Directory for the local update socket. Defaults to the OS temp directory.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "dashboard-port",
		Target:  &cfg.DashboardPort,
		EnvVar:  "RAD_DASHBOARD_PORT",
		Default: "8336",
		Usage:   `The port the dashboard server listens on.`,
	})

	f.DurationVar(&cli.DurationVar{
		Name:    "track-timeout",
		Target:  &cfg.TrackTimeout,
		EnvVar:  "RAD_TRACK_TIMEOUT",
		Default: time.Minute,
		Usage:   `Timeout for a single replication attempt.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "influx-url",
		Target: &cfg.InfluxURL,
		EnvVar: "RAD_INFLUX_URL",
		Usage:  `InfluxDB endpoint for metrics. Metrics are disabled when empty.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "influx-token",
		Target: &cfg.InfluxToken,
		EnvVar: "RAD_INFLUX_TOKEN",
		Usage:  `InfluxDB API token.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "influx-org",
		Target: &cfg.InfluxOrg,
		EnvVar: "RAD_INFLUX_ORG",
		Usage:  `InfluxDB organization.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "influx-bucket",
		Target: &cfg.InfluxBucket,
		EnvVar: "RAD_INFLUX_BUCKET",
		Usage:  `InfluxDB bucket metrics are written to.`,
	})

	return set
}
