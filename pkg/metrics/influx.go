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

package metrics

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxapi "github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/abcxyz/pkg/logging"

	"github.com/alexjg/radicle-client-services/pkg/identity"
	"github.com/alexjg/radicle-client-services/pkg/urn"
)

// InfluxConfig configures the InfluxDB sink.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// NodePeer tags every point with the reporting node's identity.
	NodePeer identity.PeerID
}

// Influx writes observations as points to an InfluxDB bucket. Writes are
// asynchronous; a failed write is dropped after logging, never blocking the
// pipeline.
type Influx struct {
	client influxdb2.Client
	write  influxapi.WriteAPI
	peer   string
}

var _ Sink = (*Influx)(nil)

// NewInflux connects the sink to the configured InfluxDB endpoint.
func NewInflux(cfg *InfluxConfig) *Influx {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Influx{
		client: client,
		write:  client.WriteAPI(cfg.Org, cfg.Bucket),
		peer:   cfg.NodePeer.String(),
	}
}

func (i *Influx) TrackSucceeded(ctx context.Context, id urn.URN, peer identity.PeerID) {
	i.point(ctx, "track_succeeded", map[string]string{
		"urn":  id.String(),
		"peer": peer.String(),
	}, map[string]any{"count": 1})
}

func (i *Influx) TrackRequeued(ctx context.Context, id urn.URN) {
	i.point(ctx, "track_requeued", map[string]string{
		"urn": id.String(),
	}, map[string]any{"count": 1})
}

func (i *Influx) QueueDepth(ctx context.Context, n int) {
	i.point(ctx, "queue_depth", nil, map[string]any{"depth": n})
}

func (i *Influx) RefsUpdated(ctx context.Context, id urn.URN) {
	i.point(ctx, "refs_updated", map[string]string{
		"urn": id.String(),
	}, map[string]any{"count": 1})
}

func (i *Influx) point(ctx context.Context, measurement string, tags map[string]string, fields map[string]any) {
	if tags == nil {
		tags = map[string]string{}
	}
	tags["node"] = i.peer

	select {
	case <-ctx.Done():
		logging.FromContext(ctx).DebugContext(ctx, "dropping metric, context done",
			"task", "metrics",
			"measurement", measurement)
	default:
		i.write.WritePoint(influxdb2.NewPoint(measurement, tags, fields, time.Now().UTC()))
	}
}

// Close flushes buffered points and releases the client.
func (i *Influx) Close() {
	i.write.Flush()
	i.client.Close()
}
