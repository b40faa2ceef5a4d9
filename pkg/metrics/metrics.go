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

// Package metrics is a pluggable sink for org-node telemetry. The default
// sink discards everything so the pipeline never branches on whether an
// exporter is configured.
package metrics

import (
	"context"

	"github.com/alexjg/radicle-client-services/pkg/identity"
	"github.com/alexjg/radicle-client-services/pkg/urn"
)

// Sink receives org-node telemetry.
type Sink interface {
	// TrackSucceeded records a completed replication from the given peer.
	TrackSucceeded(ctx context.Context, id urn.URN, peer identity.PeerID)

	// TrackRequeued records a retryable tracking failure.
	TrackRequeued(ctx context.Context, id urn.URN)

	// QueueDepth records the tracker's internal work queue depth.
	QueueDepth(ctx context.Context, n int)

	// RefsUpdated records a successful ref update.
	RefsUpdated(ctx context.Context, id urn.URN)
}

// Nop is a Sink that discards all observations.
type Nop struct{}

var _ Sink = (*Nop)(nil)

func (Nop) TrackSucceeded(context.Context, urn.URN, identity.PeerID) {}

func (Nop) TrackRequeued(context.Context, urn.URN) {}

func (Nop) QueueDepth(context.Context, int) {}

func (Nop) RefsUpdated(context.Context, urn.URN) {}
