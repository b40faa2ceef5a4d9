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
	"errors"
	"fmt"

	"github.com/abcxyz/pkg/logging"

	"github.com/alexjg/radicle-client-services/pkg/metrics"
	"github.com/alexjg/radicle-client-services/pkg/p2p"
	"github.com/alexjg/radicle-client-services/pkg/urn"
)

// WorkChannelSize is the capacity of the tracking work channel. Producers
// backpressure when it is full.
const WorkChannelSize = 256

// Tracker drives replication attempts against the protocol handle. It owns
// an internal FIFO of project ids; retryable failures re-append to the tail
// so other queued projects interleave between attempts.
type Tracker struct {
	handle p2p.Handle
	queue  <-chan urn.URN
	sink   metrics.Sink
}

// NewTracker creates a tracker consuming project ids from queue.
func NewTracker(handle p2p.Handle, queue <-chan urn.URN, sink metrics.Sink) *Tracker {
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &Tracker{
		handle: handle,
		queue:  queue,
		sink:   sink,
	}
}

// Run processes the queue until it is closed or a fatal handle error fires.
//
// Each iteration first drains everything currently buffered on the input
// channel to the tail of the work queue without blocking. This keeps the
// tracker from spinning on a single failing id while fresh work is arriving.
func (t *Tracker) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	var work []urn.URN

	for {
		// Drain phase: move every immediately available id to the tail.
	drain:
		for {
			select {
			case id, ok := <-t.queue:
				if !ok {
					logger.InfoContext(ctx, "tracking channel closed, exiting task",
						"task", "tracker")
					return nil
				}
				work = append(work, id)
				logger.DebugContext(ctx, "added to the work queue",
					"task", "tracker",
					"urn", id.String(),
					"work", len(work))
			case <-ctx.Done():
				return ctx.Err() //nolint:wrapcheck // Want passthrough
			default:
				break drain
			}
		}
		t.sink.QueueDepth(ctx, len(work))

		// Select phase: pop the head, or block on the input channel so we
		// don't spin while idle.
		var id urn.URN
		if len(work) > 0 {
			id = work[0]
			work = work[1:]
		} else {
			select {
			case next, ok := <-t.queue:
				if !ok {
					logger.InfoContext(ctx, "tracking channel closed, exiting task",
						"task", "tracker")
					return nil
				}
				id = next
			case <-ctx.Done():
				return ctx.Err() //nolint:wrapcheck // Want passthrough
			}
		}

		logger.InfoContext(ctx, "attempting to track",
			"task", "tracker",
			"urn", id.String(),
			"work", len(work))

		peer, fetched, err := t.handle.TrackProject(ctx, id)
		switch {
		case err == nil && fetched:
			logger.InfoContext(ctx, "project fetched",
				"task", "tracker",
				"urn", id.String(),
				"peer", peer.String())
			t.sink.TrackSucceeded(ctx, id, peer)

		case err == nil:
			logger.DebugContext(ctx, "nothing to do",
				"task", "tracker",
				"urn", id.String())

		case errors.Is(err, p2p.ErrNotFound):
			logger.InfoContext(ctx, "project not found, requeueing",
				"task", "tracker",
				"urn", id.String())
			t.sink.TrackRequeued(ctx, id)
			work = append(work, id)

		case errors.Is(err, p2p.ErrTimeout):
			logger.InfoContext(ctx, "tracking timed out, requeueing",
				"task", "tracker",
				"urn", id.String())
			t.sink.TrackRequeued(ctx, id)
			work = append(work, id)

		default:
			logger.ErrorContext(ctx, "tracking handle failed, exiting task",
				"task", "tracker",
				"urn", id.String(),
				"error", err)
			return fmt.Errorf("tracking handle failed: %w", err)
		}
	}
}
