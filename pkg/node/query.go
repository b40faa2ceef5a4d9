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

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/abcxyz/pkg/logging"

	"github.com/alexjg/radicle-client-services/pkg/indexer"
	"github.com/alexjg/radicle-client-services/pkg/urn"
)

// QueryProjects consumes anchor logs and resolves each back into project
// records via the indexer, forwarding the extracted project ids to the work
// channel.
//
// Every query replays from the operator-supplied watermark; the watermark is
// never advanced, matching the registry's append-only ordering.
func QueryProjects(ctx context.Context, idx *indexer.Client, sinceTS uint64, events <-chan types.Log, work chan<- urn.URN) error {
	logger := logging.FromContext(ctx)

	for {
		var event types.Log
		select {
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck // Want passthrough
		case e, ok := <-events:
			if !ok {
				logger.InfoContext(ctx, "event channel closed, exiting task",
					"task", "query-projects")
				return nil
			}
			event = e
		}

		projects, err := idx.Query(ctx, sinceTS, []common.Address{event.Address})
		if err != nil {
			var terr *indexer.TransportError
			if errors.As(err, &terr) {
				logger.ErrorContext(ctx, "query failed",
					"task", "query-projects",
					"org", event.Address.Hex(),
					"error", err)
			} else {
				logger.ErrorContext(ctx, "query returned a malformed payload",
					"task", "query-projects",
					"org", event.Address.Hex(),
					"error", err)
			}
			continue
		}

		if err := ProcessAnchors(ctx, projects, work); err != nil {
			logger.ErrorContext(ctx, "anchor processing failed, exiting task",
				"task", "query-projects",
				"error", err)
			return err
		}
	}
}

// ProcessAnchors extracts the project id of every record and enqueues it on
// the work channel. Malformed anchors are logged and skipped; the send
// blocks when the channel is full.
func ProcessAnchors(ctx context.Context, projects []indexer.Project, work chan<- urn.URN) error {
	logger := logging.FromContext(ctx)

	if len(projects) == 0 {
		return nil
	}
	logger.InfoContext(ctx, "found projects",
		"task", "query-projects",
		"count", len(projects))

	for i := range projects {
		project := &projects[i]

		id, err := project.URN()
		if err != nil {
			logger.ErrorContext(ctx, "invalid urn for project, skipping",
				"task", "query-projects",
				"object_id", project.Anchor.ObjectID,
				"org", project.Org.ID,
				"error", err)
			continue
		}

		logger.InfoContext(ctx, "queueing project",
			"task", "query-projects",
			"urn", id.String())

		select {
		case work <- id:
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck // Want passthrough
		}
	}
	return nil
}

// ProcessURNs enqueues operator-supplied project ids on the work channel.
func ProcessURNs(ctx context.Context, ids []urn.URN, work chan<- urn.URN) error {
	logger := logging.FromContext(ctx)

	if len(ids) == 0 {
		return nil
	}
	logger.InfoContext(ctx, "processing urns",
		"task", "query-projects",
		"count", len(ids))

	for _, id := range ids {
		logger.InfoContext(ctx, "queueing project",
			"task", "query-projects",
			"urn", id.String())

		select {
		case work <- id:
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck // Want passthrough
		}
	}
	return nil
}
