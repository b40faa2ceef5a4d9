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
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/abcxyz/pkg/logging"

	"github.com/alexjg/radicle-client-services/pkg/dashboard"
	"github.com/alexjg/radicle-client-services/pkg/identity"
	"github.com/alexjg/radicle-client-services/pkg/metrics"
	"github.com/alexjg/radicle-client-services/pkg/p2p"
	"github.com/alexjg/radicle-client-services/pkg/urn"
)

// SocketFile is the name of the local stream socket the git server uses to
// request ref updates out of band.
const SocketFile = "org-node.sock"

// UpdateListener accepts line-oriented project ids on a local socket and
// refreshes each project's signed refs.
type UpdateListener struct {
	dir    string
	handle p2p.Handle
	peer   identity.PeerID
	feed   *dashboard.Feed
	sink   metrics.Sink
}

// NewUpdateListener creates a listener binding under dir.
func NewUpdateListener(dir string, handle p2p.Handle, peer identity.PeerID, feed *dashboard.Feed, sink metrics.Sink) *UpdateListener {
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &UpdateListener{
		dir:    dir,
		handle: handle,
		peer:   peer,
		feed:   feed,
		sink:   sink,
	}
}

// Run binds the socket and serves connections serially until ctx is
// cancelled. A stale socket file is removed before binding; failure to bind
// is fatal to this task only.
func (l *UpdateListener) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	path := filepath.Join(l.dir, SocketFile)

	// Remove a stale socket file from a previous run before rebinding.
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		logger.ErrorContext(ctx, "failed to bind the org-node socket",
			"task", "update-refs",
			"path", path,
			"error", err)
		return fmt.Errorf("failed to bind %q: %w", path, err)
	}

	// Unblock Accept on shutdown.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	logger.InfoContext(ctx, "listening for ref updates",
		"task", "update-refs",
		"path", path)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ctx.Err() //nolint:wrapcheck // Want passthrough
			}
			logger.ErrorContext(ctx, "failed to accept connection",
				"task", "update-refs",
				"error", err)
			continue
		}
		l.serve(ctx, conn)
	}
}

// serve reads project ids off one connection. Parse and RPC failures are
// logged and skipped; a read error ends the connection but not the task.
func (l *UpdateListener) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	logger := logging.FromContext(ctx)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		id, err := urn.Parse(line)
		if err != nil {
			logger.ErrorContext(ctx, "discarding invalid project id",
				"task", "update-refs",
				"line", line,
				"error", err)
			continue
		}

		oid, err := l.handle.UpdateRefs(ctx, id)
		if err != nil {
			logger.ErrorContext(ctx, "failed to update refs",
				"task", "update-refs",
				"urn", id.String(),
				"error", err)
			continue
		}

		logger.InfoContext(ctx, "successfully updated refs",
			"task", "update-refs",
			"urn", id.String(),
			"oid", oid.String())
		l.sink.RefsUpdated(ctx, id)

		// Notify connected dashboard clients of the updated refs.
		l.feed.Publish(ctx, dashboard.UpdatedRef(oid, id, l.peer))
	}
	if err := scanner.Err(); err != nil {
		logger.ErrorContext(ctx, "connection failed",
			"task", "update-refs",
			"error", err)
	}
}
