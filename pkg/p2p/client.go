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

// Package p2p carries the handle contract of the replication protocol and
// the request plumbing around it.
//
// The protocol runtime itself is a collaborator behind the Service
// interface; everything the rest of the org node knows about it is the
// Handle returned by a Client.
package p2p

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/alexjg/radicle-client-services/pkg/identity"
	"github.com/alexjg/radicle-client-services/pkg/urn"
)

// Handle is the capability handed to the tracker and the local update
// channel. Implementations are safe for concurrent use.
type Handle interface {
	// TrackProject attempts one replication of the project. On success it
	// returns the peer the project was fetched from and fetched=true; a
	// fetched=false result with a nil error means the local copy was
	// already up to date. Retryable failures are ErrNotFound and
	// ErrTimeout; any other error is fatal to the caller.
	TrackProject(ctx context.Context, id urn.URN) (identity.PeerID, bool, error)

	// UpdateRefs refreshes the signed refs of the project and returns the
	// resulting head object id.
	UpdateRefs(ctx context.Context, id urn.URN) (plumbing.Hash, error)
}

// Service is the protocol runtime contract the client dispatches to.
type Service interface {
	Track(ctx context.Context, id urn.URN) (identity.PeerID, bool, error)
	UpdateRefs(ctx context.Context, id urn.URN) (plumbing.Hash, error)
}

// Config holds the client's operating parameters.
type Config struct {
	// RequestTimeout bounds a single Track or UpdateRefs dispatch. An
	// expired dispatch surfaces to the caller as ErrTimeout.
	RequestTimeout time.Duration

	// Peers is the operator-pinned peer set. The client stores it but does
	// not consult it when dispatching; replication is not restricted by it.
	Peers []identity.PeerID

	// AllowUnknownPeers is the operator's unknown-peer flag. The client
	// stores it but does not consult it when dispatching.
	AllowUnknownPeers bool
}

const defaultRequestTimeout = time.Minute

type reqKind int

const (
	reqTrack reqKind = iota
	reqUpdateRefs
)

type request struct {
	kind reqKind
	id   urn.URN
	resp chan response
}

type response struct {
	peer    identity.PeerID
	fetched bool
	oid     plumbing.Hash
	err     error
}

// Client serializes handle requests onto the protocol service. Requests flow
// over a channel so that handles never share mutable state with the runtime.
type Client struct {
	svc      Service
	signer   identity.Signer
	cfg      Config
	requests chan request
	done     chan struct{}
}

// NewClient creates a client dispatching to the given service. The signer is
// the node identity injected into the protocol runtime.
func NewClient(signer identity.Signer, svc Service, cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	return &Client{
		svc:      svc,
		signer:   signer,
		cfg:      cfg,
		requests: make(chan request, 64),
		done:     make(chan struct{}),
	}
}

// Handle returns a handle bound to this client.
func (c *Client) Handle() Handle {
	return &clientHandle{c: c}
}

// PeerID derives the client's own peer identity from its signer.
func (c *Client) PeerID() (identity.PeerID, error) {
	return identity.PeerIDFromPublicKey(c.signer.PublicKey())
}

// Run processes handle requests until ctx is cancelled. Requests are served
// one at a time; a dispatch that outlives the request timeout is reported to
// the caller as ErrTimeout.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck // Want passthrough
		case req := <-c.requests:
			rctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
			resp := c.dispatch(rctx, req)
			cancel()

			// The response channel is buffered; callers that gave up are
			// not waited on.
			select {
			case req.resp <- resp:
			default:
			}
		}
	}
}

func (c *Client) dispatch(ctx context.Context, req request) response {
	var resp response
	switch req.kind {
	case reqTrack:
		resp.peer, resp.fetched, resp.err = c.svc.Track(ctx, req.id)
	case reqUpdateRefs:
		resp.oid, resp.err = c.svc.UpdateRefs(ctx, req.id)
	}
	if resp.err != nil && errors.Is(resp.err, context.DeadlineExceeded) {
		resp.err = fmt.Errorf("%w: %s", ErrTimeout, req.id)
	}
	return resp
}

type clientHandle struct {
	c *Client
}

var _ Handle = (*clientHandle)(nil)

func (h *clientHandle) TrackProject(ctx context.Context, id urn.URN) (identity.PeerID, bool, error) {
	resp, err := h.send(ctx, request{kind: reqTrack, id: id, resp: make(chan response, 1)})
	if err != nil {
		return identity.PeerID{}, false, err
	}
	return resp.peer, resp.fetched, resp.err
}

func (h *clientHandle) UpdateRefs(ctx context.Context, id urn.URN) (plumbing.Hash, error) {
	resp, err := h.send(ctx, request{kind: reqUpdateRefs, id: id, resp: make(chan response, 1)})
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return resp.oid, resp.err
}

func (h *clientHandle) send(ctx context.Context, req request) (response, error) {
	select {
	case h.c.requests <- req:
	case <-h.c.done:
		return response{}, ErrClosed
	case <-ctx.Done():
		return response{}, ctx.Err() //nolint:wrapcheck // Want passthrough
	}

	select {
	case resp := <-req.resp:
		return resp, nil
	case <-h.c.done:
		return response{}, ErrClosed
	case <-ctx.Done():
		return response{}, ctx.Err() //nolint:wrapcheck // Want passthrough
	}
}
