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

// Package dashboard fans org-node lifecycle events out to connected
// dashboard clients over websockets.
package dashboard

import (
	"context"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/abcxyz/pkg/logging"

	"github.com/alexjg/radicle-client-services/pkg/identity"
	"github.com/alexjg/radicle-client-services/pkg/urn"
)

// Kind discriminates event payloads.
type Kind string

const (
	// KindUpdatedRef announces refreshed signed refs for a project.
	KindUpdatedRef Kind = "updated_ref"

	// KindTracked announces a completed project replication.
	KindTracked Kind = "tracked"
)

// Event is a single dashboard notification.
type Event struct {
	Kind Kind            `json:"type"`
	OID  string          `json:"oid,omitempty"`
	URN  urn.URN         `json:"urn"`
	Peer identity.PeerID `json:"peer"`
}

// UpdatedRef builds the event published after a successful UpdateRefs call.
func UpdatedRef(oid plumbing.Hash, id urn.URN, peer identity.PeerID) Event {
	return Event{
		Kind: KindUpdatedRef,
		OID:  oid.String(),
		URN:  id,
		Peer: peer,
	}
}

// Tracked builds the event published after a successful replication.
func Tracked(id urn.URN, peer identity.PeerID) Event {
	return Event{
		Kind: KindTracked,
		URN:  id,
		Peer: peer,
	}
}

// feedSize bounds the feed's buffer. Publishing is non-blocking: an event
// that cannot be buffered is dropped with a log line.
const feedSize = 256

// Feed is the channel lifecycle events are published to.
type Feed struct {
	ch chan Event
}

// NewFeed creates an event feed.
func NewFeed() *Feed {
	return &Feed{ch: make(chan Event, feedSize)}
}

// Publish enqueues an event without blocking. When the feed is saturated the
// event is dropped and logged.
func (f *Feed) Publish(ctx context.Context, e Event) {
	select {
	case f.ch <- e:
	default:
		logging.FromContext(ctx).ErrorContext(ctx, "dashboard feed saturated, dropping event",
			"task", "dashboard",
			"kind", string(e.Kind),
			"urn", e.URN.String())
	}
}

// Events returns the receive side of the feed.
func (f *Feed) Events() <-chan Event {
	return f.ch
}
