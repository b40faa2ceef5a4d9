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
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/alexjg/radicle-client-services/pkg/identity"
	"github.com/alexjg/radicle-client-services/pkg/p2p"
	"github.com/alexjg/radicle-client-services/pkg/urn"
)

// mockHandle replays a scripted sequence of TrackProject outcomes.
type mockHandle struct {
	mu      sync.Mutex
	script  []trackResult
	calls   []urn.URN
	updated []urn.URN
	oid     plumbing.Hash

	// settled is closed once the script is exhausted.
	settled chan struct{}
}

type trackResult struct {
	peer    identity.PeerID
	fetched bool
	err     error
}

func newMockHandle(script ...trackResult) *mockHandle {
	return &mockHandle{
		script:  script,
		settled: make(chan struct{}),
	}
}

func (m *mockHandle) TrackProject(ctx context.Context, id urn.URN) (identity.PeerID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, id)
	if len(m.script) == 0 {
		return identity.PeerID{}, false, nil
	}
	r := m.script[0]
	m.script = m.script[1:]
	if len(m.script) == 0 {
		close(m.settled)
	}
	return r.peer, r.fetched, r.err
}

func (m *mockHandle) UpdateRefs(ctx context.Context, id urn.URN) (plumbing.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, id)
	return m.oid, nil
}

func (m *mockHandle) trackCalls() []urn.URN {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]urn.URN(nil), m.calls...)
}

func trackerURN(t *testing.T, b byte) urn.URN {
	t.Helper()
	var id urn.URN
	for i := range id {
		id[i] = b
	}
	return id
}

// TestTracker_RetryOnTimeout enqueues one id; the handle times out on the
// first attempt and succeeds on the second. The tracker must call the handle
// exactly twice.
func TestTracker_RetryOnTimeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle := newMockHandle(
		trackResult{err: p2p.ErrTimeout},
		trackResult{fetched: true},
	)
	queue := make(chan urn.URN, WorkChannelSize)
	queue <- trackerURN(t, 0xaa)

	done := make(chan error, 1)
	go func() {
		done <- NewTracker(handle, queue, nil).Run(ctx)
	}()

	select {
	case <-handle.settled:
	case <-time.After(5 * time.Second):
		t.Fatal("tracker did not finish the script in time")
	}

	// Give the tracker a beat to (incorrectly) attempt a third call.
	time.Sleep(50 * time.Millisecond)
	if got := handle.trackCalls(); len(got) != 2 {
		t.Fatalf("TrackProject called %d times, want 2", len(got))
	}

	close(queue)
	if err := <-done; err != nil {
		t.Fatalf("tracker returned %v, want nil on closed queue", err)
	}
}

// TestTracker_RequeueNotFound verifies the not-found outcome re-appends to
// the tail instead of dropping the id.
func TestTracker_RequeueNotFound(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle := newMockHandle(
		trackResult{err: p2p.ErrNotFound},
		trackResult{err: p2p.ErrNotFound},
		trackResult{fetched: true},
	)
	queue := make(chan urn.URN, WorkChannelSize)
	queue <- trackerURN(t, 0xbb)

	done := make(chan error, 1)
	go func() {
		done <- NewTracker(handle, queue, nil).Run(ctx)
	}()

	select {
	case <-handle.settled:
	case <-time.After(5 * time.Second):
		t.Fatal("tracker did not finish the script in time")
	}

	want := trackerURN(t, 0xbb)
	for i, got := range handle.trackCalls() {
		if got != want {
			t.Errorf("call %d tracked %s, want %s", i, got, want)
		}
	}

	close(queue)
	if err := <-done; err != nil {
		t.Fatalf("tracker returned %v, want nil on closed queue", err)
	}
}

// TestTracker_DrainInterleavesFreshWork checks that ids arriving while an
// old id keeps failing are attempted within one iteration.
func TestTracker_DrainInterleavesFreshWork(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle := newMockHandle(
		trackResult{err: p2p.ErrNotFound}, // aa
		trackResult{fetched: true},        // bb, drained before aa retries
		trackResult{fetched: true},        // aa
	)
	queue := make(chan urn.URN, WorkChannelSize)
	queue <- trackerURN(t, 0xaa)
	queue <- trackerURN(t, 0xbb)

	done := make(chan error, 1)
	go func() {
		done <- NewTracker(handle, queue, nil).Run(ctx)
	}()

	select {
	case <-handle.settled:
	case <-time.After(5 * time.Second):
		t.Fatal("tracker did not finish the script in time")
	}

	calls := handle.trackCalls()
	wantOrder := []urn.URN{trackerURN(t, 0xaa), trackerURN(t, 0xbb), trackerURN(t, 0xaa)}
	if len(calls) != len(wantOrder) {
		t.Fatalf("TrackProject called %d times, want %d", len(calls), len(wantOrder))
	}
	for i := range wantOrder {
		if calls[i] != wantOrder[i] {
			t.Errorf("call %d = %s, want %s", i, calls[i], wantOrder[i])
		}
	}

	close(queue)
	if err := <-done; err != nil {
		t.Fatalf("tracker returned %v, want nil on closed queue", err)
	}
}

// TestTracker_FatalError verifies that a non-retryable handle error exits
// the task with the error.
func TestTracker_FatalError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fatal := errors.New("handle wedged")
	handle := newMockHandle(trackResult{err: fatal})
	queue := make(chan urn.URN, WorkChannelSize)
	queue <- trackerURN(t, 0xcc)

	err := NewTracker(handle, queue, nil).Run(ctx)
	if !errors.Is(err, fatal) {
		t.Fatalf("tracker returned %v, want %v", err, fatal)
	}
}

// TestTracker_ClosedQueue verifies a clean exit on channel closure.
func TestTracker_ClosedQueue(t *testing.T) {
	t.Parallel()

	queue := make(chan urn.URN)
	close(queue)

	if err := NewTracker(newMockHandle(), queue, nil).Run(context.Background()); err != nil {
		t.Fatalf("tracker returned %v, want nil", err)
	}
}
