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

package p2p

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/alexjg/radicle-client-services/pkg/identity"
	"github.com/alexjg/radicle-client-services/pkg/urn"
)

type fakeService struct {
	trackPeer    identity.PeerID
	trackFetched bool
	trackErr     error
	trackDelay   time.Duration

	oid        plumbing.Hash
	updateErr  error
	trackCalls int
}

func (s *fakeService) Track(ctx context.Context, id urn.URN) (identity.PeerID, bool, error) {
	s.trackCalls++
	if s.trackDelay > 0 {
		select {
		case <-time.After(s.trackDelay):
		case <-ctx.Done():
			return identity.PeerID{}, false, ctx.Err()
		}
	}
	return s.trackPeer, s.trackFetched, s.trackErr
}

func (s *fakeService) UpdateRefs(ctx context.Context, id urn.URN) (plumbing.Hash, error) {
	return s.oid, s.updateErr
}

func testSigner(t *testing.T) identity.Signer {
	t.Helper()
	signer, err := identity.NewSigner(bytes.Repeat([]byte{7}, ed25519.SeedSize))
	if err != nil {
		t.Fatal(err)
	}
	return signer
}

func testURN(t *testing.T) urn.URN {
	t.Helper()
	id, err := urn.ParseObjectID("0x000000000000000000000000aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestClient_TrackProject(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	peer, err := identity.PeerIDFromPublicKey(testSigner(t).PublicKey())
	if err != nil {
		t.Fatal(err)
	}

	svc := &fakeService{trackPeer: peer, trackFetched: true}
	client := NewClient(testSigner(t), svc, Config{RequestTimeout: time.Second})
	go client.Run(ctx)

	got, fetched, err := client.Handle().TrackProject(ctx, testURN(t))
	if err != nil {
		t.Fatalf("TrackProject unexpected error: %v", err)
	}
	if !fetched {
		t.Error("TrackProject fetched = false, want true")
	}
	if !got.Equal(peer) {
		t.Errorf("TrackProject peer = %s, want %s", got, peer)
	}
}

func TestClient_TrackProject_Timeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := &fakeService{trackDelay: time.Second}
	client := NewClient(testSigner(t), svc, Config{RequestTimeout: 10 * time.Millisecond})
	go client.Run(ctx)

	_, _, err := client.Handle().TrackProject(ctx, testURN(t))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("TrackProject error = %v, want ErrTimeout", err)
	}
}

func TestClient_Closed(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(testSigner(t), &fakeService{}, Config{})

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		client.Run(ctx)
	}()
	cancel()
	<-runDone

	_, _, err := client.Handle().TrackProject(context.Background(), testURN(t))
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("TrackProject error = %v, want ErrClosed", err)
	}
}

func TestClient_UpdateRefs(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	want := plumbing.NewHash("1111111111111111111111111111111111111111")
	client := NewClient(testSigner(t), &fakeService{oid: want}, Config{RequestTimeout: time.Second})
	go client.Run(ctx)

	got, err := client.Handle().UpdateRefs(ctx, testURN(t))
	if err != nil {
		t.Fatalf("UpdateRefs unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("UpdateRefs = %s, want %s", got, want)
	}
}

func TestParseSeed(t *testing.T) {
	t.Parallel()

	peer, err := identity.PeerIDFromPublicKey(testSigner(t).PublicKey())
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		in      string
		want    Seed
		wantErr bool
	}{
		{
			name: "success",
			in:   peer.String() + "@https://seed.example.com/",
			want: Seed{Peer: peer, Addr: "https://seed.example.com"},
		},
		{
			name:    "missing_separator",
			in:      "https://seed.example.com",
			wantErr: true,
		},
		{
			name:    "bad_peer",
			in:      "nope@https://seed.example.com",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseSeed(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseSeed(%q) succeeded, want error", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSeed(%q) unexpected error: %v", tc.in, err)
			}
			if !got.Peer.Equal(tc.want.Peer) || got.Addr != tc.want.Addr {
				t.Errorf("ParseSeed(%q) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}
