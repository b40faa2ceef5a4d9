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
	"encoding/hex"
	"testing"

	"github.com/alexjg/radicle-client-services/pkg/indexer"
	"github.com/alexjg/radicle-client-services/pkg/urn"
)

// TestProcessAnchors_SkipsMalformed feeds one well-formed and one truncated
// anchor; exactly one project id must reach the work channel, equal to the
// last 20 bytes of the well-formed anchor.
func TestProcessAnchors_SkipsMalformed(t *testing.T) {
	t.Parallel()

	const oid = "ffeeddccbbaa99887766554433221100ffeeddcc"
	projects := []indexer.Project{
		{
			Timestamp: 1,
			Anchor:    indexer.Anchor{ObjectID: "0x000000000000000000000000" + oid},
			Org:       indexer.Org{ID: "0x5e813e48a81977c6fdd565ed5097eb600c73c4f0"},
		},
		{
			Timestamp: 2,
			Anchor:    indexer.Anchor{ObjectID: "0xdead"},
			Org:       indexer.Org{ID: "0x5e813e48a81977c6fdd565ed5097eb600c73c4f0"},
		},
	}

	work := make(chan urn.URN, WorkChannelSize)
	if err := ProcessAnchors(context.Background(), projects, work); err != nil {
		t.Fatalf("ProcessAnchors unexpected error: %v", err)
	}
	close(work)

	var got []urn.URN
	for id := range work {
		got = append(got, id)
	}
	if len(got) != 1 {
		t.Fatalf("enqueued %d ids, want 1", len(got))
	}
	if gotHex := hex.EncodeToString(got[0].Bytes()); gotHex != oid {
		t.Errorf("enqueued %s, want %s", gotHex, oid)
	}
}

func TestProcessURNs(t *testing.T) {
	t.Parallel()

	ids := []urn.URN{trackerURN(t, 0x01), trackerURN(t, 0x02)}
	work := make(chan urn.URN, WorkChannelSize)
	if err := ProcessURNs(context.Background(), ids, work); err != nil {
		t.Fatalf("ProcessURNs unexpected error: %v", err)
	}
	close(work)

	var got []urn.URN
	for id := range work {
		got = append(got, id)
	}
	if len(got) != len(ids) {
		t.Fatalf("enqueued %d ids, want %d", len(got), len(ids))
	}
	for i := range ids {
		if got[i] != ids[i] {
			t.Errorf("enqueued[%d] = %s, want %s", i, got[i], ids[i])
		}
	}
}

func TestProcessAnchors_Empty(t *testing.T) {
	t.Parallel()

	work := make(chan urn.URN) // unbuffered: any send would deadlock
	if err := ProcessAnchors(context.Background(), nil, work); err != nil {
		t.Fatalf("ProcessAnchors unexpected error: %v", err)
	}
}
