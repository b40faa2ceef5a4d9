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

package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TestAnchoredTopic pins the filter topic to the keccak of the event
// signature.
func TestAnchoredTopic(t *testing.T) {
	t.Parallel()

	want := crypto.Keccak256Hash([]byte("Anchored(bytes32,uint32,bytes)"))
	if AnchoredTopic != want {
		t.Errorf("AnchoredTopic = %s, want %s", AnchoredTopic, want)
	}
}

// TestSubscriber_DialFailure verifies the task terminates instead of
// reconnecting when the endpoint is unreachable.
func TestSubscriber_DialFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := New("ws://127.0.0.1:1", nil)
	out := make(chan types.Log, 1)

	done := make(chan error, 1)
	go func() {
		done <- sub.Run(ctx, out)
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Run returned nil for an unreachable endpoint")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not terminate on dial failure")
	}
}
