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

// Package watcher subscribes to anchor events emitted by org contracts.
package watcher

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/abcxyz/pkg/logging"
)

// AnchoredEvent is the signature of the event the org contract emits when a
// project is anchored.
const AnchoredEvent = "Anchored(bytes32,uint32,bytes)"

// AnchoredTopic is the keccak topic filter derived from the event signature.
var AnchoredTopic = crypto.Keccak256Hash([]byte(AnchoredEvent))

// ChannelSize is the capacity of the subscriber's outbound log channel.
const ChannelSize = 256

// Subscriber streams anchor logs from a WS-capable chain RPC endpoint.
type Subscriber struct {
	rpcURL    string
	addresses []common.Address
}

// New creates a subscriber filtering the Anchored event over the given org
// contract addresses.
func New(rpcURL string, addresses []common.Address) *Subscriber {
	return &Subscriber{
		rpcURL:    rpcURL,
		addresses: addresses,
	}
}

// Run dials the RPC endpoint, installs the log filter, and forwards every
// matching log to out. It performs no reconnection: dial or subscription
// failure terminates the task, leaving restart policy to the orchestrator.
func (s *Subscriber) Run(ctx context.Context, out chan<- types.Log) error {
	logger := logging.FromContext(ctx)

	client, err := ethclient.DialContext(ctx, s.rpcURL)
	if err != nil {
		logger.ErrorContext(ctx, "rpc connection failed, exiting task",
			"task", "subscriber",
			"url", s.rpcURL,
			"error", err)
		return fmt.Errorf("failed to dial rpc endpoint: %w", err)
	}
	defer client.Close()

	query := ethereum.FilterQuery{
		Addresses: s.addresses,
		Topics:    [][]common.Hash{{AnchoredTopic}},
	}
	logs := make(chan types.Log, ChannelSize)
	sub, err := client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		logger.ErrorContext(ctx, "event subscribe failed, exiting task",
			"task", "subscriber",
			"error", err)
		return fmt.Errorf("failed to subscribe to logs: %w", err)
	}
	defer sub.Unsubscribe()

	logger.InfoContext(ctx, "subscribed to anchor events",
		"task", "subscriber",
		"addresses", len(s.addresses))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			logger.ErrorContext(ctx, "subscription terminated, exiting task",
				"task", "subscriber",
				"error", err)
			return fmt.Errorf("subscription failed: %w", err)
		case l := <-logs:
			logger.InfoContext(ctx, "anchor event received",
				"task", "subscriber",
				"address", l.Address.Hex(),
				"block", l.BlockNumber)

			select {
			case out <- l:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
