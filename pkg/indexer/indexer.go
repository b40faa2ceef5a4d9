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

// Package indexer queries the org subgraph for anchored projects.
//
// The subgraph is an off-chain queryable view over historical anchors; the
// org node uses it to bootstrap and to resolve live chain events back into
// project records.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shurcooL/graphql"

	"github.com/alexjg/radicle-client-services/pkg/urn"
)

// BigInt is the subgraph's BigInt scalar. Timestamps are queried with it.
type BigInt uint64

// Bytes is the subgraph's Bytes scalar, used for org addresses.
type Bytes string

// Timestamp is an unsigned timestamp that the subgraph serializes as a
// decimal string.
type Timestamp uint64

// UnmarshalJSON accepts both string and number encodings.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	*t = Timestamp(v)
	return nil
}

// Anchor is the on-chain announcement of a project's content address.
type Anchor struct {
	ObjectID  string `graphql:"objectId" json:"objectId"`
	Multihash string `graphql:"multihash" json:"multihash"`
}

// Org identifies the anchoring org by its contract address.
type Org struct {
	ID string `graphql:"id" json:"id"`
}

// Project is a single indexer record.
type Project struct {
	Timestamp Timestamp `graphql:"timestamp" json:"timestamp"`
	Anchor    Anchor    `graphql:"anchor"    json:"anchor"`
	Org       Org       `graphql:"org"       json:"org"`
}

// URN computes the project identifier from the record's anchor.
func (p *Project) URN() (urn.URN, error) {
	return urn.ParseObjectID(p.Anchor.ObjectID)
}

// TransportError is a network-level query failure.
type TransportError struct {
	err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("indexer transport error: %v", e.err)
}

func (e *TransportError) Unwrap() error { return e.err }

// DecodeError is a malformed-payload query failure.
type DecodeError struct {
	err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("indexer decode error: %v", e.err)
}

func (e *DecodeError) Unwrap() error { return e.err }

// Client queries a subgraph endpoint. It performs no retries; callers own
// the retry policy.
type Client struct {
	url string
	gql *graphql.Client
}

// New creates a client for the given subgraph URL.
func New(subgraph string) *Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &Client{
		url: subgraph,
		gql: graphql.NewClient(subgraph, httpClient),
	}
}

// URL returns the configured subgraph endpoint.
func (c *Client) URL() string { return c.url }

// Query returns the projects anchored since the given timestamp. With an
// empty org set it queries across all orgs; otherwise it restricts the query
// to the given org addresses.
func (c *Client) Query(ctx context.Context, sinceTS uint64, orgs []common.Address) ([]Project, error) {
	if len(orgs) == 0 {
		var q struct {
			Projects []Project `graphql:"projects(where: {timestamp_gte: $timestamp})"`
		}
		vars := map[string]any{
			"timestamp": BigInt(sinceTS),
		}
		if err := c.gql.Query(ctx, &q, vars); err != nil {
			return nil, classify(err)
		}
		return q.Projects, nil
	}

	addrs := make([]Bytes, 0, len(orgs))
	for _, org := range orgs {
		addrs = append(addrs, Bytes(strings.ToLower(org.Hex())))
	}

	var q struct {
		Projects []Project `graphql:"projects(where: {timestamp_gte: $timestamp, org_in: $orgs})"`
	}
	vars := map[string]any{
		"timestamp": BigInt(sinceTS),
		"orgs":      addrs,
	}
	if err := c.gql.Query(ctx, &q, vars); err != nil {
		return nil, classify(err)
	}
	return q.Projects, nil
}

// classify splits query failures into the transport and decode halves of the
// error taxonomy.
func classify(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return &TransportError{err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return &TransportError{err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{err: err}
	}
	return &DecodeError{err: err}
}
