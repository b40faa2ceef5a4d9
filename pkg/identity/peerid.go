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

// Package identity provides peer identities and the signing capability
// backing them. A peer is identified by an ed25519 public key.
package identity

import (
	"crypto/ed25519"
	"fmt"

	lcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// PeerID is the opaque identity of a peer, derived from its ed25519 public
// key. The canonical text encoding is the libp2p base58 form.
type PeerID struct {
	id peer.ID
}

// PeerIDFromPublicKey derives a peer identity from a raw ed25519 public key.
func PeerIDFromPublicKey(pub ed25519.PublicKey) (PeerID, error) {
	key, err := lcrypto.UnmarshalEd25519PublicKey(pub)
	if err != nil {
		return PeerID{}, fmt.Errorf("failed to unmarshal public key: %w", err)
	}
	id, err := peer.IDFromPublicKey(key)
	if err != nil {
		return PeerID{}, fmt.Errorf("failed to derive peer id: %w", err)
	}
	return PeerID{id: id}, nil
}

// DecodePeerID parses a peer identity from its canonical text encoding.
func DecodePeerID(s string) (PeerID, error) {
	id, err := peer.Decode(s)
	if err != nil {
		return PeerID{}, fmt.Errorf("failed to decode peer id %q: %w", s, err)
	}
	return PeerID{id: id}, nil
}

// PublicKeyBytes returns the raw 32-byte ed25519 public key embedded in the
// identity.
func (p PeerID) PublicKeyBytes() ([]byte, error) {
	key, err := p.id.ExtractPublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to extract public key: %w", err)
	}
	raw, err := key.Raw()
	if err != nil {
		return nil, fmt.Errorf("failed to read raw public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("unexpected public key size %d", len(raw))
	}
	return raw, nil
}

// IsZero reports whether the identity is the zero value.
func (p PeerID) IsZero() bool {
	return p.id == ""
}

func (p PeerID) Equal(o PeerID) bool {
	return p.id == o.id
}

func (p PeerID) String() string {
	return p.id.String()
}

// MarshalText implements encoding.TextMarshaler.
func (p PeerID) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PeerID) UnmarshalText(b []byte) error {
	id, err := DecodePeerID(string(b))
	if err != nil {
		return err
	}
	*p = id
	return nil
}
