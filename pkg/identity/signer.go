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

package identity

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"os"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// Signer is the capability exposed to the protocol client. Implementations
// must be safe for concurrent use.
type Signer interface {
	// PublicKey returns the ed25519 public key of the identity.
	PublicKey() ed25519.PublicKey

	// Sign signs data with the identity's secret key.
	Sign(ctx context.Context, data []byte) ([]byte, error)
}

// keystoreMagic marks a passphrase-encrypted identity file. The container is
// magic || salt(32) || nonce(24) || secretbox(key).
var keystoreMagic = []byte("radicle-keystore-v1\n")

const (
	keystoreSaltLen  = 32
	keystoreNonceLen = 24

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// FileSigner is a Signer backed by key material loaded from a file.
type FileSigner struct {
	key ed25519.PrivateKey
}

var _ Signer = (*FileSigner)(nil)

// LoadSigner reads an identity file. With an empty passphrase the file must
// hold plain key material: either a 32-byte ed25519 seed or a 64-byte
// private key. With a passphrase the file must be an encrypted container.
func LoadSigner(path, passphrase string) (*FileSigner, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity %q: %w", path, err)
	}
	if passphrase != "" {
		return newEncryptedSigner(b, passphrase)
	}
	return NewSigner(b)
}

// NewSigner builds a signer from plain key material.
func NewSigner(b []byte) (*FileSigner, error) {
	switch len(b) {
	case ed25519.SeedSize:
		return &FileSigner{key: ed25519.NewKeyFromSeed(b)}, nil
	case ed25519.PrivateKeySize:
		return &FileSigner{key: ed25519.PrivateKey(bytes.Clone(b))}, nil
	default:
		return nil, fmt.Errorf("invalid key material: expected %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(b))
	}
}

func newEncryptedSigner(b []byte, passphrase string) (*FileSigner, error) {
	rest, ok := bytes.CutPrefix(b, keystoreMagic)
	if !ok {
		return nil, fmt.Errorf("identity file is not an encrypted keystore")
	}
	if len(rest) <= keystoreSaltLen+keystoreNonceLen+secretbox.Overhead {
		return nil, fmt.Errorf("encrypted keystore is truncated")
	}

	salt := rest[:keystoreSaltLen]
	var nonce [keystoreNonceLen]byte
	copy(nonce[:], rest[keystoreSaltLen:keystoreSaltLen+keystoreNonceLen])
	box := rest[keystoreSaltLen+keystoreNonceLen:]

	dk, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	var key [32]byte
	copy(key[:], dk)

	plain, ok := secretbox.Open(nil, box, &nonce, &key)
	if !ok {
		return nil, fmt.Errorf("failed to decrypt keystore: wrong passphrase?")
	}
	return NewSigner(plain)
}

func (s *FileSigner) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

func (s *FileSigner) Sign(_ context.Context, data []byte) ([]byte, error) {
	return ed25519.Sign(s.key, data), nil
}

// PeerID derives the peer identity of the signer's public key.
func (s *FileSigner) PeerID() (PeerID, error) {
	return PeerIDFromPublicKey(s.PublicKey())
}
