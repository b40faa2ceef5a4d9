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
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// FingerprintPrefix is the text prefix git places in front of a base64
// SHA-256 key fingerprint.
const FingerprintPrefix = "SHA256:"

// SSHFingerprint computes the SHA-256 fingerprint of the peer's public key
// over its canonical ssh wire encoding:
//
//	u32be(len("ssh-ed25519")) || "ssh-ed25519" || u32be(len(key)) || key
//
// The returned slice is the raw 32-byte digest.
func SSHFingerprint(p PeerID) ([]byte, error) {
	raw, err := p.PublicKeyBytes()
	if err != nil {
		return nil, err
	}
	pub, err := ssh.NewPublicKey(ed25519.PublicKey(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to build ssh public key: %w", err)
	}
	sum := sha256.Sum256(pub.Marshal())
	return sum[:], nil
}

// SSHFingerprintString renders the fingerprint the way git and OpenSSH
// display it, as "SHA256:<unpadded base64>".
func SSHFingerprintString(p PeerID) (string, error) {
	fp, err := SSHFingerprint(p)
	if err != nil {
		return "", err
	}
	return FingerprintPrefix + base64.RawStdEncoding.EncodeToString(fp), nil
}
