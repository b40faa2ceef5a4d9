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

// Package urn implements the 20-byte content-addressed project identifier
// used by the org registry and the replication pipeline.
//
// On chain a project is announced as a `bytes32` anchor; only the trailing
// 20 bytes are meaningful, matching the size of a git SHA-1 object id.
package urn

import (
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
)

// Size is the length in bytes of a project identifier.
const Size = 20

// Prefix is the canonical text prefix for a project URN.
const Prefix = "rad:git:"

// objectIDLen is the expected length of an anchor object id, including the
// leading "0x" over 32 hex-encoded bytes.
const objectIDLen = 2 + 64

// encoding is z-base-32, the encoding used for URN identifiers.
var encoding = base32.NewEncoding("ybndrfg8ejkmcpqxot1uwisza345h769").WithPadding(base32.NoPadding)

// ErrInvalid is returned when a URN or anchor object id fails to parse.
var ErrInvalid = fmt.Errorf("invalid urn")

// URN is a 20-byte content-addressed project identifier.
type URN [Size]byte

// ParseObjectID converts an on-chain `bytes32` anchor object id into a URN.
// The input must carry a "0x" prefix and hex-decode to exactly 32 bytes; the
// URN is the trailing 20 bytes.
func ParseObjectID(s string) (URN, error) {
	var u URN

	hexstr, ok := strings.CutPrefix(s, "0x")
	if !ok {
		return u, fmt.Errorf("%w: object id %q is missing the 0x prefix", ErrInvalid, s)
	}
	if len(s) != objectIDLen {
		return u, fmt.Errorf("%w: object id %q is not a bytes32 value", ErrInvalid, s)
	}
	b, err := hex.DecodeString(hexstr)
	if err != nil {
		return u, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	// Only the last 20 bytes hold the git object id.
	copy(u[:], b[len(b)-Size:])
	return u, nil
}

// Parse decodes a URN from its canonical "rad:git:<id>" form, or from a bare
// identifier as received on the local update socket.
func Parse(s string) (URN, error) {
	var u URN

	id := strings.TrimPrefix(s, Prefix)
	if id == "" {
		return u, fmt.Errorf("%w: empty identifier", ErrInvalid)
	}
	b, err := encoding.DecodeString(id)
	if err != nil {
		return u, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if len(b) != Size {
		return u, fmt.Errorf("%w: identifier %q decodes to %d bytes", ErrInvalid, s, len(b))
	}

	copy(u[:], b)
	return u, nil
}

// ID returns the bare z-base-32 identifier without the URN prefix.
func (u URN) ID() string {
	return encoding.EncodeToString(u[:])
}

func (u URN) String() string {
	return Prefix + u.ID()
}

// Bytes returns the identifier as a 20-byte slice.
func (u URN) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, u[:])
	return b
}

// MarshalText implements encoding.TextMarshaler using the canonical form.
func (u URN) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *URN) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
