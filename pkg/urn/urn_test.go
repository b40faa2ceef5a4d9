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

package urn

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const (
	testOid      = "0123456789abcdef0123456789abcdef01234567"
	testObjectID = "0x000000000000000000000000" + testOid
)

func TestParseObjectID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "success",
			in:   testObjectID,
			want: testOid,
		},
		{
			name: "last_20_bytes_taken",
			in:   "0xffffffffffffffffffffffff" + testOid,
			want: testOid,
		},
		{
			name:    "missing_prefix",
			in:      "000000000000000000000000" + testOid,
			wantErr: true,
		},
		{
			name:    "too_short",
			in:      "0xdead",
			wantErr: true,
		},
		{
			name:    "too_long",
			in:      testObjectID + "00",
			wantErr: true,
		},
		{
			name:    "not_hex",
			in:      "0x" + "zz0000000000000000000000" + testOid,
			wantErr: true,
		},
		{
			name:    "empty",
			in:      "",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseObjectID(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Fatalf("ParseObjectID(%q) = %v, want ErrInvalid", tc.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseObjectID(%q) unexpected error: %v", tc.in, err)
			}
			if diff := cmp.Diff(tc.want, hex.EncodeToString(got.Bytes())); diff != "" {
				t.Errorf("ParseObjectID(%q) diff (-want, +got):\n%s", tc.in, diff)
			}
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	t.Parallel()

	id, err := ParseObjectID(testObjectID)
	if err != nil {
		t.Fatal(err)
	}

	// Canonical form.
	got, err := Parse(id.String())
	if err != nil {
		t.Fatalf("Parse(%q) unexpected error: %v", id.String(), err)
	}
	if got != id {
		t.Errorf("Parse(String()) = %s, want %s", got, id)
	}

	// Bare identifier, as received on the update socket.
	got, err = Parse(id.ID())
	if err != nil {
		t.Fatalf("Parse(%q) unexpected error: %v", id.ID(), err)
	}
	if got != id {
		t.Errorf("Parse(ID()) = %s, want %s", got, id)
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "rad:git:", "rad:git:!!!!", "rad:git:yb"} {
		if _, err := Parse(in); !errors.Is(err, ErrInvalid) {
			t.Errorf("Parse(%q) = %v, want ErrInvalid", in, err)
		}
	}
}

func TestURN_MarshalText(t *testing.T) {
	t.Parallel()

	id, err := ParseObjectID(testObjectID)
	if err != nil {
		t.Fatal(err)
	}
	b, err := id.MarshalText()
	if err != nil {
		t.Fatal(err)
	}

	var got URN
	if err := got.UnmarshalText(b); err != nil {
		t.Fatal(err)
	}
	if got != id {
		t.Errorf("UnmarshalText(MarshalText()) = %s, want %s", got, id)
	}
}
