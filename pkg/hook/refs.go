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

package hook

import (
	"fmt"
	"strings"

	"github.com/alexjg/radicle-client-services/pkg/identity"
)

// remotesPrefix is where per-peer refs live inside a project namespace.
const remotesPrefix = "refs/remotes/"

// ParseRef splits a namespace-relative refname of the form
// refs/remotes/<peer>/<tail> into the owning peer and the remaining tail.
func ParseRef(refname string) (identity.PeerID, string, error) {
	rest, ok := strings.CutPrefix(refname, remotesPrefix)
	if !ok {
		return identity.PeerID{}, "", fmt.Errorf("refname %q is not under %s", refname, remotesPrefix)
	}
	peerStr, tail, ok := strings.Cut(rest, "/")
	if !ok || tail == "" {
		return identity.PeerID{}, "", fmt.Errorf("refname %q has no tail after the peer", refname)
	}
	peer, err := identity.DecodePeerID(peerStr)
	if err != nil {
		return identity.PeerID{}, "", fmt.Errorf("refname %q has an invalid peer: %w", refname, err)
	}
	return peer, tail, nil
}
