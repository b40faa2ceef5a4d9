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

package p2p

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/abcxyz/pkg/logging"

	"github.com/alexjg/radicle-client-services/pkg/identity"
	"github.com/alexjg/radicle-client-services/pkg/urn"
)

// Seed is a well-known node projects can be replicated from.
type Seed struct {
	Peer identity.PeerID
	Addr string
}

// ParseSeed parses a "peer@address" seed specification.
func ParseSeed(s string) (Seed, error) {
	peerStr, addr, ok := strings.Cut(s, "@")
	if !ok {
		return Seed{}, fmt.Errorf("invalid seed %q: expected <peer>@<address>", s)
	}
	peer, err := identity.DecodePeerID(peerStr)
	if err != nil {
		return Seed{}, fmt.Errorf("invalid seed %q: %w", s, err)
	}
	return Seed{Peer: peer, Addr: strings.TrimRight(addr, "/")}, nil
}

// GitService replicates project namespaces into the shared bare monorepo by
// fetching from seed nodes. It is the reference Service implementation; a
// full protocol runtime replaces it without the client or its handles
// noticing.
type GitService struct {
	gitDir string
	seeds  []Seed
}

var _ Service = (*GitService)(nil)

// NewGitService creates a service fetching into the bare repository at
// gitDir from the given seeds.
func NewGitService(gitDir string, seeds []Seed) *GitService {
	return &GitService{
		gitDir: gitDir,
		seeds:  seeds,
	}
}

// Track fetches the project from the first seed that provides it. Projects
// land under refs/namespaces/<id>/refs/remotes/<seed-peer>/ in the
// monorepo.
func (s *GitService) Track(ctx context.Context, id urn.URN) (identity.PeerID, bool, error) {
	logger := logging.FromContext(ctx)

	repo, err := git.PlainOpen(s.gitDir)
	if err != nil {
		return identity.PeerID{}, false, fmt.Errorf("failed to open monorepo %q: %w", s.gitDir, err)
	}
	if len(s.seeds) == 0 {
		return identity.PeerID{}, false, fmt.Errorf("%w: no seeds configured", ErrNotFound)
	}

	var lastErr error
	for _, seed := range s.seeds {
		spec := gitconfig.RefSpec(fmt.Sprintf(
			"+refs/*:refs/namespaces/%s/refs/remotes/%s/*", id.ID(), seed.Peer))

		err := repo.FetchContext(ctx, &git.FetchOptions{
			RemoteURL: seed.Addr + "/" + id.ID() + ".git",
			RefSpecs:  []gitconfig.RefSpec{spec},
			Tags:      git.NoTags,
		})
		switch {
		case err == nil:
			return seed.Peer, true, nil
		case errors.Is(err, git.NoErrAlreadyUpToDate):
			return identity.PeerID{}, false, nil
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return identity.PeerID{}, false, err //nolint:wrapcheck // Want passthrough
		default:
			logger.DebugContext(ctx, "seed fetch failed",
				"task", "p2p",
				"urn", id.String(),
				"seed", seed.Peer.String(),
				"error", err)
			lastErr = err
		}
	}
	return identity.PeerID{}, false, fmt.Errorf("%w: %s (last error: %v)", ErrNotFound, id, lastErr)
}

// UpdateRefs resolves the project's current head in the monorepo and returns
// its object id. The head is the namespace's heads/main ref if present, else
// its heads/master ref, else the lexicographically first ref of any kind
// inside the project namespace.
func (s *GitService) UpdateRefs(ctx context.Context, id urn.URN) (plumbing.Hash, error) {
	repo, err := git.PlainOpen(s.gitDir)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to open monorepo %q: %w", s.gitDir, err)
	}

	prefix := fmt.Sprintf("refs/namespaces/%s/", id.ID())
	refs, err := repo.References()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to list references: %w", err)
	}
	defer refs.Close()

	var names []string
	hashes := make(map[string]plumbing.Hash)
	if err := refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().String()
		if !strings.HasPrefix(name, prefix) || ref.Type() != plumbing.HashReference {
			return nil
		}
		names = append(names, name)
		hashes[name] = ref.Hash()
		return nil
	}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to walk references: %w", err)
	}
	if len(names) == 0 {
		return plumbing.ZeroHash, fmt.Errorf("%w: no refs for %s", ErrNotFound, id)
	}

	sort.Strings(names)
	for _, preferred := range []string{"/heads/main", "/heads/master"} {
		for _, name := range names {
			if strings.HasSuffix(name, preferred) {
				return hashes[name], nil
			}
		}
	}
	return hashes[names[0]], nil
}
