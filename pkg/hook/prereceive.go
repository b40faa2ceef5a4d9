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

// Package hook implements the git-server pre-receive authenticator.
//
// The host git daemon invokes the hook once per push with one line per ref
// to be updated on standard input:
//
//	<sha1-old> SP <sha1-new> SP <refname> LF
//
// Pushes are accepted only when they carry a good, fresh push certificate
// whose signer is authorized and owns every updated ref. The hook either
// authorizes all proposed updates or rejects the entire batch.
package hook

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/alexjg/radicle-client-services/pkg/identity"
)

// RefUpdate is one proposed ref change. A zero old oid is a create; a zero
// new oid is a delete.
type RefUpdate struct {
	RefName string
	Old     plumbing.Hash
	New     plumbing.Hash
}

// PreReceive provides access to the standard input values passed into the
// pre-receive hook, as well as the environment used to process it.
type PreReceive struct {
	env            *Env
	updates        []RefUpdate
	authorizedKeys []string
	keyFingerprint string
	stderr         io.Writer
}

// New parses the proposed ref updates from r against the given environment.
// Diagnostics intended for the pusher are written to stderr.
func New(env *Env, r io.Reader, stderr io.Writer) (*PreReceive, error) {
	if stderr == nil {
		stderr = io.Discard
	}

	var updates []RefUpdate
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		update, err := parseUpdate(line)
		if err != nil {
			return nil, err
		}
		updates = append(updates, update)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ref updates: %w", err)
	}

	if env.CertKey == "" {
		return nil, &UnauthorizedError{Reason: "push certificate is not available"}
	}

	return &PreReceive{
		env:            env,
		updates:        updates,
		authorizedKeys: env.AuthorizedKeys,
		keyFingerprint: env.CertKey,
		stderr:         stderr,
	}, nil
}

func parseUpdate(line string) (RefUpdate, error) {
	fields := strings.Split(line, " ")
	if len(fields) != 3 {
		return RefUpdate{}, fmt.Errorf("malformed ref update line %q", line)
	}
	old, err := parseOid(fields[0])
	if err != nil {
		return RefUpdate{}, err
	}
	newOid, err := parseOid(fields[1])
	if err != nil {
		return RefUpdate{}, err
	}
	return RefUpdate{RefName: fields[2], Old: old, New: newOid}, nil
}

// oidHexLen is the length of a hex-encoded SHA-1 object id.
const oidHexLen = 40

func parseOid(s string) (plumbing.Hash, error) {
	if len(s) != oidHexLen {
		return plumbing.ZeroHash, fmt.Errorf("malformed object id %q", s)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("malformed object id %q: %w", s, err)
	}
	return plumbing.NewHash(s), nil
}

// Run executes the authorization state machine. A nil return authorizes the
// whole batch; any error rejects it.
func (p *PreReceive) Run(ctx context.Context) error {
	fmt.Fprintln(p.stderr, "Running pre-receive hook...")

	if _, err := git.PlainOpen(p.env.GitDir); err != nil {
		return fmt.Errorf("failed to open repository %q: %w", p.env.GitDir, err)
	}

	// All ref operations are relative to the project namespace; a push
	// without one has nowhere to land.
	if p.env.GitNamespace == "" {
		return fmt.Errorf("%w: GIT_NAMESPACE is not set", ErrNamespaceNotFound)
	}

	if err := p.verifyCertificate(ctx); err != nil {
		return err
	}
	if err := p.checkAuthorizedKey(); err != nil {
		return err
	}
	return p.authorizeRefUpdates()
}

// verifyCertificate succeeds iff the certificate signature is good and the
// nonce proved fresh.
func (p *PreReceive) verifyCertificate(_ context.Context) error {
	fmt.Fprintln(p.stderr, "Verifying certificate...")

	status := CertStatus(p.env.CertStatus)
	if !status.OK() {
		fmt.Fprintf(p.stderr, "Bad signature for push certificate: %q\n", string(status))
		return ErrFailedCertificateVerification
	}

	switch nonce := CertNonceStatus(p.env.CertNonceStatus); nonce {
	case NonceStatusOK:
		return nil
	case NonceStatusUnknown:
		fmt.Fprintln(p.stderr, "Invalid request, please sign push, i.e. `git push --signed ...`")
	case NonceStatusSlop:
		fmt.Fprintln(p.stderr, "Received `SLOP` certificate status, please re-submit signed push to request new certificate")
	default:
		fmt.Fprintf(p.stderr, "Received invalid certificate nonce status: %q\n", string(nonce))
	}
	return ErrFailedCertificateVerification
}

// checkAuthorizedKey checks the signer's fingerprint against the authorized
// keyring, unless the operator allows unauthorized keys.
func (p *PreReceive) checkAuthorizedKey() error {
	fmt.Fprintln(p.stderr, "Authorizing...")

	if p.env.AllowUnauthorizedKeys {
		fmt.Fprintln(p.stderr, "Unauthorized keys allowed.")
		return nil
	}

	fmt.Fprintf(p.stderr, "Checking provided key %s...\n", p.keyFingerprint)
	if slices.Contains(p.authorizedKeys, p.keyFingerprint) {
		fmt.Fprintf(p.stderr, "Key %s is authorized to push.\n", p.keyFingerprint)
		return nil
	}
	return &UnauthorizedError{Reason: "key is not authorized to push"}
}

// authorizeRefUpdates makes sure the push certificate is signed by the same
// key as the owner of every updated ref: updates may only touch refs under
// refs/remotes/<peer> where <peer> is the signer's identity.
func (p *PreReceive) authorizeRefUpdates() error {
	encoded, ok := strings.CutPrefix(p.keyFingerprint, identity.FingerprintPrefix)
	if !ok {
		return &UnauthorizedError{Reason: "key fingerprint is not a SHA-256 hash"}
	}
	expected, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return &UnauthorizedError{Reason: "key fingerprint is not valid"}
	}

	for _, update := range p.updates {
		peer, _, err := ParseRef(update.RefName)
		if err != nil {
			return &InvalidRefError{Ref: update.RefName}
		}
		fp, err := identity.SSHFingerprint(peer)
		if err != nil {
			return &InvalidRefError{Ref: update.RefName}
		}
		if subtle.ConstantTimeCompare(expected, fp) != 1 {
			return &UnauthorizedError{Reason: "signer does not match remote ref"}
		}
	}
	return nil
}
