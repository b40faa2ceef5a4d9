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
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// Env is the configuration snapshot git exposes to the pre-receive hook,
// plus the operator-set authorization options.
type Env struct {
	GitDir          string `env:"GIT_DIR,required"`
	GitNamespace    string `env:"GIT_NAMESPACE"`
	CertStatus      string `env:"GIT_PUSH_CERT_STATUS"`
	CertNonceStatus string `env:"GIT_PUSH_CERT_NONCE_STATUS"`

	// CertKey is the SSH fingerprint of the key that signed the push
	// certificate, as "SHA256:<base64>".
	CertKey string `env:"GIT_PUSH_CERT_KEY"`

	// AuthorizedKeys is the comma-separated fingerprint allowlist.
	AuthorizedKeys []string `env:"AUTHORIZED_KEYS"`

	// AllowUnauthorizedKeys skips the allowlist check.
	AllowUnauthorizedKeys bool `env:"ALLOW_UNAUTHORIZED_KEYS"`
}

// NewEnv reads the hook environment from process environment variables.
func NewEnv(ctx context.Context) (*Env, error) {
	return newEnv(ctx, envconfig.OsLookuper())
}

func newEnv(ctx context.Context, lu envconfig.Lookuper) (*Env, error) {
	var env Env
	if err := envconfig.ProcessWith(ctx, &env, lu); err != nil {
		return nil, fmt.Errorf("failed to parse hook environment: %w", err)
	}
	return &env, nil
}
