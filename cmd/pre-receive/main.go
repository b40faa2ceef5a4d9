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

// Entry point of the git-server pre-receive hook. The host git daemon execs
// this binary once per push; a non-zero exit rejects every proposed ref
// update.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alexjg/radicle-client-services/pkg/hook"
)

func main() {
	if err := realMain(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func realMain(ctx context.Context) error {
	env, err := hook.NewEnv(ctx)
	if err != nil {
		return err //nolint:wrapcheck // Already wrapped
	}
	pr, err := hook.New(env, os.Stdin, os.Stderr)
	if err != nil {
		return err //nolint:wrapcheck // Already wrapped
	}
	return pr.Run(ctx) //nolint:wrapcheck // Want passthrough
}
