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

import "errors"

var (
	// ErrTimeout reports that a request did not complete within the client's
	// request timeout. Callers may retry.
	ErrTimeout = errors.New("p2p: request timed out")

	// ErrNotFound reports that no peer currently provides the project.
	// Callers may retry later.
	ErrNotFound = errors.New("p2p: project not found")

	// ErrClosed reports that the client has shut down. Fatal to callers.
	ErrClosed = errors.New("p2p: client closed")
)
