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
	"errors"
	"fmt"
)

var (
	// ErrFailedCertificateVerification reports that the push certificate's
	// signature or nonce did not verify.
	ErrFailedCertificateVerification = errors.New("failed certificate verification")

	// ErrNamespaceNotFound reports that the repository opened but the push
	// namespace could not be bound.
	ErrNamespaceNotFound = errors.New("namespace not found")
)

// UnauthorizedError rejects the entire push with a reason shown to the
// pusher.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	return e.Reason
}

// InvalidRefError reports a pushed refname outside the expected namespace
// form.
type InvalidRefError struct {
	Ref string
}

func (e *InvalidRefError) Error() string {
	return fmt.Sprintf("invalid ref pushed: %s", e.Ref)
}
