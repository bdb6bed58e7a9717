/*
 * Copyright 2026 Threatwire Contributors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"errors"
	"fmt"
)

// AuthorizationError rejects a request whose token is invalid, revoked,
// expired, lacks a capability, or targets a group it is not a member of.
// Never retried.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return "unauthorized: " + e.Reason
}

// ValidationError rejects a malformed record or filter. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CorruptionError flags a store state that must never occur, such as two
// token records sharing one token string. Fatal to the request; never
// silently repaired.
type CorruptionError struct {
	Detail string
}

func (e *CorruptionError) Error() string {
	return "store corruption: " + e.Detail
}

// ErrBackendUnavailable marks transient backend failures eligible for
// bounded retry at the channel-send level.
var ErrBackendUnavailable = errors.New("backend unavailable")

// IsAuthorization reports whether err is an authorization rejection.
func IsAuthorization(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

// IsValidation reports whether err is a client-side validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsCorruption reports whether err signals internal store corruption.
func IsCorruption(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}
