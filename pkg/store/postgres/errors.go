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

package postgres

import "errors"

var (
	errNilConfig = errors.New("postgres config is nil")

	// ErrFailedToQuery wraps read-path failures.
	ErrFailedToQuery = errors.New("failed to query")
	// ErrFailedToInsert wraps write-path failures.
	ErrFailedToInsert = errors.New("failed to insert")
	// ErrFailedToScan wraps row decoding failures.
	ErrFailedToScan = errors.New("failed to scan")
)
