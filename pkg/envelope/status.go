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

package envelope

import "encoding/json"

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Status is the common response payload shape.
type Status struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Success wraps data in a success payload.
func Success(data interface{}) (*Status, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Status{Status: StatusSuccess, Data: raw}, nil
}

// Failed builds the failure payload shape.
func Failed(message string) *Status {
	return &Status{Status: StatusFailed, Message: message}
}

// DecodeStatus parses a status payload.
func DecodeStatus(raw []byte) (*Status, error) {
	var s Status
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}

	return &s, nil
}
