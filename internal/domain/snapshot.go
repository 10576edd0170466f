/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SnapshotVersion is the current snapshot envelope version.
const SnapshotVersion = 1

type snapshotEnvelope struct {
	Version int     `json:"version"`
	Script  *Script `json:"script"`
}

// EncodeSnapshot serializes a script into an opaque, versioned blob that stores can keep.
func EncodeSnapshot(s *Script) ([]byte, error) {
	if s == nil {
		return nil, ErrNoScript
	}
	return json.Marshal(snapshotEnvelope{Version: SnapshotVersion, Script: s})
}

// DecodeSnapshot restores a script written by EncodeSnapshot.
func DecodeSnapshot(b []byte) (*Script, error) {
	var env snapshotEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if env.Version == 0 || env.Version > SnapshotVersion {
		return nil, fmt.Errorf("decode snapshot: unsupported version %d", env.Version)
	}
	if env.Script == nil {
		return nil, errors.New("decode snapshot: empty script")
	}
	s := env.Script
	for i := range s.Panels {
		if s.Panels[i].Characters == nil {
			s.Panels[i].Characters = []string{}
		}
	}
	return s, nil
}
