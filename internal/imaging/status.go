/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package imaging

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// State is the externally visible generation state of a panel.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Status is a transient per-panel view. It is never stored on the panel itself.
type Status struct {
	PanelID   string
	InFlight  int
	Last      State // outcome of the most recently finished request, or idle
	ImageURL  string
	Err       string
	UpdatedAt time.Time
}

// State folds in-flight requests and the last outcome into one value.
func (s Status) State() State {
	if s.InFlight > 0 {
		return StateRunning
	}
	if s.Last == "" {
		return StateIdle
	}
	return s.Last
}

// tracker keeps statuses in a TTL cache: running entries never expire,
// finished ones age out after ttl.
type tracker struct {
	mu    sync.Mutex
	ttl   time.Duration
	items *cache.Cache
	now   func() time.Time
}

func newTracker(ttl time.Duration) *tracker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &tracker{ttl: ttl, items: cache.New(ttl, 2*ttl), now: time.Now}
}

func (t *tracker) get(panelID string) Status {
	if v, ok := t.items.Get(panelID); ok {
		return v.(Status)
	}
	return Status{PanelID: panelID, Last: StateIdle}
}

func (t *tracker) started(panelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(panelID)
	s.InFlight++
	s.UpdatedAt = t.now()
	t.items.Set(panelID, s, cache.NoExpiration)
}

func (t *tracker) finished(panelID string, imageURL string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(panelID)
	if s.InFlight > 0 {
		s.InFlight--
	}
	if err != nil {
		s.Last, s.Err = StateFailed, err.Error()
	} else {
		s.Last, s.Err, s.ImageURL = StateSucceeded, "", imageURL
	}
	s.UpdatedAt = t.now()
	exp := t.ttl
	if s.InFlight > 0 {
		exp = cache.NoExpiration
	}
	t.items.Set(panelID, s, exp)
}

func (t *tracker) forget(panelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(panelID)
	if s.InFlight == 0 {
		t.items.Delete(panelID)
	}
}

func (t *tracker) inFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, it := range t.items.Items() {
		n += it.Object.(Status).InFlight
	}
	return n
}
