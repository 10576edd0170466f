/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package session

import (
	"log/slog"
	"time"
)

// Kind names a notification.
type Kind string

const (
	ScriptDrafted         Kind = "script_drafted"
	PanelAdded            Kind = "panel_added"
	PanelDeleted          Kind = "panel_deleted"
	PanelsReordered       Kind = "panels_reordered"
	PanelGenerated        Kind = "panel_generated"
	PanelGenerationFailed Kind = "panel_generation_failed"
)

// Notification is a transient, user-facing message about a state change.
type Notification struct {
	Kind    Kind
	PanelID string
	Message string
	Err     error
	At      time.Time
}

// Notifications delivers notifications until Close. Slow readers miss messages;
// the session never blocks on delivery.
func (s *Session) Notifications() <-chan Notification { return s.notes }

// Close stops notification delivery and closes the channel.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.notes)
}

func (s *Session) notifyLocked(n Notification) {
	if s.closed {
		return
	}
	if n.At.IsZero() {
		n.At = time.Now()
	}
	select {
	case s.notes <- n:
	default:
		s.log.Debug("notification dropped", slog.String("kind", string(n.Kind)))
	}
}
