/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package undo keeps memory-capped undo/redo history of script snapshots.
package undo

import (
	"sync"
	"time"
)

// Snapshot is an opaque encoded state of one script.
// Key groups snapshots into independent histories (the script id).
type Snapshot struct {
	Key  string
	Blob []byte
	TS   time.Time
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap over all histories; oldest undo entries go first.
	MaxBytes int
	// MaxPerKey limits undo depth per key (0 means unlimited).
	MaxPerKey int
	// MinInterval coalesces pushes for the same key that arrive within the interval:
	// the earlier snapshot is kept so one undo skips the whole burst. Zero disables it.
	MinInterval time.Duration
}

// DefaultConfig suits interactive editing.
func DefaultConfig() Config {
	return Config{MaxBytes: 16 * 1024 * 1024, MaxPerKey: 200, MinInterval: 250 * time.Millisecond}
}

// Manager stores per-key undo/redo stacks. It is safe for concurrent use.
type Manager struct {
	cfg        Config
	mu         sync.Mutex
	undo       map[string][]Snapshot
	redo       map[string][]Snapshot
	totalBytes int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultConfig().MaxBytes
	}
	return &Manager{cfg: cfg, undo: make(map[string][]Snapshot), redo: make(map[string][]Snapshot)}
}

// Push records the state that existed before a change and clears the redo history.
func (m *Manager) Push(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropRedoLocked(s.Key)
	stack := m.undo[s.Key]
	if n := len(stack); n > 0 && m.cfg.MinInterval > 0 && s.TS.Sub(stack[n-1].TS) < m.cfg.MinInterval {
		// keep the older state but refresh its timestamp so a steady burst stays one entry
		stack[n-1].TS = s.TS
		return
	}
	m.undo[s.Key] = append(stack, s)
	m.totalBytes += len(s.Blob)
	m.enforceCapsLocked(s.Key)
}

// Undo returns the previous state for key and files current under redo.
func (m *Manager) Undo(key string, current Snapshot) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[key]
	if len(stack) == 0 {
		return Snapshot{}, false
	}
	prev := stack[len(stack)-1]
	m.undo[key] = stack[:len(stack)-1]
	m.totalBytes -= len(prev.Blob)
	current.Key = key
	m.redo[key] = append(m.redo[key], current)
	m.totalBytes += len(current.Blob)
	m.enforceCapsLocked(key)
	return prev, true
}

// Redo reverses the last Undo for key, filing current under undo.
func (m *Manager) Redo(key string, current Snapshot) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[key]
	if len(r) == 0 {
		return Snapshot{}, false
	}
	next := r[len(r)-1]
	m.redo[key] = r[:len(r)-1]
	m.totalBytes -= len(next.Blob)
	current.Key = key
	m.undo[key] = append(m.undo[key], current)
	m.totalBytes += len(current.Blob)
	m.enforceCapsLocked(key)
	return next, true
}

// CanUndo reports whether key has undo history.
func (m *Manager) CanUndo(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo[key]) > 0
}

// CanRedo reports whether key has redo history.
func (m *Manager) CanRedo(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo[key]) > 0
}

// Clear drops both histories of key.
func (m *Manager) Clear(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.undo[key] {
		m.totalBytes -= len(s.Blob)
	}
	m.dropRedoLocked(key)
	delete(m.undo, key)
	if m.totalBytes < 0 {
		m.totalBytes = 0
	}
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, keys int, undoDepth int, redoDepth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.undo {
		if len(v) > 0 {
			keys++
		}
		undoDepth += len(v)
	}
	for _, v := range m.redo {
		redoDepth += len(v)
	}
	return m.totalBytes, keys, undoDepth, redoDepth
}

func (m *Manager) dropRedoLocked(key string) {
	for _, s := range m.redo[key] {
		m.totalBytes -= len(s.Blob)
	}
	delete(m.redo, key)
}

func (m *Manager) enforceCapsLocked(key string) {
	if m.cfg.MaxPerKey > 0 {
		stack := m.undo[key]
		if extra := len(stack) - m.cfg.MaxPerKey; extra > 0 {
			for _, s := range stack[:extra] {
				m.totalBytes -= len(s.Blob)
			}
			m.undo[key] = append([]Snapshot(nil), stack[extra:]...)
		}
	}
	// global cap: drop the oldest undo entry across all keys until under budget
	for m.totalBytes > m.cfg.MaxBytes {
		oldestKey := ""
		var oldestTS time.Time
		found := false
		for k, stack := range m.undo {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldestKey, oldestTS, found = k, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := m.undo[oldestKey]
		m.totalBytes -= len(stack[0].Blob)
		if len(stack) == 1 {
			delete(m.undo, oldestKey)
		} else {
			m.undo[oldestKey] = stack[1:]
		}
	}
}
