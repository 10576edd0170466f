/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package undo

import (
	"testing"
	"time"
)

func TestUndoRedoRoundTrip(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1 << 20, MaxPerKey: 10})
	t0 := time.Now()
	m.Push(Snapshot{Key: "s", Blob: []byte("v1"), TS: t0})
	m.Push(Snapshot{Key: "s", Blob: []byte("v2"), TS: t0.Add(time.Second)})
	// current state is v3
	prev, ok := m.Undo("s", Snapshot{Blob: []byte("v3"), TS: t0.Add(2 * time.Second)})
	if !ok || string(prev.Blob) != "v2" {
		t.Fatalf("undo expected v2, got ok=%v blob=%q", ok, prev.Blob)
	}
	prev, ok = m.Undo("s", Snapshot{Blob: []byte("v2")})
	if !ok || string(prev.Blob) != "v1" {
		t.Fatalf("second undo expected v1, got ok=%v blob=%q", ok, prev.Blob)
	}
	if _, ok := m.Undo("s", Snapshot{Blob: []byte("v1")}); ok {
		t.Fatalf("history should be exhausted")
	}
	next, ok := m.Redo("s", Snapshot{Blob: []byte("v1")})
	if !ok || string(next.Blob) != "v2" {
		t.Fatalf("redo expected v2, got ok=%v blob=%q", ok, next.Blob)
	}
	next, ok = m.Redo("s", Snapshot{Blob: []byte("v2")})
	if !ok || string(next.Blob) != "v3" {
		t.Fatalf("redo expected v3, got ok=%v blob=%q", ok, next.Blob)
	}
	if m.CanRedo("s") {
		t.Fatalf("redo should be exhausted")
	}
}

func TestPushClearsRedo(t *testing.T) {
	m := NewManager(Config{})
	m.Push(Snapshot{Key: "s", Blob: []byte("a"), TS: time.Now()})
	if _, ok := m.Undo("s", Snapshot{Blob: []byte("b")}); !ok {
		t.Fatalf("undo failed")
	}
	if !m.CanRedo("s") {
		t.Fatalf("expected redo entry")
	}
	m.Push(Snapshot{Key: "s", Blob: []byte("a"), TS: time.Now()})
	if m.CanRedo("s") {
		t.Fatalf("new change must clear redo")
	}
}

func TestCoalesceKeepsOlderState(t *testing.T) {
	m := NewManager(Config{MinInterval: 50 * time.Millisecond})
	t0 := time.Now()
	m.Push(Snapshot{Key: "s", Blob: []byte("1"), TS: t0})
	m.Push(Snapshot{Key: "s", Blob: []byte("2"), TS: t0.Add(10 * time.Millisecond)})
	m.Push(Snapshot{Key: "s", Blob: []byte("3"), TS: t0.Add(40 * time.Millisecond)})
	if _, _, depth, _ := m.Stats(); depth != 1 {
		t.Fatalf("expected coalesced to 1 snapshot, got %d", depth)
	}
	prev, ok := m.Undo("s", Snapshot{Blob: []byte("4")})
	if !ok || string(prev.Blob) != "1" {
		t.Fatalf("expected the pre-burst state '1', got ok=%v blob=%q", ok, prev.Blob)
	}
}

func TestDepthCap(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1 << 20, MaxPerKey: 2})
	for i := 0; i < 10; i++ {
		m.Push(Snapshot{Key: "s", Blob: []byte("xxxxx"), TS: time.Now().Add(time.Duration(i) * time.Second)})
	}
	if _, _, depth, _ := m.Stats(); depth != 2 {
		t.Fatalf("expected MaxPerKey cap to limit to 2, got %d", depth)
	}
}

func TestGlobalPruneAcrossKeys(t *testing.T) {
	m := NewManager(Config{MaxBytes: 8})
	t0 := time.Now()
	m.Push(Snapshot{Key: "old", Blob: []byte("xxxx"), TS: t0})
	m.Push(Snapshot{Key: "new", Blob: []byte("yyyy"), TS: t0.Add(time.Second)})
	m.Push(Snapshot{Key: "new", Blob: []byte("zzzz"), TS: t0.Add(2 * time.Second)})

	if m.CanUndo("old") {
		t.Fatalf("expected oldest key to have been pruned")
	}
	if !m.CanUndo("new") {
		t.Fatalf("expected newer key to keep history")
	}
}

func TestClearAndStats(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024})
	m.Push(Snapshot{Key: "s", Blob: []byte("abcdef"), TS: time.Now()})
	if _, ok := m.Undo("s", Snapshot{Blob: []byte("ghi")}); !ok {
		t.Fatalf("undo failed")
	}
	m.Push(Snapshot{Key: "s", Blob: []byte("ghi"), TS: time.Now()})
	tb, keys, u, _ := m.Stats()
	if tb == 0 || keys != 1 || u != 1 {
		t.Fatalf("unexpected stats before clear: tb=%d keys=%d undo=%d", tb, keys, u)
	}
	m.Clear("s")
	tb, keys, u, r := m.Stats()
	if tb != 0 || keys != 0 || u != 0 || r != 0 {
		t.Fatalf("expected cleared stats to be zero, got tb=%d keys=%d undo=%d redo=%d", tb, keys, u, r)
	}
}
