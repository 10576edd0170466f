/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crash

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"comicstudio/internal/domain"
	"comicstudio/internal/storage"
)

func TestWriteReportCreatesFileInTemp(t *testing.T) {
	path, err := writeReport(nil, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(path) })
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "ComicStudio Crash Report") {
		t.Fatalf("report header missing")
	}
	if !strings.Contains(s, "Panic: boom") {
		t.Fatalf("panic content missing: %s", s)
	}
}

func TestWriteReportNamesScriptButNotItsText(t *testing.T) {
	root := t.TempDir()
	script := &domain.Script{ID: "s-42", Theme: "t", Tone: "x", KeyElements: "k", Panels: []domain.Panel{
		{ID: "p1", Scene: "SECRET SCENE", Dialogue: "SECRET LINE", Characters: []string{}},
	}}
	ph := &storage.ProjectHandle{Root: root, ManifestPath: filepath.Join(root, storage.ManifestFileName),
		Manifest: storage.Manifest{Version: storage.ManifestVersion, Script: script}}

	path, err := writeReport(ph, "kaboom", []byte("stack"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	if !strings.HasPrefix(path, filepath.Join(root, storage.BackupsDirName)) {
		t.Fatalf("expected crash report under backups dir, got %s", path)
	}
	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), "Script: s-42 (1 panels)") {
		t.Fatalf("script summary missing: %s", b)
	}
	if strings.Contains(string(b), "SECRET") {
		t.Fatalf("report leaks panel text: %s", b)
	}
}

func TestRecoverWritesReportAndSnapshot(t *testing.T) {
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	defer func() {
		_ = w.Close()
		os.Stderr = oldStderr
		_, _ = io.Copy(io.Discard, r)
	}()

	code := 0
	oldExit := exitFn
	exitFn = func(c int) { code = c }
	defer func() { exitFn = oldExit }()

	root := t.TempDir()
	script := &domain.Script{ID: "s1", Theme: "t", Tone: "x", KeyElements: "k", Panels: []domain.Panel{}}
	ph, err := storage.InitProject(root, script, nil)
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	func() {
		defer Recover(ph)
		panic("boom")
	}()

	if code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	files, _ := os.ReadDir(filepath.Join(root, storage.BackupsDirName))
	var report, snapshot bool
	for _, f := range files {
		switch {
		case strings.HasPrefix(f.Name(), "crash-") && strings.HasSuffix(f.Name(), ".log"):
			report = true
		case strings.HasSuffix(f.Name(), ".crash"):
			snapshot = true
		}
	}
	if !report || !snapshot {
		t.Fatalf("report=%v snapshot=%v in %v", report, snapshot, files)
	}
}

func TestRecoverWithoutPanicDoesNothing(t *testing.T) {
	called := false
	oldExit := exitFn
	exitFn = func(int) { called = true }
	defer func() { exitFn = oldExit }()

	func() {
		defer Recover(nil)
	}()
	if called {
		t.Fatalf("exit must not be called without a panic")
	}
}
