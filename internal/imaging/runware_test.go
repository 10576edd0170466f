/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package imaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// echoRunware answers every inference task with an image URL derived from the prompt.
func echoRunware(t *testing.T, gotBody *[]map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		b, _ := io.ReadAll(r.Body)
		var tasks []map[string]any
		if err := json.Unmarshal(b, &tasks); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if gotBody != nil {
			*gotBody = tasks
		}
		var uuid string
		for _, task := range tasks {
			if task["taskType"] == "imageInference" {
				uuid, _ = task["taskUUID"].(string)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"data":[{"taskType":"imageInference","taskUUID":%q,"imageURL":"https://im.example/%s.png"}]}`, uuid, uuid)
	}))
}

func TestRunwareGenerateSendsTasks(t *testing.T) {
	var body []map[string]any
	srv := echoRunware(t, &body)
	defer srv.Close()

	p := NewRunwareProvider(RunwareConfig{BaseURL: srv.URL + "/", Model: "m@1", Width: 512, Height: 768})
	res, err := p.Generate(context.Background(), "secret-key", Request{Prompt: "a prompt", ResultCount: 1, GuidanceScale: 7})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(res.ImageURL, "https://im.example/") {
		t.Fatalf("unexpected image url %q", res.ImageURL)
	}
	if len(body) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(body))
	}
	if body[0]["taskType"] != "authentication" || body[0]["apiKey"] != "secret-key" {
		t.Fatalf("auth task mismatch: %v", body[0])
	}
	inf := body[1]
	checks := map[string]any{
		"taskType":       "imageInference",
		"positivePrompt": "a prompt",
		"model":          "m@1",
		"width":          512.0,
		"height":         768.0,
		"numberResults":  1.0,
		"CFGScale":       7.0,
		"outputType":     "URL",
	}
	for k, v := range checks {
		if inf[k] != v {
			t.Fatalf("inference %s = %v, want %v", k, inf[k], v)
		}
	}
}

func TestRunwareErrorsArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"errors":[{"code":"invalidApiKey","message":"Invalid API key"}]}`)
	}))
	defer srv.Close()

	_, err := NewRunwareProvider(RunwareConfig{BaseURL: srv.URL}).Generate(context.Background(), "bad", Request{Prompt: "p"})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Code != "invalidApiKey" || pe.Status != http.StatusBadRequest {
		t.Fatalf("unexpected provider error: %+v", pe)
	}
}

func TestRunwareNon2xxWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewRunwareProvider(RunwareConfig{BaseURL: srv.URL}).Generate(context.Background(), "k", Request{Prompt: "p"})
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Status != http.StatusBadGateway {
		t.Fatalf("expected 502 ProviderError, got %v", err)
	}
}

func TestRunwareMalformedAndMissingImage(t *testing.T) {
	malformed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	}))
	defer malformed.Close()
	if _, err := NewRunwareProvider(RunwareConfig{BaseURL: malformed.URL}).Generate(context.Background(), "k", Request{Prompt: "p"}); err == nil {
		t.Fatalf("expected decode error")
	}

	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[{"taskType":"imageInference","taskUUID":"someone-else","imageURL":"https://x"}]}`)
	}))
	defer foreign.Close()
	_, err := NewRunwareProvider(RunwareConfig{BaseURL: foreign.URL}).Generate(context.Background(), "k", Request{Prompt: "p"})
	if !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
}

func TestRunwareHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewRunwareProvider(RunwareConfig{BaseURL: srv.URL}).Generate(ctx, "k", Request{Prompt: "p"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestCoordinatorWithRunware(t *testing.T) {
	srv := echoRunware(t, nil)
	defer srv.Close()

	c := NewCoordinator(NewRunwareProvider(RunwareConfig{BaseURL: srv.URL}), testChars(), Options{})
	job, err := c.Dispatch(context.Background(), testScript(), 0, "key")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := job.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !out.Succeeded() || out.PanelID != "p0" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}
