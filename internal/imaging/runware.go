/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package imaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Defaults for the Runware inference API.
const (
	DefaultRunwareURL   = "https://api.runware.ai/v1"
	DefaultRunwareModel = "runware:100@1"
	DefaultWidth        = 1024
	DefaultHeight       = 1024
)

// ErrNoImage is returned when the provider answers without an image for our task.
var ErrNoImage = errors.New("provider returned no image")

// ProviderError is a failure reported by the provider itself.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
	case e.Message != "":
		return "provider error: " + e.Message
	default:
		return fmt.Sprintf("provider responded %d", e.Status)
	}
}

// RunwareConfig configures RunwareProvider. Zero values fall back to the defaults above.
type RunwareConfig struct {
	BaseURL string
	Model   string
	Width   int
	Height  int
	Timeout time.Duration
	Client  *http.Client
}

// RunwareProvider talks to the Runware task API over HTTPS.
type RunwareProvider struct {
	url    string
	model  string
	width  int
	height int
	client *http.Client
}

// NewRunwareProvider creates a provider client.
func NewRunwareProvider(cfg RunwareConfig) *RunwareProvider {
	p := &RunwareProvider{
		url:    strings.TrimRight(cfg.BaseURL, "/"),
		model:  cfg.Model,
		width:  cfg.Width,
		height: cfg.Height,
		client: cfg.Client,
	}
	if p.url == "" {
		p.url = DefaultRunwareURL
	}
	if p.model == "" {
		p.model = DefaultRunwareModel
	}
	if p.width <= 0 {
		p.width = DefaultWidth
	}
	if p.height <= 0 {
		p.height = DefaultHeight
	}
	if p.client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		p.client = &http.Client{Timeout: timeout}
	}
	return p
}

type authTask struct {
	TaskType string `json:"taskType"`
	APIKey   string `json:"apiKey"`
}

type inferenceTask struct {
	TaskType       string  `json:"taskType"`
	TaskUUID       string  `json:"taskUUID"`
	PositivePrompt string  `json:"positivePrompt"`
	Model          string  `json:"model"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	NumberResults  int     `json:"numberResults"`
	CFGScale       float64 `json:"CFGScale"`
	OutputType     string  `json:"outputType"`
}

type runwareResponse struct {
	Data []struct {
		TaskType string `json:"taskType"`
		TaskUUID string `json:"taskUUID"`
		ImageURL string `json:"imageURL"`
	} `json:"data"`
	Errors []struct {
		Code     string `json:"code"`
		Message  string `json:"message"`
		TaskUUID string `json:"taskUUID"`
	} `json:"errors"`
}

// Generate submits one imageInference task and returns the first image URL for it.
func (p *RunwareProvider) Generate(ctx context.Context, credential string, req Request) (Result, error) {
	taskID := uuid.NewString()
	tasks := []any{
		authTask{TaskType: "authentication", APIKey: credential},
		inferenceTask{
			TaskType:       "imageInference",
			TaskUUID:       taskID,
			PositivePrompt: req.Prompt,
			Model:          p.model,
			Width:          p.width,
			Height:         p.height,
			NumberResults:  req.ResultCount,
			CFGScale:       req.GuidanceScale,
			OutputType:     "URL",
		},
	}
	body, err := json.Marshal(tasks)
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("runware request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	var decoded runwareResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if len(decoded.Errors) > 0 {
		e := decoded.Errors[0]
		return Result{}, &ProviderError{Status: resp.StatusCode, Code: e.Code, Message: e.Message}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &ProviderError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if decodeErr != nil {
		return Result{}, fmt.Errorf("decode response: %w", decodeErr)
	}
	for _, d := range decoded.Data {
		if d.TaskUUID == taskID && d.ImageURL != "" {
			return Result{ImageURL: d.ImageURL}, nil
		}
	}
	return Result{}, ErrNoImage
}
