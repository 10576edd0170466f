/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package imaging coordinates per-panel image generation against an external provider.
//
// Each regeneration runs on its own goroutine and is keyed by the panel id captured at
// dispatch time, never by position. Callers reconcile finished jobs into their script with
// engine.ApplyGenerationResult.
package imaging

import (
	"context"
	"fmt"
	"strings"

	"comicstudio/internal/domain"
)

// Fixed generation parameters attached to every request.
const (
	ResultCount   = 1
	GuidanceScale = 7.0
)

// Request is what a provider receives for one panel.
type Request struct {
	Prompt        string
	ResultCount   int
	GuidanceScale float64
}

// Result is a successful provider response.
type Result struct {
	ImageURL string
}

// Provider is the external image generation service.
// Implementations must honour ctx cancellation and must not retry on their own.
type Provider interface {
	Generate(ctx context.Context, credential string, req Request) (Result, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, credential string, req Request) (Result, error)

func (f ProviderFunc) Generate(ctx context.Context, credential string, req Request) (Result, error) {
	return f(ctx, credential, req)
}

// Describer resolves character ids to prompt descriptions, in its own collection order.
type Describer interface {
	Descriptions(ids []string) []string
}

// BuildPrompt renders the prompt for a panel. The result depends only on its inputs.
func BuildPrompt(tone string, p domain.Panel, chars Describer) string {
	var descs []string
	if chars != nil {
		descs = chars.Descriptions(p.Characters)
	}
	return fmt.Sprintf(
		"Comic panel in %s style: %s. Characters: %s. Dialogue: %s. Highly detailed comic book art style, professional quality, dynamic composition.",
		tone, p.Scene, strings.Join(descs, ", "), p.Dialogue,
	)
}

// NewRequest builds the provider request for a panel.
func NewRequest(tone string, p domain.Panel, chars Describer) Request {
	return Request{
		Prompt:        BuildPrompt(tone, p, chars),
		ResultCount:   ResultCount,
		GuidanceScale: GuidanceScale,
	}
}
