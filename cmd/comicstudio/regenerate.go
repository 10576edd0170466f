/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"comicstudio/internal/characters"
	"comicstudio/internal/crash"
	"comicstudio/internal/domain"

	"github.com/spf13/cobra"
)

func (a *app) regenerateCmd() *cobra.Command {
	var (
		panel   int
		all     bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "regenerate <dir>",
		Short: "Generate the image of one panel or of every panel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return a.runRegenerate(ctx, cmd.OutOrStdout(), args[0], panel, all)
		},
	}
	cmd.Flags().IntVar(&panel, "panel", -1, "index of the panel to regenerate")
	cmd.Flags().BoolVar(&all, "all", false, "regenerate every panel")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall time limit")
	cmd.MarkFlagsMutuallyExclusive("panel", "all")
	cmd.MarkFlagsOneRequired("panel", "all")
	return cmd
}

func (a *app) runRegenerate(ctx context.Context, w io.Writer, dir string, panel int, all bool) error {
	key, err := a.apiKey()
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: run 'comicstudio config set-key' or set RUNWARE_API_KEY", &domain.CredentialError{})
	}
	ph, err := openHandle(dir)
	if err != nil {
		return err
	}
	defer crash.Recover(ph)
	coll, err := characters.Load(ph.CharactersPath())
	if err != nil {
		return err
	}
	p := a.bind(ph, a.coordinator(coll))

	if all {
		outs, err := p.sess.RegenerateAll(ctx, key)
		if err != nil {
			return err
		}
		if err := p.save(); err != nil {
			return err
		}
		return reportOutcomes(w, p.sess.Script(), outs)
	}

	job, err := p.sess.Regenerate(ctx, panel, key)
	if err != nil {
		return err
	}
	if err := p.sess.Wait(ctx); err != nil {
		return err
	}
	out, _ := job.Outcome()
	if out.Succeeded() {
		if err := p.save(); err != nil {
			return err
		}
	}
	return reportOutcomes(w, p.sess.Script(), []domain.Outcome{out})
}

// reportOutcomes prints one line per outcome and returns the first failure.
func reportOutcomes(w io.Writer, s *domain.Script, outs []domain.Outcome) error {
	var failed []error
	for _, out := range outs {
		pos := s.IndexOf(out.PanelID)
		if out.Succeeded() {
			fmt.Fprintf(w, "[%d] %s: %s\n", pos, out.PanelID, out.ImageURL)
			continue
		}
		err := out.Err
		if err == nil {
			err = &domain.GenerationFailure{PanelID: out.PanelID, Err: errors.New("no image returned")}
		}
		fmt.Fprintf(w, "[%d] %s: Failed to generate image: %v\n", pos, out.PanelID, err)
		failed = append(failed, err)
	}
	switch len(failed) {
	case 0:
		return nil
	case 1:
		return failed[0]
	default:
		return fmt.Errorf("%d of %d panels failed: %w", len(failed), len(outs), failed[0])
	}
}
