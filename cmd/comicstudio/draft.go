/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"comicstudio/internal/characters"
	"comicstudio/internal/crash"
	"comicstudio/internal/session"
	"comicstudio/internal/storage"

	"github.com/spf13/cobra"
)

// DefaultTone is used when draft is called without --tone.
const DefaultTone = "adventure"

type draftFlags struct {
	theme       string
	tone        string
	keyElements string
	chars       []string
	charsFile   string
	force       bool
}

func (a *app) draftCmd() *cobra.Command {
	var f draftFlags
	cmd := &cobra.Command{
		Use:   "draft <dir>",
		Short: "Create a project with a drafted two-panel script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDraft(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.theme, "theme", "", "story theme")
	cmd.Flags().StringVar(&f.tone, "tone", DefaultTone, "story tone")
	cmd.Flags().StringVar(&f.keyElements, "key-elements", "", "key story elements")
	cmd.Flags().StringSliceVar(&f.chars, "chars", nil, "character ids appearing in the story")
	cmd.Flags().StringVar(&f.charsFile, "characters", "", "character collection (YAML or JSON) to copy into the project")
	cmd.Flags().BoolVar(&f.force, "force", false, "replace an existing project script")
	return cmd
}

func (a *app) runDraft(cmd *cobra.Command, dir string, f draftFlags) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(root, storage.ManifestFileName)); err == nil && !f.force {
		return fmt.Errorf("%s already holds a project; use --force to replace its script", root)
	}

	var charsData []byte
	coll := characters.New()
	switch {
	case f.charsFile != "":
		if charsData, err = os.ReadFile(f.charsFile); err != nil {
			return fmt.Errorf("read characters: %w", err)
		}
		if coll, err = characters.Parse(charsData); err != nil {
			return err
		}
	default:
		if coll, err = characters.Load(filepath.Join(root, storage.CharactersFileName)); err != nil {
			return err
		}
	}
	if coll.Len() > 0 {
		if missing := coll.Missing(f.chars); len(missing) > 0 {
			a.log.Warn("unknown character ids", slog.Any("ids", missing))
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: unknown character ids: %s\n", strings.Join(missing, ", "))
		}
	}

	sess := session.New(nil, session.Options{Event: a.event})
	script, err := sess.Draft(session.DraftInput{
		Theme:       f.theme,
		Tone:        f.tone,
		KeyElements: f.keyElements,
		Characters:  f.chars,
	})
	if err != nil {
		return err
	}

	ph, err := storage.InitProject(root, script, sess.Selection())
	if err != nil {
		return err
	}
	defer crash.Recover(ph)
	if charsData != nil {
		if err := os.WriteFile(ph.CharactersPath(), charsData, 0o644); err != nil {
			return fmt.Errorf("write characters: %w", err)
		}
	}
	a.log.Info("project drafted", slog.String("root", root), slog.String("script_id", script.ID))
	fmt.Fprintln(cmd.OutOrStdout(), "Comic script generated successfully")
	printScript(cmd.OutOrStdout(), ph.Manifest.Script, coll)
	return nil
}

func (a *app) showCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <dir>",
		Short: "Print the project script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.openProject(args[0], nil)
			if err != nil {
				return err
			}
			if asJSON {
				b, err := os.ReadFile(p.ph.ManifestPath)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			coll, err := p.characters()
			if err != nil {
				return err
			}
			printScript(cmd.OutOrStdout(), p.sess.Script(), coll)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw manifest")
	return cmd
}
