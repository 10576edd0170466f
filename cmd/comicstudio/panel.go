/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"errors"
	"fmt"

	"comicstudio/internal/crash"
	"comicstudio/internal/domain"
	"comicstudio/internal/engine"

	"github.com/spf13/cobra"
)

var errNothingToUpdate = errors.New("nothing to update: pass --scene, --dialogue, --dialogue-size or --chars")

func (a *app) panelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "panel",
		Short: "Add, edit, delete and reorder panels",
	}
	cmd.AddCommand(
		a.panelAddCmd(),
		a.panelUpdateCmd(),
		a.panelDeleteCmd(),
		a.panelMoveCmd(),
		a.panelReorderCmd(),
		a.panelImportCmd(),
	)
	return cmd
}

// editProject opens dir, applies fn through the session and saves on success.
func (a *app) editProject(cmd *cobra.Command, dir string, fn func(p *project) (*domain.Script, error), done string) error {
	p, err := a.openProject(dir, nil)
	if err != nil {
		return err
	}
	defer crash.Recover(p.ph)
	next, err := fn(p)
	if err != nil {
		return err
	}
	if err := p.save(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%d panels)\n", done, next.Len())
	return nil
}

func (a *app) panelAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <dir>",
		Short: "Append a blank panel with the project's character selection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.editProject(cmd, args[0], func(p *project) (*domain.Script, error) {
				return p.sess.AddPanel()
			}, "Panel added")
		},
	}
}

func (a *app) panelUpdateCmd() *cobra.Command {
	var (
		scene, dialogue string
		size            int
		chars           []string
	)
	cmd := &cobra.Command{
		Use:   "update <dir> <index>",
		Short: "Change scene, dialogue, dialogue size or characters of a panel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			var patch engine.PanelPatch
			fl := cmd.Flags()
			if fl.Changed("scene") {
				patch = patch.WithScene(scene)
			}
			if fl.Changed("dialogue") {
				patch = patch.WithDialogue(dialogue)
			}
			if fl.Changed("dialogue-size") {
				if err := engine.ValidateDialogueSize(size); err != nil {
					return err
				}
				patch = patch.WithDialogueSize(size)
			}
			if fl.Changed("chars") {
				patch = patch.WithCharacters(chars)
			}
			if patch.Empty() {
				return errNothingToUpdate
			}
			return a.editProject(cmd, args[0], func(p *project) (*domain.Script, error) {
				return p.sess.UpdatePanel(idx, patch)
			}, "Panel updated")
		},
	}
	cmd.Flags().StringVar(&scene, "scene", "", "scene description")
	cmd.Flags().StringVar(&dialogue, "dialogue", "", "dialogue text")
	cmd.Flags().IntVar(&size, "dialogue-size", domain.DefaultDialogueSize, "dialogue font size")
	cmd.Flags().StringSliceVar(&chars, "chars", nil, "character ids in the panel")
	return cmd
}

func (a *app) panelDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <dir> <index>",
		Short: "Delete a panel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return a.editProject(cmd, args[0], func(p *project) (*domain.Script, error) {
				return p.sess.DeletePanel(idx)
			}, "Panel deleted")
		},
	}
}

func (a *app) panelMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <dir> <from> <to>",
		Short: "Move a panel to another position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			to, err := parseIndex(args[2])
			if err != nil {
				return err
			}
			return a.editProject(cmd, args[0], func(p *project) (*domain.Script, error) {
				return p.sess.MovePanel(from, to)
			}, "Panels reordered")
		},
	}
}

func (a *app) panelReorderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <dir> <panel-id>...",
		Short: "Set the panel order; every panel id must appear exactly once",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := args[1:]
			return a.editProject(cmd, args[0], func(p *project) (*domain.Script, error) {
				return p.sess.ReorderByID(ids)
			}, "Panels reordered")
		},
	}
}
