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
	"os"
	"strings"

	"comicstudio/internal/characters"
	"comicstudio/internal/crash"
	"comicstudio/internal/domain"
	"comicstudio/internal/engine"
	"comicstudio/internal/export"
	"comicstudio/internal/script"

	"github.com/spf13/cobra"
)

func (a *app) exportCmd() *cobra.Command {
	var (
		format, out, pageSize string
		images                bool
	)
	cmd := &cobra.Command{
		Use:   "export <dir>",
		Short: "Write the script as a PDF script sheet or as text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			ph, err := openHandle(args[0])
			if err != nil {
				return err
			}
			defer crash.Recover(ph)
			coll, err := characters.Load(ph.CharactersPath())
			if err != nil {
				return err
			}
			path, err := export.Export(ph, coll, f, out, export.PDFOptions{PageSize: pageSize, IncludeImages: images})
			if err != nil {
				return err
			}
			a.event("script_exported", map[string]any{"format": string(f), "panels": ph.Manifest.Script.Len()})
			fmt.Fprintln(cmd.OutOrStdout(), "Exported", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "pdf", "pdf or txt")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file; relative paths go to <dir>/exports")
	cmd.Flags().StringVar(&pageSize, "page-size", "A4", "PDF page size: A4 or Letter")
	cmd.Flags().BoolVar(&images, "images", false, "print image references in the PDF")
	return cmd
}

func (a *app) panelImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir> <file>",
		Short: "Append panels read from a text file",
		Long:  "Append panels read from a text file in the format written by 'export --format txt'.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			panels, errs := script.Parse(string(b))
			if len(errs) > 0 {
				msgs := make([]string, len(errs))
				for i, e := range errs {
					msgs[i] = e.Error()
				}
				return fmt.Errorf("%s: %s", args[1], strings.Join(msgs, "; "))
			}
			return a.editProject(cmd, args[0], func(p *project) (*domain.Script, error) {
				return appendPanels(p, panels)
			}, fmt.Sprintf("Imported %d panels", len(panels)))
		},
	}
}

// appendPanels adds each parsed panel through the session so every one gets a fresh id.
func appendPanels(p *project, panels []script.Panel) (*domain.Script, error) {
	cur := p.sess.Script()
	for _, in := range panels {
		next, err := p.sess.AddPanel()
		if err != nil {
			return nil, err
		}
		patch := engine.PanelPatch{}.WithScene(in.Scene).WithDialogue(in.Dialogue).WithCharacters(in.Characters)
		if in.DialogueSize > 0 {
			patch = patch.WithDialogueSize(in.DialogueSize)
		}
		if cur, err = p.sess.UpdatePanel(next.Len()-1, patch); err != nil {
			return nil, err
		}
	}
	return cur, nil
}
