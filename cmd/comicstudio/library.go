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
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"comicstudio/internal/storage"

	"github.com/spf13/cobra"
)

func (a *app) libraryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Store scripts in the local or shared script library",
	}
	cmd.AddCommand(
		a.libraryPushCmd(),
		a.libraryPullCmd(),
		a.libraryListCmd(),
		a.libraryDeleteCmd(),
		a.libraryHistoryCmd(),
	)
	return cmd
}

// withLibrary opens the configured library for the duration of fn.
func (a *app) withLibrary(ctx context.Context, fn func(storage.Library) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	lib, err := a.openLibrary(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("open library: %w", err)
	}
	defer func() { _ = lib.Close() }()
	return fn(lib)
}

func (a *app) libraryPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <dir>",
		Short: "Store the project script in the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, err := openHandle(args[0])
			if err != nil {
				return err
			}
			return a.withLibrary(cmd.Context(), func(lib storage.Library) error {
				if err := lib.Put(cmd.Context(), ph.Manifest.Script); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", ph.Manifest.Script.ID)
				return nil
			})
		},
	}
}

func (a *app) libraryPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <id> <dir>",
		Short: "Write a library script into a project, creating it if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLibrary(cmd.Context(), func(lib storage.Library) error {
				s, err := lib.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				root, err := filepath.Abs(args[1])
				if err != nil {
					return err
				}
				if _, err := os.Stat(filepath.Join(root, storage.ManifestFileName)); errors.Is(err, os.ErrNotExist) {
					if _, err := storage.InitProject(root, s, nil); err != nil {
						return err
					}
				} else {
					ph, err := storage.Open(root)
					if err != nil {
						return err
					}
					ph.Manifest.Script = s
					if err := storage.Save(ph); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s to %s\n", s.ID, root)
				return nil
			})
		},
	}
}

func (a *app) libraryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored scripts, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withLibrary(cmd.Context(), func(lib storage.Library) error {
				entries, err := lib.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Library is empty.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTHEME\tTONE\tPANELS\tUPDATED")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", e.ID, e.Theme, e.Tone, e.Panels, e.UpdatedAt.Local().Format(time.DateTime))
				}
				return tw.Flush()
			})
		},
	}
}

func (a *app) libraryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a script and its history from the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLibrary(cmd.Context(), func(lib storage.Library) error {
				if err := lib.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func (a *app) libraryHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "List earlier stored versions of a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLibrary(cmd.Context(), func(lib storage.Library) error {
				hist, err := lib.History(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				if len(hist) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No earlier versions.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "STORED\tPANELS\tIMAGES")
				for _, h := range hist {
					images := 0
					for _, p := range h.Script.Panels {
						if p.HasImage() {
							images++
						}
					}
					fmt.Fprintf(tw, "%s\t%d\t%d\n", h.TS.Local().Format(time.DateTime), h.Script.Len(), images)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of versions")
	return cmd
}
