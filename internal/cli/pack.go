/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"gonovel/internal/storypack"
)

func (a *app) packCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Bundle or install a story as a .zip pack",
	}

	export := &cobra.Command{
		Use:   "export <file.zip>",
		Short: "Bundle the story directory and assets into a pack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := storypack.Export(a.cfg.General.StoryDir, a.cfg.General.AssetsDir, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "✓ Packed %d files into %s\n", n, args[0])
			return err
		},
	}

	install := &cobra.Command{
		Use:   "install <file.zip>",
		Short: "Install a pack into the story directory; existing files are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := storypack.Install(args[0], a.cfg.General.StoryDir, a.cfg.General.AssetsDir)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "✓ Installed %d files\n", n)
			return err
		},
	}

	cmd.AddCommand(export, install)
	return cmd
}
