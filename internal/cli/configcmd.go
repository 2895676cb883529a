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
	"gopkg.in/yaml.v3"

	"gonovel/internal/config"
)

// overridable lists the keys config show annotates with their env variable.
var overridable = []string{
	"general.story_dir", "general.assets_dir", "general.start_chapter",
	"playback.tick_ms", "playback.chars_per_sec",
	"saves.driver", "saves.dsn",
	"audio.enabled", "audio.volume",
	"remote.enabled", "remote.addr",
	"logging.level", "logging.format", "logging.source", "logging.file",
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialise the configuration",
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if p, err := config.ConfigPath(); err == nil {
				_, _ = fmt.Fprintf(out, "# file: %s\n", p)
			}
			for _, key := range overridable {
				if env, ok := config.EnvOverrideFor(key); ok {
					_, _ = fmt.Fprintf(out, "# %s overridden by %s\n", key, env)
				}
			}
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Save(config.Defaults()); err != nil {
				return err
			}
			p, _ := config.ConfigPath()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", p)
			return err
		},
	}
	cmd.AddCommand(show, initCmd)
	return cmd
}
