/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package cli is the gonovel command line: play in the terminal, check and
// proof chapters, manage save slots, and launch the desktop player.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gonovel/internal/config"
	applog "gonovel/internal/log"
)

// errDiagnostics makes check exit non-zero without printing an extra message.
var errDiagnostics = errors.New("script diagnostics found")

type app struct {
	cfg config.AppConfig
	log *slog.Logger
}

// NewRootCmd builds the command tree. Configuration is loaded in the
// persistent pre-run so every subcommand sees the same merged config.
func NewRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{}
	var configPath, storyDir, logLevel string

	root := &cobra.Command{
		Use:   "gonovel",
		Short: "GoNovel - visual novel chapter script interpreter",
		Long: `GoNovel plays visual novel chapters written in a line-oriented script.

Each chapter is a text file in the story directory. Lines are dialogue,
choice blocks or input prompts; trailing calls like setBackground(park)
drive the stage, the audio and chapter flow.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				if err := os.Setenv(config.EnvConfigPath, configPath); err != nil {
					return err
				}
			}
			cfg, cfgErr := config.Load()
			if storyDir != "" {
				cfg.General.StoryDir = storyDir
			}
			opts := applog.Options{
				Level:     cfg.Logging.Level,
				Format:    cfg.Logging.Format,
				AddSource: cfg.Logging.Source,
				File:      cfg.Logging.File,
				Writer:    cmd.ErrOrStderr(),
			}
			if logLevel != "" {
				opts.Level = logLevel
			}
			applog.Init(opts)
			a.log = applog.WithComponent("cli")
			if cfgErr != nil {
				a.log.Warn("config problem, using defaults where needed", slog.Any("err", cfgErr))
			}
			a.cfg = cfg
			a.log.Debug("start", slog.String("cmd", cmd.CommandPath()))
			return nil
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is the per-user config.yaml)")
	root.PersistentFlags().StringVar(&storyDir, "story", "", "story directory holding <chapter>.txt files")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error")

	root.AddCommand(
		a.playCmd(),
		a.checkCmd(),
		a.exportCmd(),
		a.savesCmd(),
		a.packCmd(),
		a.uiCmd(),
		a.configCmd(),
		versionCmd(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := NewRootCmd(os.Stdin, os.Stdout)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errDiagnostics) {
			_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

// chapterName accepts "name" or "name.txt".
func chapterName(arg string) string {
	return strings.TrimSuffix(strings.TrimSpace(arg), ".txt")
}
