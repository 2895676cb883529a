/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"gonovel/internal/console"
	"gonovel/internal/crash"
	"gonovel/internal/engine"
	"gonovel/internal/remote"
	"gonovel/internal/session"
	"gonovel/internal/storage"
)

// guarded runs the scheduler with crash recovery on its own goroutine and
// adds rollback to the engine's signals.
type guarded struct {
	*engine.Engine
	target *crash.Target
	back   func()
}

func (g guarded) Run(ctx context.Context, interval time.Duration) error {
	defer crash.Recover(g.target)
	return g.Engine.Run(ctx, interval)
}

func (g guarded) RollBack() { g.back() }

func (a *app) playCmd() *cobra.Command {
	var (
		slot, saveFile, autosave string
		noAudio, withRemote      bool
		remoteAddr               string
	)
	cmd := &cobra.Command{
		Use:   "play [chapter]",
		Short: "Play a chapter in the terminal",
		Long: `Play a chapter in the terminal.

Press Enter to advance, type s and Enter to skip to the end of the chapter,
b to go back a line, a number to pick a choice, and text to answer an
input prompt.

Examples:
  gonovel play
  gonovel play chapter2
  gonovel play --slot quick
  gonovel play --remote --remote-addr 127.0.0.1:7780`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if noAudio {
				cfg.Audio.Enabled = false
			}
			if withRemote {
				cfg.Remote.Enabled = true
			}
			if remoteAddr != "" {
				cfg.Remote.Addr = remoteAddr
			}
			out := cmd.OutOrStdout()

			con := console.New(out)
			opts := session.Options{
				Presenters: []engine.Presenter{con},
				Listeners:  []engine.Listener{con},
				OnEnding: func(won bool) {
					if won {
						_, _ = fmt.Fprintln(out, "*** You won ***")
					} else {
						_, _ = fmt.Fprintln(out, "*** Game over ***")
					}
				},
			}
			var hub *remote.Hub
			if cfg.Remote.Enabled {
				hub = remote.NewHub()
				opts.Presenters = append(opts.Presenters, hub)
				opts.Listeners = append(opts.Listeners, hub)
			}
			s, err := session.New(cfg, opts)
			if err != nil {
				return err
			}
			defer s.Close()
			s.Stage.Observe(con.StageEvent)
			target := s.CrashTarget()
			defer crash.Recover(target)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			var store *storage.SaveStore
			if slot != "" || autosave != "" {
				dsn, err := cfg.SaveDSN()
				if err != nil {
					return err
				}
				store, err = storage.OpenStore(ctx, cfg.Saves.Driver, dsn)
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
			}

			switch {
			case saveFile != "":
				f, err := storage.ReadSaveFile(saveFile)
				if err != nil {
					return err
				}
				err = s.Resume(f.State)
				if err != nil {
					return err
				}
			case slot != "":
				rec, err := store.Load(ctx, slot)
				if err != nil {
					return err
				}
				if err := s.Resume(rec.State); err != nil {
					return err
				}
			default:
				var chapter string
				if len(args) == 1 {
					chapter = chapterName(args[0])
				}
				if err := s.Start(chapter); err != nil {
					return err
				}
			}

			ctrl := guarded{Engine: s.Engine, target: target, back: func() {
				if err := s.Back(ctx); errors.Is(err, session.ErrNoHistory) {
					con.Notice("nothing to go back to")
				} else if err != nil {
					a.log.Warn("rollback failed", slog.Any("err", err))
				}
			}}
			if hub != nil {
				srv := remote.NewServer(hub, ctrl)
				go func() {
					if err := srv.ListenAndServe(ctx, cfg.Remote.Addr); err != nil {
						a.log.Error("remote server stopped", slog.Any("err", err))
					}
				}()
			}

			err = console.Run(ctx, ctrl, con, cmd.InOrStdin(), cfg.Playback.TickInterval())
			if err != nil {
				return err
			}
			if autosave != "" {
				// the scheduler has stopped, so the engine can be read directly
				if _, err := store.Save(context.Background(), autosave, s.Engine.Snapshot()); err != nil {
					return fmt.Errorf("autosave: %w", err)
				}
				a.log.Info("autosaved", slog.String("slot", autosave))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&slot, "slot", "", "resume from a save slot")
	f.StringVar(&saveFile, "save-file", "", "resume from an exported save file")
	f.StringVar(&autosave, "autosave", "", "save to this slot when play stops")
	f.BoolVar(&noAudio, "no-audio", false, "disable audio playback")
	f.BoolVar(&withRemote, "remote", false, "serve the websocket remote")
	f.StringVar(&remoteAddr, "remote-addr", "", "remote listen address")
	cmd.MarkFlagsMutuallyExclusive("slot", "save-file")
	return cmd
}
