/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package command maps action names to handlers. Handlers are registered
// explicitly at startup; each parses its own argument string using the
// shared helpers in args.go.
package command

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	applog "gonovel/internal/log"
	"gonovel/internal/stage"
)

var (
	// ErrDuplicateCommand is returned when a name is registered twice.
	ErrDuplicateCommand = errors.New("duplicate command")
	// ErrReservedName is returned when a name collides with an interpreter builtin.
	ErrReservedName = errors.New("reserved command name")
	// ErrUnknownCommand is returned by Dispatch for names that are not registered.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrArgumentMalformed marks a required argument that could not be parsed.
	ErrArgumentMalformed = errors.New("malformed argument")
)

// Command is one named action handler.
type Command interface {
	Name() string
	Execute(args string) error
}

// Func adapts a function into a Command.
func Func(name string, fn func(args string) error) Command { return funcCommand{name: name, fn: fn} }

type funcCommand struct {
	name string
	fn   func(args string) error
}

func (f funcCommand) Name() string              { return f.name }
func (f funcCommand) Execute(args string) error { return f.fn(args) }

// Registry is the name -> Command table. It is safe for concurrent use,
// but in practice it is filled once at startup and then only read.
type Registry struct {
	mu       sync.RWMutex
	cmds     map[string]Command
	reserved map[string]bool
	log      *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		cmds:     map[string]Command{},
		reserved: map[string]bool{},
		log:      applog.WithComponent("command"),
	}
}

// Reserve blocks names handled outside the registry. It fails if any of them is already registered.
func (r *Registry) Reserve(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		if _, ok := r.cmds[n]; ok {
			return fmt.Errorf("%w: %q", ErrReservedName, n)
		}
	}
	for _, n := range names {
		r.reserved[n] = true
	}
	return nil
}

// Register adds commands. Nothing is added if any name is empty, reserved or already taken.
func (r *Registry) Register(cmds ...Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	for _, c := range cmds {
		n := c.Name()
		switch {
		case n == "":
			return errors.New("command with empty name")
		case r.reserved[n]:
			return fmt.Errorf("%w: %q", ErrReservedName, n)
		case seen[n]:
			return fmt.Errorf("%w: %q", ErrDuplicateCommand, n)
		}
		if _, ok := r.cmds[n]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateCommand, n)
		}
		seen[n] = true
	}
	for _, c := range cmds {
		r.cmds[c.Name()] = c
	}
	return nil
}

// Lookup returns the command registered under name.
func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cmds[name]
	return c, ok
}

// Has reports whether name is registered or reserved.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cmds[name]
	return ok || r.reserved[name]
}

// Names lists registered command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.cmds))
	for n := range r.cmds {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs the named command. Unknown names and command failures are
// logged as diagnostics and returned; they never panic or stop the caller.
func (r *Registry) Dispatch(name, args string) error {
	c, ok := r.Lookup(name)
	if !ok {
		applog.Diagnostic(r.log, applog.KindUnknownCommand, "unknown command", slog.String("command", name), slog.String("args", args))
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	err := safeExecute(c, args)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stage.ErrResourceMissing):
		applog.Diagnostic(r.log, applog.KindResourceMissing, "command skipped", slog.String("command", name), slog.Any("err", err))
	case errors.Is(err, ErrArgumentMalformed):
		applog.Diagnostic(r.log, applog.KindArgumentMalformed, "command skipped", slog.String("command", name), slog.String("args", args), slog.Any("err", err))
	default:
		r.log.Error("command failed", slog.String("command", name), slog.String("args", args), slog.Any("err", err))
	}
	return err
}

func safeExecute(c Command, args string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("command %q panicked: %v", c.Name(), p)
		}
	}()
	return c.Execute(args)
}
