/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package command

import (
	"errors"
	"fmt"
	"strings"

	"gonovel/internal/stage"
)

// Collaborators are the subsystems the stock commands drive. Commands whose
// collaborator is nil are not registered.
type Collaborators struct {
	Layers     stage.Layers
	Characters stage.Characters
	Audio      stage.Audio
	Loader     stage.ChapterLoader
}

// Defaults used when optional trailing fields are absent.
const (
	defaultLayerSpeed      = 2
	defaultEntrySpeed      = 3
	defaultMoveSpeed       = 7
	defaultExpressionSpeed = 3
	defaultRegionSpeed     = 5
)

// RegisterBuiltins adds the stock command set for the given collaborators.
func RegisterBuiltins(r *Registry, c Collaborators) error {
	var cmds []Command
	if c.Layers != nil {
		cmds = append(cmds, layerCommands(c.Layers)...)
	}
	if c.Characters != nil {
		cmds = append(cmds, characterCommands(c.Characters)...)
	}
	if c.Audio != nil {
		cmds = append(cmds, audioCommands(c.Audio)...)
	}
	if c.Loader != nil {
		load := func(args string) error {
			a := ParseArgs("load", args)
			name, err := a.Required(0, "chapter")
			if err != nil {
				return err
			}
			return c.Loader.LoadChapter(name)
		}
		cmds = append(cmds, Func("load", load), Func("Load", load))
	}
	return r.Register(cmds...)
}

func layerCommands(l stage.Layers) []Command {
	set := func(name string, layer stage.Layer) Command {
		return Func(name, func(args string) error {
			a := ParseArgs(name, args)
			speed, smooth := a.Options(1, defaultLayerSpeed, false)
			return l.SetLayer(layer, a.Image(0), speed, smooth)
		})
	}
	trans := func(name string, layer stage.Layer) Command {
		return Func(name, func(args string) error {
			a := ParseArgs(name, args)
			effect, err := a.Required(1, "transition effect")
			if err != nil {
				return err
			}
			speed, smooth := a.Options(2, defaultLayerSpeed, false)
			return l.TransitionLayer(layer, a.Image(0), effect, speed, smooth)
		})
	}
	return []Command{
		set("setBackground", stage.Background),
		set("setCinematic", stage.Cinematic),
		set("setForeground", stage.Foreground),
		trans("transBackground", stage.Background),
		trans("transCinematic", stage.Cinematic),
		trans("transForeground", stage.Foreground),
		Func("showScene", func(args string) error {
			a := ParseArgs("showScene", args)
			show := a.Bool(0, true)
			speed, smooth := a.Options(2, defaultLayerSpeed, false)
			return l.ShowScene(show, a.String(1), speed, smooth)
		}),
	}
}

func characterCommands(ch stage.Characters) []Command {
	entry := func(name string, fn func(string, float64, bool) error) Command {
		return Func(name, func(args string) error {
			a := ParseArgs(name, args)
			targets := a.Targets(0)
			if len(targets) == 0 {
				return fmt.Errorf("%w: %s: no characters", ErrArgumentMalformed, name)
			}
			speed, smooth := a.Options(1, defaultEntrySpeed, false)
			return eachTarget(targets, func(t string) error { return fn(t, speed, smooth) })
		})
	}
	move := func(name string) Command {
		return Func(name, func(args string) error {
			a := ParseArgs(name, args)
			who, err := a.Required(0, "character")
			if err != nil {
				return err
			}
			x, err := a.RequiredFloat(1, "x")
			if err != nil {
				return err
			}
			return ch.Move(who, x, a.Float(2, 0), a.Float(3, defaultMoveSpeed), a.Bool(4, true))
		})
	}
	expression := func(name string, region stage.Region) Command {
		return Func(name, func(args string) error {
			a := ParseArgs(name, args)
			who, err := a.Required(0, "character")
			if err != nil {
				return err
			}
			expr, err := a.Required(1, "expression")
			if err != nil {
				return err
			}
			return ch.SetExpression(who, region, expr, a.Float(2, defaultExpressionSpeed))
		})
	}
	facing := func(name string, f stage.Facing) Command {
		return Func(name, func(args string) error {
			a := ParseArgs(name, args)
			targets := a.AllTargets()
			if len(targets) == 0 {
				return fmt.Errorf("%w: %s: no characters", ErrArgumentMalformed, name)
			}
			return eachTarget(targets, func(t string) error { return ch.Face(t, f) })
		})
	}
	return []Command{
		entry("enter", ch.Enter),
		entry("exit", ch.Exit),
		move("move"),
		move("moveTo"),
		Func("setPosition", func(args string) error {
			a := ParseArgs("setPosition", args)
			who, err := a.Required(0, "character")
			if err != nil {
				return err
			}
			x, err := a.RequiredFloat(1, "x")
			if err != nil {
				return err
			}
			return ch.SetPosition(who, x, a.Float(2, 0))
		}),
		expression("setFace", stage.Face),
		expression("setBody", stage.Body),
		Func("setExpression", func(args string) error {
			a := ParseArgs("setExpression", args)
			who, err := a.Required(0, "character")
			if err != nil {
				return err
			}
			var region stage.Region
			switch strings.ToLower(a.String(1)) {
			case "face":
				region = stage.Face
			case "body":
				region = stage.Body
			default:
				return fmt.Errorf("%w: setExpression: region %q is not face or body", ErrArgumentMalformed, a.String(1))
			}
			expr, err := a.Required(2, "expression")
			if err != nil {
				return err
			}
			return ch.SetExpression(who, region, expr, a.Float(3, defaultRegionSpeed))
		}),
		facing("flip", stage.Flip),
		facing("faceLeft", stage.FaceLeft),
		facing("faceRight", stage.FaceRight),
	}
}

func audioCommands(au stage.Audio) []Command {
	sfx := func(name string) Command {
		return Func(name, func(args string) error {
			clip, err := ParseArgs(name, args).Required(0, "clip")
			if err != nil {
				return err
			}
			return au.PlaySFX(clip)
		})
	}
	return []Command{
		sfx("playSFX"),
		sfx("playSound"),
		Func("playMusic", func(args string) error {
			track, err := ParseArgs("playMusic", args).Required(0, "track")
			if err != nil {
				return err
			}
			if strings.EqualFold(track, "null") {
				return au.StopMusic()
			}
			return au.PlayMusic(track)
		}),
		Func("stopMusic", func(string) error { return au.StopMusic() }),
		Func("playAmbiance", func(args string) error {
			track, err := ParseArgs("playAmbiance", args).Required(0, "track")
			if err != nil {
				return err
			}
			return au.PlayAmbiance(track)
		}),
		Func("stopAmbiance", func(args string) error {
			return au.StopAmbiance(ParseArgs("stopAmbiance", args).String(0))
		}),
	}
}

// eachTarget applies fn to every target and joins the failures, so one
// missing character does not stop the others.
func eachTarget(targets []string, fn func(string) error) error {
	var errs []error
	for _, t := range targets {
		if err := fn(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
