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
	"reflect"
	"testing"

	"gonovel/internal/stage"
)

// recorder captures collaborator calls as strings.
type recorder struct{ calls []string }

func (r *recorder) add(format string, args ...any) error {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	return nil
}

func (r *recorder) SetLayer(l stage.Layer, img stage.ImageRef, speed float64, smooth bool) error {
	return r.add("set %s %s %g %t", l, img, speed, smooth)
}
func (r *recorder) TransitionLayer(l stage.Layer, img stage.ImageRef, effect string, speed float64, smooth bool) error {
	return r.add("trans %s %s %s %g %t", l, img, effect, speed, smooth)
}
func (r *recorder) ShowScene(show bool, effect string, speed float64, smooth bool) error {
	return r.add("scene %t %s %g %t", show, effect, speed, smooth)
}
func (r *recorder) Enter(n string, speed float64, smooth bool) error {
	return r.add("enter %s %g %t", n, speed, smooth)
}
func (r *recorder) Exit(n string, speed float64, smooth bool) error {
	return r.add("exit %s %g %t", n, speed, smooth)
}
func (r *recorder) Move(n string, x, y, speed float64, smooth bool) error {
	return r.add("move %s %g %g %g %t", n, x, y, speed, smooth)
}
func (r *recorder) SetPosition(n string, x, y float64) error { return r.add("pos %s %g %g", n, x, y) }
func (r *recorder) SetExpression(n string, region stage.Region, e string, speed float64) error {
	return r.add("expr %s %s %s %g", n, region, e, speed)
}
func (r *recorder) Face(n string, f stage.Facing) error { return r.add("face %s %d", n, f) }
func (r *recorder) PlaySFX(n string) error              { return r.add("sfx %s", n) }
func (r *recorder) PlayMusic(n string) error            { return r.add("music %s", n) }
func (r *recorder) StopMusic() error                    { return r.add("music stop") }
func (r *recorder) PlayAmbiance(n string) error         { return r.add("amb %s", n) }
func (r *recorder) StopAmbiance(n string) error         { return r.add("amb stop %q", n) }
func (r *recorder) LoadChapter(n string) error          { return r.add("load %s", n) }

func newBuiltins(t *testing.T) (*Registry, *recorder) {
	t.Helper()
	rec := &recorder{}
	r := NewRegistry()
	if err := RegisterBuiltins(r, Collaborators{Layers: rec, Characters: rec, Audio: rec, Loader: rec}); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	return r, rec
}

func TestBuiltinDefaultsAndConventions(t *testing.T) {
	r, rec := newBuiltins(t)
	steps := []struct{ name, args string }{
		{"setBackground", "forest"},
		{"setCinematic", "null,true,0.5"},
		{"setForeground", ""},
		{"transBackground", "city,blinds,1.5"},
		{"showScene", "false,fade"},
		{"enter", "Raelin;Bob,true"},
		{"exit", "Bob"},
		{"move", "Raelin,0.3"},
		{"moveTo", "Raelin,0.3,0.1,2,false"},
		{"setPosition", "Raelin,0.9"},
		{"setFace", "Raelin,smile"},
		{"setBody", "Raelin,casual,1"},
		{"setExpression", "Raelin,body,armed"},
		{"flip", "Raelin;Bob"},
		{"faceLeft", "Raelin,Bob"},
		{"playSound", "door"},
		{"playMusic", "theme"},
		{"playMusic", "null"},
		{"playAmbiance", "rain"},
		{"stopAmbiance", ""},
		{"load", "chapter2"},
	}
	for _, s := range steps {
		if err := r.Dispatch(s.name, s.args); err != nil {
			t.Fatalf("%s(%s): %v", s.name, s.args, err)
		}
	}
	want := []string{
		"set background forest 2 false",
		"set cinematic null 0.5 true",
		"set foreground default 2 false",
		"trans background city blinds 1.5 false",
		"scene false fade 2 false",
		"enter Raelin 3 true",
		"enter Bob 3 true",
		"exit Bob 3 false",
		"move Raelin 0.3 0 7 true",
		"move Raelin 0.3 0.1 2 false",
		"pos Raelin 0.9 0",
		"expr Raelin face smile 3",
		"expr Raelin body casual 1",
		"expr Raelin body armed 5",
		"face Raelin 0",
		"face Bob 0",
		"face Raelin 1",
		"face Bob 1",
		"sfx door",
		"music theme",
		"music stop",
		"amb rain",
		"amb stop \"\"",
		"load chapter2",
	}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Fatalf("calls:\n%q\nwant:\n%q", rec.calls, want)
	}
}

func TestBuiltinMalformedRequiredFieldsNoOp(t *testing.T) {
	r, rec := newBuiltins(t)
	for _, s := range []struct{ name, args string }{
		{"move", "Raelin,left"},
		{"transForeground", "city"},
		{"setExpression", "Raelin,hair,curly"},
		{"enter", ""},
		{"playSFX", ""},
	} {
		if err := r.Dispatch(s.name, s.args); !errors.Is(err, ErrArgumentMalformed) {
			t.Fatalf("%s(%s): expected ErrArgumentMalformed, got %v", s.name, s.args, err)
		}
	}
	if len(rec.calls) != 0 {
		t.Fatalf("malformed commands reached collaborators: %q", rec.calls)
	}
}

func TestBuiltinMalformedOptionalFieldsFallBack(t *testing.T) {
	r, rec := newBuiltins(t)
	if err := r.Dispatch("move", "Raelin,0.5,high,fast,maybe"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := r.Dispatch("showScene", "perhaps,fade"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	want := []string{"move Raelin 0.5 0 7 true", "scene true fade 2 false"}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Fatalf("calls = %q", rec.calls)
	}
}

func TestMissingTargetDoesNotStopOthers(t *testing.T) {
	r := NewRegistry()
	m := stage.NewMemory(stage.StaticCatalog{stage.AssetCharacter: {"Raelin"}})
	_ = RegisterBuiltins(r, Collaborators{Characters: m})
	err := r.Dispatch("enter", "Ghost;Raelin")
	if !errors.Is(err, stage.ErrResourceMissing) {
		t.Fatalf("expected missing resource, got %v", err)
	}
	if !m.Snapshot().Characters["Raelin"].Visible {
		t.Fatalf("Raelin should still enter")
	}
}

func TestRegisterBuiltinsSkipsNilCollaborators(t *testing.T) {
	r := NewRegistry()
	if err := RegisterBuiltins(r, Collaborators{}); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	if len(r.Names()) != 0 {
		t.Fatalf("no collaborators should register nothing, got %v", r.Names())
	}
}
