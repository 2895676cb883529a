/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package remote

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeControl struct{ got chan string }

func newFakeControl() *fakeControl { return &fakeControl{got: make(chan string, 16)} }

func (f *fakeControl) RequestAdvance()      { f.got <- "advance" }
func (f *fakeControl) RequestSkip()         { f.got <- "skip" }
func (f *fakeControl) MakeChoice(i int)     { f.got <- fmt.Sprintf("choice %d", i) }
func (f *fakeControl) AcceptInput(v string) { f.got <- "input " + v }
func (f *fakeControl) RollBack()            { f.got <- "back" }

func (f *fakeControl) next(t *testing.T) string {
	t.Helper()
	select {
	case s := <-f.got:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for control call")
		return ""
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.Clients(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClientCommandsReachControl(t *testing.T) {
	hub := NewHub()
	ctrl := newFakeControl()
	srv := httptest.NewServer(NewServer(hub, ctrl).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	for _, msg := range []string{
		`{"type":"advance"}`,
		`{"type":"skip"}`,
		`{"type":"choice","index":1}`,
		`{"type":"input","value":"Ada"}`,
		`{"type":"back"}`,
		`not json`,
		`{"type":"dance"}`,
		`{"type":"advance"}`,
	} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
	}
	assert.Equal(t, "advance", ctrl.next(t))
	assert.Equal(t, "skip", ctrl.next(t))
	assert.Equal(t, "choice 1", ctrl.next(t))
	assert.Equal(t, "input Ada", ctrl.next(t))
	assert.Equal(t, "back", ctrl.next(t))
	assert.Equal(t, "advance", ctrl.next(t))
}

func TestEventsAreBroadcast(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewServer(hub, newFakeControl()).Handler())
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	waitClients(t, hub, 2)

	hub.ChapterStarted("chapter1")
	hub.ShowChoices("Pick", []string{"A", "B"})
	hub.LineStarted(0)

	for _, conn := range []*websocket.Conn{a, b} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, EventChapterStarted, ev.Type)
		assert.Equal(t, "chapter1", ev.Chapter)
		assert.NotEmpty(t, ev.TS)

		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, EventChoices, ev.Type)
		assert.Equal(t, []string{"A", "B"}, ev.Labels)

		ev = Event{}
		require.NoError(t, conn.ReadJSON(&ev))
		require.NotNil(t, ev.Line)
		assert.Equal(t, 0, *ev.Line)
	}

	_ = a.Close()
	waitClients(t, hub, 1)
}

func TestBroadcastDropsWhenQueueFull(t *testing.T) {
	hub := NewHub()
	c := hub.add()
	for i := 0; i < clientQueue+5; i++ {
		hub.HideWidgets()
	}
	assert.Len(t, c.q, clientQueue)
	assert.Equal(t, 5, hub.Dropped())

	raw := <-c.q
	var ev map[string]any
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, EventHide, ev["type"])
	_, hasLine := ev["line"]
	assert.False(t, hasLine)

	hub.remove(c)
	assert.Equal(t, 0, hub.Clients())
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(NewServer(NewHub(), newFakeControl()).Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}
