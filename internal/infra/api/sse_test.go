//go:build !integration

package api

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-chat/internal/domain/model"
)

func TestWriteSSE(t *testing.T) {
	tests := []struct {
		name string
		ev   model.StreamEvent
		want string
	}{
		{"status is named", model.StatusEvent("Retrieving relevant context..."), "event: status\ndata: Retrieving relevant context...\n\n"},
		{"token is unnamed", model.TokenEvent(" Paris"), "data:  Paris\n\n"},
		{"multi-line token", model.TokenEvent("a\r\nb\nc"), "data: a\ndata: b\ndata: c\n\n"},
		{"done", model.DoneEvent(), "data: [DONE]\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeSSE(&buf, tt.ev))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

// sseEvent is one parsed frame.
type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	var (
		out  []sseEvent
		cur  sseEvent
		data []string
	)
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			cur.data = strings.Join(data, "\n")
			out = append(out, cur)
			cur, data = sseEvent{}, nil
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}
	require.NoError(t, sc.Err())
	return out
}

func TestStreamSSE_NewSession(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.srv.URL + "/api/chats/stream?query=" + url.QueryEscape("What is the capital of France?"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	sessionID := resp.Header.Get(sessionHeader)
	require.NotEmpty(t, sessionID)

	events := readSSE(t, resp.Body)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "[DONE]", last.data)

	var answer strings.Builder
	seenToken := false
	for _, ev := range events[:len(events)-1] {
		if ev.name == "status" {
			assert.False(t, seenToken, "status after a token")
			assert.Equal(t, "Retrieving relevant context...", ev.data)
			continue
		}
		seenToken = true
		answer.WriteString(ev.data)
	}
	assert.Equal(t, "You asked: What is the capital of France?", answer.String())

	msgs := waitForMessages(t, env.repo, sessionID, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, answer.String(), msgs[1].Content)

	require.Eventually(t, func() bool {
		s, err := env.repo.FindByID(context.Background(), sessionID)
		return err == nil && s.Title == "What is the capital of France?"
	}, time.Second, 10*time.Millisecond)
}

func TestStreamSSE_Rejections(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name  string
		query string
		code  int
	}{
		{"missing query", "", http.StatusBadRequest},
		{"blank query", "query=%20%20", http.StatusBadRequest},
		{"unknown session", "query=hi&chat_history_id=nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(env.srv.URL + "/api/chats/stream?" + tt.query)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		})
	}

	list, err := env.repo.List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list, "rejected requests create nothing")
}

func TestStreamSSE_RateLimited(t *testing.T) {
	lim := &countingLimiter{n: 1}
	env := newTestEnv(t, func(d *Deps) { d.Limiter = lim })

	first, err := http.Get(env.srv.URL + "/api/chats/stream?query=hi")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, first.Body)
	first.Body.Close()
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Get(env.srv.URL + "/api/chats/stream?query=hi")
	require.NoError(t, err)
	second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.Equal(t, []string{"stream", "stream"}, lim.Routes())
}
