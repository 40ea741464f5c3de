package api

import (
	"io"
	"net/http"
	"strings"

	"rag-chat/internal/domain/model"
	"rag-chat/internal/infra/logging"
	"rag-chat/internal/usecase"
)

const sessionHeader = "X-Chat-Session-Id"

// streamSSE runs one exchange and writes its events as server-sent events.
// Rejections are plain JSON errors since no stream has started.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ex, err := s.rag.Ask(r.Context(), usecase.AskRequest{
		Query:     q.Get("query"),
		SessionID: q.Get("chat_history_id"),
		Transport: "sse",
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set(sessionHeader, ex.SessionID)
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_ = rc.Flush()

	broken := false
	for ev := range ex.Events {
		// keep draining after a write failure so the exchange can finish
		if broken {
			continue
		}
		if err := writeSSE(w, ev); err != nil {
			broken = true
			continue
		}
		if err := rc.Flush(); err != nil {
			broken = true
		}
	}
	if broken {
		l := logging.With(r.Context(), s.log)
		l.Debug().Str("session_id", ex.SessionID).Msg("sse client went away")
	}
}

// writeSSE frames ev. Status events are named; tokens and done go out as
// default messages. Each payload line gets its own data field.
func writeSSE(w io.Writer, ev model.StreamEvent) error {
	var b strings.Builder
	if ev.Type == model.EventStatus {
		b.WriteString("event: status\n")
	}
	data := strings.ReplaceAll(ev.Data(), "\r\n", "\n")
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
