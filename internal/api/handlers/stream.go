package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// ConversationIDHeader carries the active conversation id of a chat turn
const ConversationIDHeader = "X-Conversation-Id"

// streamWriter relays a chat turn to the HTTP response. The status line is written
// lazily with the first chunk so that failures before it can still become error responses.
type streamWriter struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	sse       bool
	committed bool
}

func newStreamWriter(w http.ResponseWriter, r *http.Request) *streamWriter {
	flusher, _ := w.(http.Flusher)
	return &streamWriter{
		w:       w,
		flusher: flusher,
		sse:     strings.Contains(r.Header.Get("Accept"), "text/event-stream"),
	}
}

// Start sets the conversation header; it goes out with the status line
func (s *streamWriter) Start(conversationID int64) {
	s.w.Header().Set(ConversationIDHeader, strconv.FormatInt(conversationID, 10))
}

// Chunk writes one piece of the reply and flushes it to the client
func (s *streamWriter) Chunk(text string) error {
	s.commit()

	var err error
	if s.sse {
		err = writeSSEData(s.w, text)
	} else {
		_, err = io.WriteString(s.w, text)
	}
	if err != nil {
		return err
	}

	s.flush()
	return nil
}

// Finish terminates a successful stream
func (s *streamWriter) Finish() {
	s.commit()
	if s.sse {
		fmt.Fprint(s.w, "data: [DONE]\n\n")
	}
	s.flush()
}

// Committed reports whether the status line has been sent
func (s *streamWriter) Committed() bool {
	return s.committed
}

func (s *streamWriter) commit() {
	if s.committed {
		return
	}

	h := s.w.Header()
	if s.sse {
		h.Set("Content-Type", "text/event-stream")
		h.Set("Connection", "keep-alive")
	} else {
		h.Set("Content-Type", "text/plain; charset=utf-8")
		h.Set("X-Content-Type-Options", "nosniff")
	}
	h.Set("Cache-Control", "no-cache")

	s.w.WriteHeader(http.StatusOK)
	s.committed = true
}

func (s *streamWriter) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// writeSSEData frames text as one SSE event; embedded newlines become extra data lines
func writeSSEData(w io.Writer, text string) error {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
