package llm

import (
	"context"
	"errors"
)

// Message is one turn sent upstream
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamChunk is one item of a streamed completion. A chunk with a non-nil Err or with
// Done set is the last one sent before the channel closes; only Done marks a reply the
// upstream finished.
type StreamChunk struct {
	Content string
	Err     error
	Done    bool
}

// Provider defines the interface for upstream completion APIs
type Provider interface {
	// StreamChat submits the turn sequence and streams the reply. The returned channel is
	// closed once the reply ends (after a Done chunk), the upstream fails, or ctx is done.
	StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error)

	// Model returns the fixed model identifier requests are made with
	Model() string
}

// ErrNoAPIKey is returned by providers that cannot run without a credential
var ErrNoAPIKey = errors.New("LLM_API_KEY not configured")

// ErrTruncatedStream is sent when the upstream body ends before the stream terminator
var ErrTruncatedStream = errors.New("stream ended before [DONE]")

// send delivers chunk unless ctx is done first
func send(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish marks the natural end of the reply
func finish(ctx context.Context, ch chan<- StreamChunk) {
	send(ctx, ch, StreamChunk{Done: true})
}

// fail sends a terminal error chunk, preferring the context error when ctx is done
func fail(ctx context.Context, ch chan<- StreamChunk, err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	select {
	case ch <- StreamChunk{Err: err}:
	case <-ctx.Done():
	}
}
