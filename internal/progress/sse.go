package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ServeSSE streams hub events to the client as server-sent events, emitting
// a comment keepalive frame whenever the stream is idle for keepalive. The
// keepalive carries no job state and is ignored by event parsers.
func ServeSSE(ctx context.Context, w http.ResponseWriter, hub *Hub, keepalive time.Duration) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New("progress stream: response writer does not support flushing")
	}
	if keepalive <= 0 {
		keepalive = 15 * time.Second
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var since uint64
	// Replay whatever is buffered so a late subscriber sees recent history.
	events, next, _ := hub.Fetch(ctx, since, 0, false)
	if err := writeEvents(w, flusher, events); err != nil {
		return err
	}
	since = next

	for {
		waitCtx, cancel := context.WithTimeout(ctx, keepalive)
		events, next, err := hub.Fetch(waitCtx, since, 0, true)
		cancel()

		if len(events) > 0 {
			if err := writeEvents(w, flusher, events); err != nil {
				return err
			}
			since = next
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
			return err
		}
		flusher.Flush()
	}
}

func writeEvents(w http.ResponseWriter, flusher http.Flusher, events []Event) error {
	for _, evt := range events {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("progress stream: encode event: %w", err)
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload); err != nil {
			return err
		}
	}
	flusher.Flush()
	return nil
}
