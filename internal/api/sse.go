package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/readerglass/internal/events"
	"github.com/JakeFAU/readerglass/internal/reader"
)

// streamBuffer bounds the per-connection queue; a consumer that falls this
// far behind starts losing events rather than blocking publishers.
const streamBuffer = 64

// streamedEvents lists the bus events exposed on the SSE stream.
var streamedEvents = []string{
	reader.EventRouteChanged,
	reader.EventChapterChanged,
	reader.EventPageTurn,
	reader.EventProgressUpdated,
	reader.EventSettingsUpdated,
}

// streamEvents handles GET /v1/events/stream. Each connection gets its own
// owner-tagged bus subscriptions, torn down when the client disconnects.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus unavailable")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	owner := "sse-" + uuid.NewString()
	queue := make(chan events.Event, streamBuffer)
	push := func(evt events.Event) {
		select {
		case queue <- evt:
		default:
			// Slow consumer; newest-wins is not worth the complexity here.
		}
	}
	// Replay hands a fresh client the last known state of each topic before
	// live traffic starts.
	for _, name := range streamedEvents {
		s.bus.SubscribeWithReplay(name, push, events.WithOwner(owner))
	}
	defer s.bus.UnsubscribeOwner(owner)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-queue:
			if err := writeSSE(w, evt); err != nil {
				s.logger.Debug("event stream closed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, evt events.Event) error {
	data, err := json.Marshal(toWirePayload(evt.Payload))
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Name, data); err != nil {
		return fmt.Errorf("write event frame: %w", err)
	}
	return nil
}

// toWirePayload maps typed bus payloads onto their JSON wire shapes.
func toWirePayload(payload any) any {
	switch p := payload.(type) {
	case reader.RouteChanged:
		return struct {
			IsReader bool   `json:"is_reader"`
			URL      string `json:"url"`
			Pathname string `json:"pathname"`
			BookID   string `json:"book_id,omitempty"`
		}{p.IsReader, p.URL, p.Pathname, p.BookID}
	case reader.ChapterChanged:
		return struct {
			URL      string `json:"url"`
			Pathname string `json:"pathname"`
		}{p.URL, p.Pathname}
	case reader.PageTurn:
		return struct {
			Direction string `json:"direction"`
		}{string(p.Direction)}
	case reader.ProgressUpdated:
		return struct {
			BookID       string `json:"book_id"`
			ChapterIndex int    `json:"chapter_index"`
			Progress     int    `json:"progress"`
		}{p.BookID, p.ChapterIndex, p.Progress}
	case reader.SettingsUpdated:
		return struct {
			Version uint64 `json:"version"`
		}{p.Version}
	default:
		return payload
	}
}
