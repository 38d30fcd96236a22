package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/mediaout/internal/api/models"
	"github.com/smazurov/mediaout/internal/events"
	"github.com/smazurov/mediaout/internal/logging"
)

// ForwardLogs publishes every new log entry on bus so log streams can follow
// it. Returns a function that stops forwarding.
func ForwardLogs(bus *events.Bus) func() {
	logging.SetLogCallback(func(entry logging.LogEntry) {
		bus.Publish(logEvent(entry))
	})
	return func() { logging.SetLogCallback(nil) }
}

func logEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}

// registerLogRoutes registers buffered log access and the log stream.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Get the most recent buffered log entries, oldest first",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *models.LogsRequest) (*models.LogsResponse, error) {
		entries := []models.LogEntryData{}
		if buffer := logging.GetBuffer(); buffer != nil {
			q := logging.Query{Module: input.Module, After: input.After, Tail: input.Tail}
			for _, e := range buffer.Select(q) {
				entries = append(entries, models.LogEntryData(logEvent(e)))
			}
		}
		return &models.LogsResponse{
			Body: models.LogsData{Entries: entries, Count: len(entries)},
		}, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Sends buffered logs first, then streams new entries as they are written. Reconnecting clients resume after Last-Event-ID.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, input *models.LogStreamRequest, send sse.Sender) {
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.manager.Events(), eventCh)
		defer unsubscribe()

		last := input.LastEventID
		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.Select(logging.Query{After: last}) {
				if err := sendLog(send, logEvent(entry)); err != nil {
					return
				}
				last = entry.Seq
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				entry, ok := ev.(events.LogEntryEvent)
				// Entries written between subscribe and replay arrive twice.
				// Seq is zero only when nothing is buffered.
				if !ok || (entry.Seq != 0 && entry.Seq <= last) {
					continue
				}
				if err := sendLog(send, entry); err != nil {
					return
				}
			}
		}
	})
}

func sendLog(send sse.Sender, ev events.LogEntryEvent) error {
	return send(sse.Message{ID: int(ev.Seq), Data: ev})
}
