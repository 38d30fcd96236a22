package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/mediaout/internal/api/models"
	"github.com/smazurov/mediaout/internal/events"
)

// registerSSERoutes registers the output event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Output Event Stream",
		Description: "Output lifecycle signals: start with a result code, stop, creation, destruction and settings updates",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"connected":        models.ConnectedEvent{},
		"output-start":     events.OutputStartEvent{},
		"output-stop":      events.OutputStopEvent{},
		"output-created":   events.OutputCreatedEvent{},
		"output-destroyed": events.OutputDestroyedEvent{},
		"output-updated":   events.OutputUpdatedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		bus := s.manager.Events()
		defer events.SubscribeOutputEvents(bus, eventCh)()

		if err := send.Data(models.ConnectedEvent{
			Message:   "SSE connection established",
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}
