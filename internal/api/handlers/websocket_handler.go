package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fleetlens/backend/internal/apperr"
	"github.com/fleetlens/backend/internal/query"
	"github.com/fleetlens/backend/pkg/logger"
)

// WebSocketHandler runs chart requests over a websocket, reporting each stage
// before the result so clients can show progress on large datasets.
type WebSocketHandler struct {
	engine *query.Engine
}

func NewWebSocketHandler(engine *query.Engine) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type string             `json:"type"`
			ID   string             `json:"id"`
			Req  query.ChartRequest `json:"request"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "chart" {
			h.send(c, map[string]any{"type": "error", "id": msg.ID, "error": "Unsupported message type"})
			continue
		}

		if err := h.streamChart(c, msg.ID, msg.Req); err != nil {
			logger.Error("Failed to stream chart", zap.Error(err))
			break
		}
	}
}

// streamChart reports progress and the outcome of one chart request. Only
// write failures are returned; chart failures are sent to the client.
func (h *WebSocketHandler) streamChart(c *websocket.Conn, id string, req query.ChartRequest) error {
	var writeErr error
	progress := func(stage string) {
		if writeErr == nil {
			writeErr = h.send(c, map[string]any{"type": "progress", "id": id, "stage": stage})
		}
	}

	resp, err := h.engine.ChartWithProgress(context.Background(), req, progress)
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		return h.send(c, outcomeMessage(id, err))
	}

	return h.send(c, map[string]any{
		"type":       "complete",
		"id":         id,
		"chart_id":   resp.ID,
		"result":     resp.Result,
		"cache_hit":  resp.CacheHit,
		"latency_ms": resp.LatencyMS,
	})
}

func outcomeMessage(id string, err error) map[string]any {
	switch kind := apperr.KindOf(err); kind {
	case apperr.KindEmptyResult:
		return map[string]any{"type": "complete", "id": id, "status": "no_data", "message": apperr.UserMessage(err)}
	case apperr.KindBadQuery, apperr.KindNotFound, apperr.KindLoad:
		return map[string]any{"type": "error", "id": id, "kind": kind, "error": apperr.UserMessage(err)}
	default:
		return map[string]any{"type": "error", "id": id, "error": "An internal error occurred"}
	}
}

func (h *WebSocketHandler) send(c *websocket.Conn, msg map[string]any) error {
	return c.WriteJSON(msg)
}
