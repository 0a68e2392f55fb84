package hub

import (
	"context"
	"encoding/json"
	"time"
)

// textMessage mirrors websocket.TextMessage without importing the transport
// package here.
const textMessage = 1

type clientMessage struct {
	Action     string   `json:"action"`
	ID         string   `json:"id,omitempty"`
	Types      []string `json:"types,omitempty"`
	PipelineID string   `json:"pipelineId,omitempty"`
	Metric     string   `json:"metric,omitempty"`
}

func (h *Hub) handleMessage(c *client, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.enqueue(c, map[string]any{"event": "error", "code": "bad_message"})
		return
	}
	switch msg.Action {
	case "subscribe:pipeline":
		if msg.ID == "" {
			h.enqueue(c, map[string]any{"event": "error", "code": "missing_pipeline"})
			return
		}
		h.mu.Lock()
		c.sub.pipelines[msg.ID] = struct{}{}
		h.mu.Unlock()
		h.enqueue(c, map[string]any{"event": "subscribed", "type": "pipeline", "id": msg.ID})
	case "unsubscribe:pipeline":
		h.mu.Lock()
		delete(c.sub.pipelines, msg.ID)
		h.mu.Unlock()
		h.enqueue(c, map[string]any{"event": "unsubscribed", "type": "pipeline", "id": msg.ID})
	case "subscribe:alerts":
		h.mu.Lock()
		for _, t := range msg.Types {
			c.sub.alertTypes[t] = struct{}{}
		}
		h.mu.Unlock()
		h.enqueue(c, map[string]any{"event": "subscribed", "type": "alerts", "types": msg.Types})
	case "subscribe:global":
		h.mu.Lock()
		c.sub.global = true
		h.mu.Unlock()
		h.enqueue(c, map[string]any{"event": "subscribed", "type": "global"})
	case "request:analysis":
		h.handleAnalysisRequest(c, msg)
	case "pong":
		// lastSeen already refreshed by the read loop
	default:
		h.enqueue(c, map[string]any{"event": "error", "code": "unknown_action"})
	}
}

func (h *Hub) handleAnalysisRequest(c *client, msg clientMessage) {
	if h.opts.Analyze == nil {
		h.enqueue(c, map[string]any{"event": "analysis:error", "code": "analysis_unavailable"})
		return
	}
	if msg.PipelineID == "" || msg.Metric == "" {
		h.enqueue(c, map[string]any{"event": "analysis:error", "code": "missing_parameters"})
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		result, err := h.opts.Analyze(ctx, msg.PipelineID, msg.Metric)
		if err != nil {
			h.enqueue(c, map[string]any{
				"event":      "analysis:error",
				"code":       "analysis_failed",
				"pipelineId": msg.PipelineID,
				"metric":     msg.Metric,
			})
			return
		}
		h.enqueue(c, map[string]any{
			"event":      "analysis:result",
			"pipelineId": msg.PipelineID,
			"metric":     msg.Metric,
			"result":     result,
		})
	}()
}
