package ws

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/contentos/contentos-backend/internal/cache"
)

// SSEHandler streams the same event feed as the WebSocket endpoint for
// clients that prefer EventSource.
type SSEHandler struct {
	cache  *cache.Cache
	logger *zap.SugaredLogger
}

func NewSSEHandler(c *cache.Cache, logger *zap.SugaredLogger) *SSEHandler {
	return &SSEHandler{
		cache:  c,
		logger: logger,
	}
}

func (h *SSEHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Subscribe before the headers go out so no event published after the
	// client sees the stream open can be missed.
	ctx := r.Context()
	sub := h.cache.Subscribe(ctx, cache.ChannelEvents)
	defer sub.Close()

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debugw("SSE connection established", "remote_addr", r.RemoteAddr)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()

		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg.Payload)
			flusher.Flush()
		}
	}
}

// ToastNotifier surfaces mutation notifications to every open session as
// toast events, and mirrors them into the log. Implements
// calendar.Notifier.
type ToastNotifier struct {
	hub    *Hub
	logger *zap.SugaredLogger
}

func NewToastNotifier(hub *Hub, logger *zap.SugaredLogger) *ToastNotifier {
	return &ToastNotifier{
		hub:    hub,
		logger: logger,
	}
}

func (n *ToastNotifier) Notify(level, message string) {
	if level == "error" {
		n.logger.Warnw("Toast", "level", level, "message", message)
	} else {
		n.logger.Debugw("Toast", "level", level, "message", message)
	}
	n.hub.Broadcast("toast", map[string]string{"level": level, "message": message})
}
