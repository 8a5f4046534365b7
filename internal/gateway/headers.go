package gateway

import "net/http"

// setStreamHeaders prepares the response for SSE relay: no caching, no
// intermediary buffering, connection held open for the stream's life.
func setStreamHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}
