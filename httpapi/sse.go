package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/agentmesh/router/stream"
)

// streamParts writes strm's Parts to w as newline-delimited JSON as they
// arrive, flushing after each one, until strm closes or the request is
// canceled. Parts.Write happens on a separate goroutine driving the
// handler (see router.Router.Handle), so this polls the buffered, mutex-
// guarded snapshot rather than racing to attach a sink before the handler
// starts (spec.md §3: "a reader reconstructs assistant messages... a Stream
// is a lazy, append-only sequence").
func streamParts(w http.ResponseWriter, r *http.Request, strm *stream.Stream) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	enc := json.NewEncoder(w)
	sent := 0
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		parts := strm.Parts()
		for ; sent < len(parts); sent++ {
			if err := enc.Encode(parts[sent]); err != nil {
				return
			}
		}
		if flusher != nil {
			flusher.Flush()
		}
		if strm.Closed() && sent >= len(strm.Parts()) {
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
