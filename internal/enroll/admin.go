package enroll

import (
	"encoding/json"
	"fmt"
	"net/http"

	"tailscale.com/tsweb"
)

type status struct {
	Stats   Stats     `json:"stats"`
	Session *Snapshot `json:"session,omitempty"`
}

// AttachAdminRoutes attaches the enrollment debug endpoints to mux under
// /debug/. They are reachable only from localhost or over Tailscale.
func (e *Enroller) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.Handle("enroll-status", "current enrollment session and counters", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		st := status{Stats: e.Stats()}
		if snap, ok := e.Last(); ok {
			st.Session = &snap
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(st); err != nil {
			http.Error(w, "Failed to encode status", http.StatusInternalServerError)
		}
	}))

	// Server-Sent Events stream of session transitions.
	debug.HandleSilent("enroll-tail", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := e.hub.Subscribe()
		defer e.hub.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case snap, ok := <-c:
				if !ok {
					return
				}
				payload, err := json.Marshal(snap)
				if err != nil {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}))
}
