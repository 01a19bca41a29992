package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// handleEvents serves a Server-Sent Events stream of the render model. The
// current view is sent on connect, then again after every poller update.
// When a run stops a "done" event carries the final status.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	updates, unsub := s.ctl.Subscribe()
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering if present

	send := func(v ViewResponse) bool {
		data, err := json.Marshal(v)
		if err != nil {
			return false
		}
		fmt.Fprintf(w, "event: view\ndata: %s\n\n", data)
		flusher.Flush()
		return true
	}

	if !send(s.viewOf(s.ctl.Mirror())) {
		return
	}

	tick := time.NewTicker(s.keepAlive)
	defer tick.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case u, ok := <-updates:
			if !ok {
				return
			}
			v := s.viewOf(u.Mirror)
			if u.PollErr != nil {
				v.PollErr = u.PollErr.Error()
			}
			if u.Preview != nil {
				v.Preview = u.Preview
			}
			if !send(v) {
				return
			}
			if u.Finished {
				status := "stopped"
				if u.Mirror.LastResult != nil {
					status = string(u.Mirror.LastResult.Status)
				}
				fmt.Fprintf(w, "event: done\ndata: %s\n\n", status)
				flusher.Flush()
			}
		}
	}
}
