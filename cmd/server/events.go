package main

import (
	"encoding/json"
	"net/http"

	"github.com/neurolab-io/corepipe/internal/eventbus"
)

// registerEventStream exposes each eventbus room over server-sent events,
// so a UI can subscribe to job_progress/recording_update/realtime_features/
// realtime_prediction for one job or recording without a websocket
// dependency. /events/job/{id} and /events/recording/{id} map directly to
// eventbus.RoomForJob/RoomForRecording.
func registerEventStream(mux *http.ServeMux, bus *eventbus.Bus) {
	mux.HandleFunc("/events/job/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/events/job/"):]
		streamRoom(w, r, bus, eventbus.RoomForJob(id))
	})
	mux.HandleFunc("/events/recording/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/events/recording/"):]
		streamRoom(w, r, bus, eventbus.RoomForRecording(id))
	})
}

func streamRoom(w http.ResponseWriter, r *http.Request, bus *eventbus.Bus, room string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, unsubscribe := bus.Subscribe(room)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			w.Write([]byte("event: "))
			w.Write([]byte(msg.Type))
			w.Write([]byte("\ndata: "))
			w.Write(payload)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
