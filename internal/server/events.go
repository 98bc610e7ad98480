package server

import (
	"fmt"
	"net/http"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/scribe/internal/pipeline"
)

// clientBuffer bounds how many pending events a slow subscriber may lag
// behind before it starts losing them.
const clientBuffer = 16

// EventStream fans pipeline run events out to SSE subscribers. It satisfies
// pipeline.Notifier, so wiring it into a Pipeline is enough to make every
// run visible on the events endpoint.
type EventStream struct {
	mu      sync.Mutex
	nextID  int
	clients map[int]chan []byte
}

// NewEventStream creates an EventStream with no subscribers.
func NewEventStream() *EventStream {
	return &EventStream{clients: make(map[int]chan []byte)}
}

// Notify broadcasts one run event. Subscribers that cannot keep up drop
// events instead of blocking the pipeline.
func (es *EventStream) Notify(ev pipeline.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode run event")
		return
	}

	es.mu.Lock()
	defer es.mu.Unlock()
	for id, ch := range es.clients {
		select {
		case ch <- data:
		default:
			log.Debug().Int("client_id", id).Msg("Slow event subscriber, dropping event")
		}
	}
}

func (es *EventStream) subscribe() (int, chan []byte) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.nextID++
	ch := make(chan []byte, clientBuffer)
	es.clients[es.nextID] = ch
	return es.nextID, ch
}

func (es *EventStream) unsubscribe(id int) {
	es.mu.Lock()
	defer es.mu.Unlock()
	delete(es.clients, id)
}

// SubscriberCount returns the number of connected subscribers.
func (es *EventStream) SubscriberCount() int {
	es.mu.Lock()
	defer es.mu.Unlock()
	return len(es.clients)
}

// ServeHTTP streams events to one subscriber until it disconnects.
func (es *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, ch := es.subscribe()
	defer es.unsubscribe(id)
	log.Debug().Int("client_id", id).Msg("Event subscriber connected")

	fmt.Fprintf(w, "data: {\"type\":\"connected\"}\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			log.Debug().Int("client_id", id).Msg("Event subscriber disconnected")
			return
		case data := <-ch:
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
