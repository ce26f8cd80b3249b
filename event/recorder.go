package event

import "sync"

// Recorder is the test Bus: it remembers everything published.
type Recorder struct {
	mu     sync.Mutex
	byRoom map[string][]Envelope
}

func NewRecorder() *Recorder {
	return &Recorder{byRoom: make(map[string][]Envelope)}
}

func (r *Recorder) Publish(room string, env Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byRoom[room] = append(r.byRoom[room], env)
	return nil
}

// Room returns everything published to a room, in order.
func (r *Recorder) Room(room string) []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.byRoom[room]...)
}

// Events returns the event names seen in a room, in order.
func (r *Recorder) Events(room string) []string {
	var names []string
	for _, env := range r.Room(room) {
		names = append(names, env.Event)
	}
	return names
}
