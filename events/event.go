// Package events defines the brightness change events consumed by the mapper.
package events

import "time"

// Event is a single brightness change reported by an event camera at an integer pixel.
type Event struct {
	X, Y      int
	Timestamp time.Time
	Polarity  bool
}

// Packet returns the event at the temporal midpoint of a packet of size events starting at from.
// The caller guarantees from+size <= len(evs).
func Packet(evs []Event, from, size int) ([]Event, time.Time) {
	packet := evs[from : from+size]
	return packet, packet[size/2].Timestamp
}

// Span returns the time between the first and last event; zero for fewer than two events.
func Span(evs []Event) time.Duration {
	if len(evs) < 2 {
		return 0
	}
	return evs[len(evs)-1].Timestamp.Sub(evs[0].Timestamp)
}
