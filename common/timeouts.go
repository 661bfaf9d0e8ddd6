package common

import "time"

// Timeouts groups the waits used across the relay.
type Timeouts struct {
	// Submit bounds a dispatcher exchange when the caller's context has no deadline.
	Submit time.Duration
	// CardWait bounds the wait for a card to be inserted in the reader.
	CardWait time.Duration
	// Handshake bounds the TLS/QUIC handshake of network channels.
	Handshake time.Duration
	// Idle closes network channels without traffic.
	Idle time.Duration
}

func NewTimeouts() *Timeouts {
	return &Timeouts{
		Submit:    30 * time.Second,
		CardWait:  10 * time.Second,
		Handshake: 5 * time.Second,
		Idle:      60 * time.Second,
	}
}

// ApplyDefaults fills zero fields from NewTimeouts.
func (t *Timeouts) ApplyDefaults() {
	d := NewTimeouts()
	if t.Submit <= 0 {
		t.Submit = d.Submit
	}
	if t.CardWait <= 0 {
		t.CardWait = d.CardWait
	}
	if t.Handshake <= 0 {
		t.Handshake = d.Handshake
	}
	if t.Idle <= 0 {
		t.Idle = d.Idle
	}
}
