package event

import "time"

// Topics published by the runtime.
const (
	// ReloadConfig fires when the process is asked to re-read its
	// configuration.
	ReloadConfig = "ReloadConfig"
)

// Subscriber handles one published event.
type Subscriber func(param any)

// Topic is the subscription list for one event name. The timeout bounds how
// long Publish waits for the subscribers of this topic.
type Topic struct {
	timeout     time.Duration
	subscribers []Subscriber
}
