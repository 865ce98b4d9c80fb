package websocket

import (
	"time"

	"github.com/raaihank/mailscraped/internal/etl"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeRunStarted is sent when an upload begins processing
	EventTypeRunStarted EventType = "run_started"
	// EventTypeRunProgress is sent periodically while rows are processed
	EventTypeRunProgress EventType = "run_progress"
	// EventTypeRunCompleted is sent when the artifact has been written
	EventTypeRunCompleted EventType = "run_completed"
	// EventTypeRunFailed is sent when a run aborts
	EventTypeRunFailed EventType = "run_failed"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RunID     string      `json:"run_id,omitempty"`
}

// RunStartedEvent announces a new run
type RunStartedEvent struct {
	RunID    string `json:"run_id"`
	Filename string `json:"filename"`
}

// RunProgressEvent carries the counters of a run in flight
type RunProgressEvent struct {
	RunID string       `json:"run_id"`
	Stats etl.RunStats `json:"stats"`
}

// RunCompletedEvent summarizes a finished run. Entries are not included.
type RunCompletedEvent struct {
	RunID string       `json:"run_id"`
	File  string       `json:"file"`
	Count int          `json:"count"`
	Stats etl.RunStats `json:"stats"`
}

// RunFailedEvent reports an aborted run without internal error details
type RunFailedEvent struct {
	RunID  string `json:"run_id"`
	Reason string `json:"reason"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	Message  string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest narrows the events a client receives
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
	RunIDs []string    `json:"run_ids,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID           string
	Conn         interface{} // Will be *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
	UserAgent    string
}
