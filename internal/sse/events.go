package sse

// EventType enumerates frame kinds on a progress stream.
type EventType string

const (
	EventHeartbeat EventType = "heartbeat"
	EventProgress  EventType = "progress"
	EventChunk     EventType = "chunk"
	EventError     EventType = "error"
	EventComplete  EventType = "complete"
)

// Event is one frame on a progress stream.
type Event struct {
	Type    EventType `json:"type"`
	Stage   string    `json:"stage,omitempty"`
	Percent int       `json:"percent,omitempty"`
	Index   int       `json:"index,omitempty"`
	Total   int       `json:"total,omitempty"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
}

// Sink receives events from stage code. Implementations must tolerate calls
// after the consumer is gone.
type Sink interface {
	Send(event Event)
}

// Progress builds a progress frame for a stage.
func Progress(stage string, percent int, message string) Event {
	return Event{Type: EventProgress, Stage: stage, Percent: percent, Message: message}
}

// ItemProgress builds a progress frame carrying item counts within a batch.
func ItemProgress(stage string, index, total int, message string) Event {
	percent := 0
	if total > 0 {
		percent = index * 100 / total
	}
	return Event{Type: EventProgress, Stage: stage, Percent: percent, Index: index, Total: total, Message: message}
}

// Chunk builds a partial-output frame, e.g. one finished segment.
func Chunk(stage string, data any) Event {
	return Event{Type: EventChunk, Stage: stage, Data: data}
}

// Error builds the terminal error frame.
func Error(message string) Event {
	return Event{Type: EventError, Message: message}
}

// Complete builds the terminal completion frame.
func Complete(data any) Event {
	return Event{Type: EventComplete, Data: data}
}

// Heartbeat builds a keep-alive frame.
func Heartbeat() Event {
	return Event{Type: EventHeartbeat}
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Send(Event) {}
