package conversation

// EventType classifies an inbound chat event.
type EventType string

const (
	EventText        EventType = "text"
	EventInteractive EventType = "interactive"
	EventImage       EventType = "image"
	// EventButton is a template quick-reply tap. It is routed like EventInteractive.
	EventButton EventType = "button"
)

// Event is a single inbound message already stripped of provider envelope.
type Event struct {
	Type       EventType
	From       string
	MessageID  string
	SenderName string
	Text       string
	OptionID   string
	MediaID    string
}
