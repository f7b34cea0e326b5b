package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MaxReplyButtons is the WhatsApp limit for interactive reply buttons.
const MaxReplyButtons = 3

// ErrTooManyButtons is returned when a reply-button message exceeds MaxReplyButtons.
var ErrTooManyButtons = errors.New("messaging: too many reply buttons")

// Button is an interactive reply button.
type Button struct {
	ID    string
	Title string
}

// ListRow is a single selectable row of an interactive list.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// ListSection groups rows under a heading.
type ListSection struct {
	Title string
	Rows  []ListRow
}

// List is an interactive list message.
type List struct {
	Body       string
	ButtonText string
	Sections   []ListSection
}

// Template is a pre-approved template message. QuickReplies holds the payload
// of each quick-reply button by index.
type Template struct {
	Name         string
	Language     string
	BodyParams   []string
	QuickReplies []string
}

// Location is a map pin.
type Location struct {
	Latitude  float64
	Longitude float64
	Name      string
	Address   string
}

// Contact is a contact card.
type Contact struct {
	FormattedName string
	FirstName     string
	LastName      string
	Company       string
	Department    string
	Title         string
	Phone         string
	WaID          string
	Email         string
	URL           string
	Street        string
	City          string
}

// Messenger is the outbound capability the bot needs from a chat channel.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	SendButtons(ctx context.Context, to, body string, buttons []Button) error
	SendList(ctx context.Context, to string, list List) error
	SendTemplate(ctx context.Context, to string, tmpl Template) error
	SendLocation(ctx context.Context, to string, loc Location) error
	SendContact(ctx context.Context, to string, contact Contact) error
	MarkRead(ctx context.Context, messageID string) error
}

// ValidateButtons checks reply buttons before they reach the provider.
func ValidateButtons(buttons []Button) error {
	if len(buttons) == 0 {
		return errors.New("messaging: at least one button required")
	}
	if len(buttons) > MaxReplyButtons {
		return fmt.Errorf("%w: got %d, max %d", ErrTooManyButtons, len(buttons), MaxReplyButtons)
	}
	seen := make(map[string]struct{}, len(buttons))
	for _, b := range buttons {
		id := strings.TrimSpace(b.ID)
		if id == "" || strings.TrimSpace(b.Title) == "" {
			return errors.New("messaging: button id and title required")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("messaging: duplicate button id %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
