// Package channel defines the contract between chat platform adapters and
// the dispatch coordinator: normalized inbound events and tagged outbound
// replies.
package channel

// Event is a normalized inbound chat event. Adapters translate their
// platform's native payload into this shape before handing it to dispatch.
// EventID must be stable across platform redeliveries so duplicates can be
// recognized.
type Event struct {
	Channel   string
	Sender    string
	Text      string
	ImageURL  string
	StickerID string
	EventID   string
}

// Reply is a tagged outbound reply. Concrete types are TextReply and
// ImageReply; routing logic produces them directly rather than inferring
// intent from reply strings.
type Reply interface {
	isReply()
}

// TextReply is a plain text reply.
type TextReply struct {
	Text string
}

func (TextReply) isReply() {}

// ImageReply is an image reply with an optional caption.
type ImageReply struct {
	URI     string
	Caption string
}

func (ImageReply) isReply() {}

// Sender delivers replies back to a platform recipient.
type Sender interface {
	// Name returns the channel identifier used in Event.Channel.
	Name() string

	// SendText delivers a text message to the recipient.
	SendText(recipient, text string) error

	// SendImage delivers an image by URI with an optional caption.
	SendImage(recipient, uri, caption string) error
}
