package chat

// FileAttachment is a file sent inline with a send intent. Data is either a
// data URL ("data:<mime>;base64,<payload>") or bare base64.
type FileAttachment struct {
	Name string `json:"name" validate:"max=255"`
	Data string `json:"data" validate:"required"`
}

// SendMessageCommand is the "send-message" intent.
type SendMessageCommand struct {
	Recipient string          `json:"recipient" validate:"required"`
	Text      string          `json:"text,omitempty" validate:"max=10000"`
	File      *FileAttachment `json:"file,omitempty" validate:"omitempty"`
}

// HasContent reports whether there is text or a file to deliver.
func (c SendMessageCommand) HasContent() bool {
	return c.Text != "" || (c.File != nil && c.File.Data != "")
}

// UpdateMessageCommand is the "update-message" intent.
type UpdateMessageCommand struct {
	MessageID string `json:"messageId" validate:"required"`
	NewText   string `json:"newText" validate:"required,max=10000"`
}

// DeleteMessageCommand is the "delete-message" intent.
type DeleteMessageCommand struct {
	MessageID string `json:"messageId" validate:"required"`
}

// GetMessagesCommand asks for the history between the requester and a peer.
type GetMessagesCommand struct {
	UserID string
	PeerID string
}
