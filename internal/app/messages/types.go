package messages

import "github.com/localworks/localworks-api/internal/domain"

type SendInput struct {
	ToProfileID domain.ProfileID
	SenderName  string
	SenderEmail string
	SenderPhone *string
	Message     string
}

// Sender is the account that sent a message, as shown in the inbox.
type Sender struct {
	Name  string
	Email string
}

// ReceivedMessage is an inbox entry. From is nil when the sending account is
// gone.
type ReceivedMessage struct {
	domain.ContactMessage
	From *Sender
}

// Inbox is a tradesperson's received messages, newest first.
type Inbox struct {
	Messages    []ReceivedMessage
	UnreadCount int
}
