package domain

import "time"

// MaxMessageLength is counted in characters (code points), not bytes.
const MaxMessageLength = 500

// ContactMessage is a one-shot inquiry addressed to a published profile.
//
// Sender name/email/phone are captured at send time and are independent of the
// sending account's stored identity.
type ContactMessage struct {
	ID            MessageID
	FromAccountID AccountID
	ToProfileID   ProfileID

	SenderName  string
	SenderEmail string
	SenderPhone *string
	Message     string

	IsRead    bool
	CreatedAt time.Time
}
