package domain

// SubjectID is the authenticated subject extracted from identity token claims ("sub").
// We model it as an opaque identifier: its format is controlled by the IdP.
type SubjectID string

// AccountID is an internal identifier for an account record.
type AccountID string

// ProfileID is an internal identifier for a tradesperson profile.
type ProfileID string

// MessageID is an internal identifier for a contact message.
type MessageID string
