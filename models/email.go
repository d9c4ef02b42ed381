package models

import "time"

// Email is one participant's copy of a sent message. Every participant of a
// compose call owns a separate row; only the flags differ between copies.
type Email struct {
	ID              int64     `json:"id"`
	MessageID       string    `json:"message_id"`
	OwnerID         int64     `json:"-"`
	OwnerEmail      string    `json:"user"`
	SenderID        int64     `json:"-"`
	SenderEmail     string    `json:"sender"`
	Recipients      []string  `json:"recipients"`
	RecipientIDs    []int64   `json:"-"`
	Subject         string    `json:"subject"`
	Body            string    `json:"body"`
	Preview         string    `json:"preview"`
	Timestamp       time.Time `json:"timestamp"`
	Read            bool      `json:"read"`
	Archived        bool      `json:"archived"`
	Deleted         bool      `json:"deleted"`
	PreviousMailbox *string   `json:"previous_mailbox"`
	IsOwner         bool      `json:"is_owner"`
}

// HasRecipient reports whether the account is listed among the recipients
func (e *Email) HasRecipient(accountID int64) bool {
	for _, id := range e.RecipientIDs {
		if id == accountID {
			return true
		}
	}
	return false
}

// EmailPatch is a partial flag update. Nil fields are left untouched.
type EmailPatch struct {
	Read     *bool `json:"read"`
	Archived *bool `json:"archived"`
	Deleted  *bool `json:"deleted"`
}

// Empty reports whether the patch changes nothing
func (p EmailPatch) Empty() bool {
	return p.Read == nil && p.Archived == nil && p.Deleted == nil
}
