// Package mailbox holds the rules of the per-user mail model: which copies
// belong to which virtual folder, how one compose call fans out into copies,
// and how flag updates move a copy in and out of the trash.
package mailbox

import (
	"fmt"
	"strings"

	"mailcopy/models"
)

// Mailbox names a virtual folder. Folders are never stored; they are derived
// from the flags of each copy.
type Mailbox string

const (
	Inbox   Mailbox = "inbox"
	Sent    Mailbox = "sent"
	Archive Mailbox = "archive"
	Trash   Mailbox = "trash"
)

// All lists the folders in display order
var All = []Mailbox{Inbox, Sent, Archive, Trash}

// Parse resolves a folder name. Names are case-insensitive and "archived"
// is accepted for the archive folder.
func Parse(name string) (Mailbox, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "inbox":
		return Inbox, nil
	case "sent":
		return Sent, nil
	case "archive", "archived":
		return Archive, nil
	case "trash":
		return Trash, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMailbox, name)
}

func (m Mailbox) String() string { return string(m) }

// Filter describes folder membership in terms of flags and participants.
// Owner is always the requesting account and is not part of the filter.
type Filter struct {
	Archived *bool // nil matches both values
	Deleted  bool

	// OwnerIsRecipient requires the owner to be listed among the recipients.
	OwnerIsRecipient bool
	// OwnerIsSender requires the owner to be the sender.
	OwnerIsSender bool
}

var (
	yes = true
	no  = false
)

// FilterFor returns the membership rule of a folder
func FilterFor(m Mailbox) (Filter, error) {
	switch m {
	case Inbox:
		return Filter{Archived: &no, Deleted: false, OwnerIsRecipient: true}, nil
	case Sent:
		return Filter{Archived: &no, Deleted: false, OwnerIsSender: true}, nil
	case Archive:
		return Filter{Archived: &yes, Deleted: false}, nil
	case Trash:
		return Filter{Deleted: true}, nil
	}
	return Filter{}, fmt.Errorf("%w: %q", ErrInvalidMailbox, string(m))
}

// Match reports whether the copy belongs to the folder described by f when
// viewed by its owner.
func (f Filter) Match(e *models.Email) bool {
	if e.Deleted != f.Deleted {
		return false
	}
	if f.Archived != nil && e.Archived != *f.Archived {
		return false
	}
	if f.OwnerIsRecipient && !e.HasRecipient(e.OwnerID) {
		return false
	}
	if f.OwnerIsSender && e.SenderID != e.OwnerID {
		return false
	}
	return true
}

// Contains reports whether the copy is listed in mailbox m
func Contains(m Mailbox, e *models.Email) bool {
	f, err := FilterFor(m)
	if err != nil {
		return false
	}
	return f.Match(e)
}

// Origin returns the active folder a copy would be filed under if it were
// moved to the trash now. Archive wins over sent, sent over inbox.
func Origin(e *models.Email) Mailbox {
	switch {
	case e.Archived:
		return Archive
	case e.SenderID == e.OwnerID:
		return Sent
	default:
		return Inbox
	}
}
