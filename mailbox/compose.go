package mailbox

import (
	"fmt"
	"strings"
	"time"

	"mailcopy/models"
)

// ParseRecipients splits comma separated address lists, trims and lower-cases
// each address and drops empty entries and duplicates. Order is preserved.
func ParseRecipients(lists ...string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, addr := range strings.Split(list, ",") {
			addr = strings.ToLower(strings.TrimSpace(addr))
			if addr == "" || seen[addr] {
				continue
			}
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}

// Participants returns the sender followed by every recipient that is not
// already present, deduplicated by account id.
func Participants(sender *models.Account, recipients []*models.Account) []*models.Account {
	seen := map[int64]bool{sender.ID: true}
	out := []*models.Account{sender}
	for _, r := range recipients {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

// Draft is the content of one logical message before fan-out
type Draft struct {
	MessageID string
	Sender    *models.Account
	Subject   string
	Body      string
	Timestamp time.Time
}

// FanOut builds one copy per participant. Content fields are shared by
// value; every copy gets its own recipient slices so no state is shared
// between copies. Only the sender's copy starts out read.
func FanOut(d Draft, recipients []*models.Account) ([]*models.Email, error) {
	if d.Sender == nil {
		return nil, fmt.Errorf("%w: sender required", ErrValidation)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient required", ErrValidation)
	}

	recipientIDs := make([]int64, 0, len(recipients))
	recipientEmails := make([]string, 0, len(recipients))
	seen := make(map[int64]bool)
	for _, r := range recipients {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		recipientIDs = append(recipientIDs, r.ID)
		recipientEmails = append(recipientEmails, r.Email)
	}

	participants := Participants(d.Sender, recipients)
	copies := make([]*models.Email, 0, len(participants))
	for _, p := range participants {
		copies = append(copies, &models.Email{
			MessageID:    d.MessageID,
			OwnerID:      p.ID,
			OwnerEmail:   p.Email,
			SenderID:     d.Sender.ID,
			SenderEmail:  d.Sender.Email,
			Recipients:   append([]string(nil), recipientEmails...),
			RecipientIDs: append([]int64(nil), recipientIDs...),
			Subject:      d.Subject,
			Body:         d.Body,
			Timestamp:    d.Timestamp,
			Read:         p.ID == d.Sender.ID,
			IsOwner:      true,
		})
	}
	return copies, nil
}
