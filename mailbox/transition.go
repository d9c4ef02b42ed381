package mailbox

import "mailcopy/models"

// Transition names what an update did to the trash state of a copy
type Transition string

const (
	Unchanged Transition = "unchanged"
	Trashed   Transition = "trashed"
	Restored  Transition = "restored"
)

// State is the trash state of a copy: either active in a folder derived from
// its flags, or trashed with the folder it came from.
type State struct {
	Trashed bool
	Origin  Mailbox
}

// StateOf returns the current state of a copy
func StateOf(e *models.Email) State {
	if e.Deleted {
		var origin Mailbox
		if e.PreviousMailbox != nil {
			origin = Mailbox(*e.PreviousMailbox)
		}
		return State{Trashed: true, Origin: origin}
	}
	return State{Origin: Origin(e)}
}

// Apply updates the flags of e in place. e must hold the persisted state of
// the row as read in the current transaction; the trash edge is detected
// against it and never against client supplied values.
//
// Moving to the trash records the folder the copy was in before any field of
// the patch is applied. Restoring clears the remembered folder and leaves
// archived as it is. An empty patch is a no-op.
func Apply(e *models.Email, p models.EmailPatch) (Transition, error) {
	if p.Empty() {
		return Unchanged, nil
	}

	transition := Unchanged
	if p.Deleted != nil {
		switch {
		case *p.Deleted && !e.Deleted:
			origin := string(Origin(e))
			e.PreviousMailbox = &origin
			transition = Trashed
		case !*p.Deleted && e.Deleted:
			transition = Restored
		}
	}

	if p.Read != nil {
		e.Read = *p.Read
	}
	if p.Archived != nil {
		e.Archived = *p.Archived
	}
	if p.Deleted != nil {
		e.Deleted = *p.Deleted
	}
	if transition == Restored {
		e.PreviousMailbox = nil
	}

	return transition, nil
}

// CanPurge reports whether a copy may be destroyed permanently
func CanPurge(e *models.Email) error {
	if !e.Deleted {
		return ErrPreconditionFailed
	}
	return nil
}
