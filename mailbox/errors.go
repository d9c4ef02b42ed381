package mailbox

import (
	"errors"
	"fmt"
)

// Domain errors. Handlers map them to HTTP status codes.
var (
	ErrValidation         = errors.New("validation error")
	ErrUnknownRecipient   = errors.New("unknown recipient")
	ErrInvalidMailbox     = errors.New("invalid mailbox")
	ErrNotFound           = errors.New("email not found")
	ErrPreconditionFailed = errors.New("email must be in trash before permanent deletion")
)

// RecipientError reports an address that matches no account. It matches
// ErrUnknownRecipient with errors.Is.
type RecipientError struct {
	Address string
}

func (e *RecipientError) Error() string {
	return fmt.Sprintf("unknown recipient: user with email %s does not exist", e.Address)
}

func (e *RecipientError) Is(target error) bool {
	return target == ErrUnknownRecipient
}
