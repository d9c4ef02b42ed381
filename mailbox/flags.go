package mailbox

import (
	"strings"

	"github.com/emersion/go-imap"

	"mailcopy/models"
)

// ArchivedKeyword marks archived copies. IMAP has no system flag for it.
const ArchivedKeyword = "$Archived"

// Flags returns the IMAP flag list equivalent to the copy's state
func Flags(e *models.Email) []string {
	var flags []string
	if e.Read {
		flags = append(flags, imap.SeenFlag)
	}
	if e.Deleted {
		flags = append(flags, imap.DeletedFlag)
	}
	if e.Archived {
		flags = append(flags, ArchivedKeyword)
	}
	return flags
}

// MboxStatus renders the flags as the Status header value used in mbox
// files: R for seen, O for already listed, D for deleted.
func MboxStatus(flags []string) string {
	var b strings.Builder
	for _, f := range flags {
		if f == imap.SeenFlag {
			b.WriteString("R")
		}
	}
	b.WriteString("O")
	for _, f := range flags {
		if f == imap.DeletedFlag {
			b.WriteString("D")
		}
	}
	return b.String()
}
