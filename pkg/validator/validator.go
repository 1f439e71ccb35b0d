package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vedran77/agroconnect/internal/domain"
)

// MaxMessageLength is the longest message body accepted, in runes.
const MaxMessageLength = 2000

const maxNameLength = 100

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

// ValidateMessage checks a message body as typed by the user.
func ValidateMessage(content string) ValidationErrors {
	errs := make(ValidationErrors)

	// Judged on what will be stored.
	content = SanitizeText(content)
	if content == "" {
		errs.Add("content", "Message content is required")
	} else if utf8.RuneCountInString(content) > MaxMessageLength {
		errs.Add("content", fmt.Sprintf("Message must be at most %d characters", MaxMessageLength))
	}

	return errs
}

// ValidateContact checks the counterpart a caller wants to open a
// conversation with. The caller's own identity comes from the token.
func ValidateContact(caller domain.Identity, otherID, otherName string) ValidationErrors {
	errs := make(ValidationErrors)

	field := caller.Role.Counterpart().Field()
	if field == "" {
		field = "participant"
	}

	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		errs.Add(field+"_id", "Participant id is required")
	} else if otherID == caller.UserID {
		errs.Add(field+"_id", "Cannot start a conversation with yourself")
	}

	otherName = strings.TrimSpace(otherName)
	if otherName == "" {
		errs.Add(field+"_name", "Participant name is required")
	} else if utf8.RuneCountInString(otherName) > maxNameLength {
		errs.Add(field+"_name", "Participant name is too long")
	}

	if !caller.Role.Valid() {
		errs.Add("role", "Role must be farmer or shop_owner")
	}

	return errs
}
