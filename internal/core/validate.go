package core

import (
	"fmt"
	"net/mail"
)

const maxAttachments = 3

// ValidateBatch checks an ordered batch of mail requests. Admission is
// all-or-nothing: any invalid item rejects the entire batch.
func ValidateBatch(reqs []MailRequest) *ValidationError {
	if len(reqs) == 0 {
		return NewValidationError(map[string]string{"batch": "at least one item required"})
	}
	details := map[string]string{}
	for i, r := range reqs {
		if err := validateRequest(r); err != nil {
			details[fmt.Sprintf("%d", i)] = err.Error()
		}
	}
	if len(details) > 0 {
		return NewValidationError(details)
	}
	return nil
}

func validateRequest(r MailRequest) error {
	if len(r.To) == 0 {
		return fmt.Errorf("to: required")
	}
	for _, addr := range r.To {
		if !ValidEmail(addr) {
			return fmt.Errorf("to: invalid email %q", addr)
		}
	}
	if r.Subject == "" {
		return fmt.Errorf("subject: required")
	}
	if r.HTML == "" && r.Text == "" {
		return fmt.Errorf("html or text required")
	}
	if _, err := ParsePriority(r.Priority); err != nil {
		return fmt.Errorf("priority: %v", err)
	}
	if len(r.Attachments) > maxAttachments {
		return fmt.Errorf("attachments: at most %d allowed", maxAttachments)
	}
	return nil
}

func ValidEmail(s string) bool {
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == s
}
