package entity

import (
	"errors"
	"strings"
)

// Lead is a single business discovered by the extraction engine. Leads are
// values: enrichment returns a new Lead instead of modifying an existing one.
type Lead struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Website  string `json:"website"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Category string `json:"category,omitempty"`
}

// WithContacts returns a copy of l with the contact fields filled. Empty
// arguments keep the existing values.
func (l Lead) WithContacts(email, phone string) Lead {
	if email != "" {
		l.Email = email
	}
	if phone != "" {
		l.Phone = phone
	}
	return l
}

// IsEnriched reports whether any contact field is populated.
func (l Lead) IsEnriched() bool {
	return l.Email != "" || l.Phone != ""
}

func (l Lead) Validate() error {
	if l.ID == "" {
		return errors.New("lead id is required")
	}
	if strings.TrimSpace(l.Name) == "" {
		return errors.New("lead name is required")
	}
	return nil
}
