// Package contact turns the raw contact feed of a messaging session into
// addressable broadcast recipients.
package contact

import (
	"regexp"
	"strings"
)

// PlatformSuffix is the suffix the messaging platform appends to user ids
const PlatformSuffix = "@c.us"

var phonePattern = regexp.MustCompile(`^\d{6,}$`)

// RawContact is a contact record as reported by the session
type RawContact struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	PushName    string `json:"pushname,omitempty" yaml:"pushname,omitempty"`
	IsMyContact bool   `json:"isMyContact" yaml:"is_my_contact"`
}

// Recipient is an addressable broadcast recipient.
// Selected is view state and carries no identity.
type Recipient struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	PhoneNumber string `json:"phoneNumber" yaml:"phone_number"`
	Selected    bool   `json:"selected" yaml:"-"`
}

// IsValidPhone reports whether phone is all digits and at least 6 long
func IsValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// PhoneFromID strips the platform suffix from an external id
func PhoneFromID(id string) string {
	return strings.TrimSuffix(id, PlatformSuffix)
}

// Address builds the chat address for a phone number
func Address(phone, suffix string) string {
	if suffix == "" {
		suffix = PlatformSuffix
	}
	return strings.TrimPrefix(phone, "+") + suffix
}

// ResolveName returns the first non-empty candidate
func ResolveName(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// Normalize filters, validates and de-duplicates a raw contact feed.
// Only the user's own address book entries are kept. The first record for a
// phone number wins and feed order is preserved. Malformed records are skipped.
func Normalize(raw []RawContact) []Recipient {
	seen := make(map[string]struct{}, len(raw))
	result := make([]Recipient, 0, len(raw))

	for _, rc := range raw {
		if !rc.IsMyContact {
			continue
		}

		phone := PhoneFromID(rc.ID)
		if !IsValidPhone(phone) {
			continue
		}
		if _, dup := seen[phone]; dup {
			continue
		}
		seen[phone] = struct{}{}

		result = append(result, Recipient{
			ID:          rc.ID,
			Name:        ResolveName(rc.Name, rc.PushName, phone),
			PhoneNumber: phone,
		})
	}

	return result
}

// DedupByPhone removes later recipients sharing a phone number with an earlier one
func DedupByPhone(recipients []Recipient) []Recipient {
	seen := make(map[string]struct{}, len(recipients))
	result := make([]Recipient, 0, len(recipients))
	for _, r := range recipients {
		if _, dup := seen[r.PhoneNumber]; dup {
			continue
		}
		seen[r.PhoneNumber] = struct{}{}
		result = append(result, r)
	}
	return result
}

// Filter returns recipients whose name contains query (case-insensitive)
// or whose phone number contains it
func Filter(recipients []Recipient, query string) []Recipient {
	if query == "" {
		return append([]Recipient(nil), recipients...)
	}

	lower := strings.ToLower(query)
	var result []Recipient
	for _, r := range recipients {
		if strings.Contains(strings.ToLower(r.Name), lower) || strings.Contains(r.PhoneNumber, query) {
			result = append(result, r)
		}
	}
	return result
}

// IndexOfPhone returns the position of phone in recipients, or -1
func IndexOfPhone(recipients []Recipient, phone string) int {
	for i, r := range recipients {
		if r.PhoneNumber == phone {
			return i
		}
	}
	return -1
}
