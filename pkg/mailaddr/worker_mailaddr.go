// Package mailaddr parses and formats RFC 5322 mailbox addresses.
package mailaddr

import (
	"strings"

	"github.com/emersion/go-message/mail"
)

// Address is a parsed mailbox.
type Address struct {
	Name  string
	Email string
}

// String formats the address as "Name <email>", or the bare email without a name.
func (a Address) String() string {
	return Format(a.Name, a.Email)
}

// IsZero reports whether no email is present.
func (a Address) IsZero() bool {
	return a.Email == ""
}

// Normalize lowercases and trims an email address.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Parse parses a single address header value. Values that are not valid
// RFC 5322 but still contain an "@" are accepted as a bare address.
func Parse(raw string) (Address, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Address{}, false
	}

	if addr, err := mail.ParseAddress(raw); err == nil {
		return Address{Name: strings.TrimSpace(addr.Name), Email: Normalize(addr.Address)}, true
	}

	// "Name <a@b>" with an unquoted special in the name
	if i := strings.LastIndex(raw, "<"); i >= 0 {
		if j := strings.LastIndex(raw, ">"); j > i {
			email := Normalize(raw[i+1 : j])
			if strings.Contains(email, "@") {
				name := strings.Trim(strings.TrimSpace(raw[:i]), `"`)
				return Address{Name: name, Email: email}, true
			}
		}
	}

	if strings.Count(raw, "@") == 1 && !strings.ContainsAny(raw, " <>") {
		return Address{Email: Normalize(raw)}, true
	}
	return Address{}, false
}

// Format returns "Name <email>" when a name is present, otherwise the email.
func Format(name, email string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return email
	}
	return name + " <" + email + ">"
}

// FormatList formats every address.
func FormatList(addrs []Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.IsZero() {
			continue
		}
		out = append(out, a.String())
	}
	return out
}

// SameMailbox compares two addresses case-insensitively.
func SameMailbox(a, b string) bool {
	a, b = Normalize(a), Normalize(b)
	return a != "" && a == b
}
