// Package records parses recipient tables and classifies their rows before
// certificate generation.
package records

import "strings"

// EmailColumn is the header (any case) that carries the recipient address.
const EmailColumn = "email"

// Record is one recipient's column values keyed by header name.
type Record map[string]string

// Lookup finds a value by key, ignoring case. An exact match wins over a
// case-folded one.
func (r Record) Lookup(name string) (string, bool) {
	if v, ok := r[name]; ok {
		return v, true
	}
	for k, v := range r {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Email returns the trimmed recipient address, if the record has one.
func (r Record) Email() string {
	v, _ := r.Lookup(EmailColumn)
	return strings.TrimSpace(v)
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// MissingPlaceholders returns the names that have no key in values,
// compared case-insensitively, in the order given.
func MissingPlaceholders(names []string, values Record) []string {
	var missing []string
	for _, n := range names {
		if _, ok := values.Lookup(n); !ok {
			missing = append(missing, n)
		}
	}
	return missing
}
