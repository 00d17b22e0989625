package models

import "github.com/oklog/ulid/v2"

// NewID returns a new record id. Ids generated by one process sort in
// creation order, which gives messages a stable tie-break when two share
// a timestamp.
func NewID() string {
	return ulid.Make().String()
}

// CanonicalID parses s as a record id and returns it in the stored
// form. Ids are case-insensitive; stored ids are upper case.
func CanonicalID(s string) (string, bool) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// ValidID reports whether s is structurally a record id.
func ValidID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
