package auth

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewResourceID returns a random identifier for a new resource.
func NewResourceID() string {
	return uuid.NewString()
}

// NewVersionID returns a time ordered version identifier. ULIDs share the
// UUID layout, so the value round trips through uuid columns while string
// order still follows creation time.
func NewVersionID() string {
	return uuid.UUID(ulid.Make()).String()
}

// NewLoginCode returns an opaque continuation code for a login.
func NewLoginCode() string {
	return uuid.NewString()
}

// IsUUID reports whether id parses as a UUID.
func IsUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
