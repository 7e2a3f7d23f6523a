package auth

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Logger is satisfied by structured loggers taking key/value pairs after
// the message, e.g. glog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds token options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
}

// MembershipProvider lists the project memberships of a user.
type MembershipProvider interface {
	GetUserMemberships(ctx context.Context, user *Reference) ([]*ProjectMembership, error)
}

// BinarySink receives the content type and bytes of a retrieved binary.
type BinarySink interface {
	io.Writer
	SetContentType(contentType string)
}

// ContentStore reads and writes the bytes behind a Binary resource.
type ContentStore interface {
	ReadBinary(ctx context.Context, binary *Binary, w io.Writer) (int64, error)
	WriteBinary(ctx context.Context, binary *Binary, r io.Reader) (int64, error)
}

// SignatureVerifier checks the signature presented on a retrieval request.
type SignatureVerifier interface {
	Verify(ctx context.Context, req RetrieveRequest) error
}

// SignatureVerifierFunc adapts a function to SignatureVerifier.
type SignatureVerifierFunc func(ctx context.Context, req RetrieveRequest) error

// Verify implements SignatureVerifier.
func (f SignatureVerifierFunc) Verify(ctx context.Context, req RetrieveRequest) error {
	return f(ctx, req)
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] AUTH " + format(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] AUTH " + format(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] AUTH " + format(msg, args...))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] AUTH " + format(msg, args...))
}

func format(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	return newline(b.String())
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
