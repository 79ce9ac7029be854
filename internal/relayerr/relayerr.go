// Package relayerr defines the error kinds surfaced by the routing core,
// following the same categorized-error idiom the rest of the ecosystem
// uses: a Kind wraps an underlying error and is recovered with GetKind or Is.
package relayerr

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Kind categorizes an error the way §7 of the design requires.
type Kind int

const (
	// Unknown is the zero value; GetKind returns it for plain errors.
	Unknown Kind = iota
	// ConfigError: missing/malformed configuration. Fatal at startup.
	ConfigError
	// TunnelClosed: remote or local tunnel close.
	TunnelClosed
	// AuthFailed: identity mismatch, unknown signer, revoked cert.
	AuthFailed
	// ProtocolError: malformed meta message, buffer overflow, bad field.
	ProtocolError
	// Unreachable: no route to destination.
	Unreachable
	// Transient: EINTR/EAGAIN/WouldBlock — retry on next readiness.
	Transient
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "config"
	case TunnelClosed:
		return "tunnel-closed"
	case AuthFailed:
		return "auth-failed"
	case ProtocolError:
		return "protocol"
	case Unreachable:
		return "unreachable"
	case Transient:
		return "transient"
	default:
		return "unknown"
	}
}

type kindError struct {
	error
	kind Kind
}

// New creates an error from msg under the given Kind.
func New(kind Kind, msg string) error {
	return &kindError{error: pkgerrors.New(msg), kind: kind}
}

// Newf is New with Sprintf-style formatting.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &kindError{error: pkgerrors.Errorf(format, args...), kind: kind}
}

// Wrap tags an existing error with a Kind, attaching a stack trace via
// pkg/errors the way the rest of this codebase's error paths do.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{error: pkgerrors.WithStack(err), kind: kind}
}

func (e *kindError) Unwrap() error { return e.error }

// GetKind returns the Kind of err, walking the Unwrap chain, or Unknown.
func GetKind(err error) Kind {
	for err != nil {
		if ke, ok := err.(*kindError); ok {
			return ke.kind
		}
		err = errors.Unwrap(err)
	}
	return Unknown
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
