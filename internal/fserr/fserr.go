// Package fserr defines the failure kinds surfaced by the virtual filesystem.
//
// Every failing operation returns an *Error whose Kind survives wrapping, so
// callers can switch on KindOf(err) or test with errors.Is against the
// exported sentinels:
//
//	if errors.Is(err, fserr.ErrNotAllowed) { ... }
package fserr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	Unknown Kind = iota
	InvalidPath
	NotAuthenticated
	ObjectNotFound
	NotAllowed
	PartialFailure
	TransportFailure
	InvalidContent
)

var kindNames = map[Kind]string{
	Unknown:          "unknown",
	InvalidPath:      "invalid_path",
	NotAuthenticated: "not_authenticated",
	ObjectNotFound:   "object_not_found",
	NotAllowed:       "not_allowed",
	PartialFailure:   "partial_failure",
	TransportFailure: "transport_failure",
	InvalidContent:   "invalid_content",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. They carry no detail and match any *Error of the
// same kind.
var (
	ErrInvalidPath      = &Error{Kind: InvalidPath}
	ErrNotAuthenticated = &Error{Kind: NotAuthenticated}
	ErrObjectNotFound   = &Error{Kind: ObjectNotFound}
	ErrNotAllowed       = &Error{Kind: NotAllowed}
	ErrPartialFailure   = &Error{Kind: PartialFailure}
	ErrTransportFailure = &Error{Kind: TransportFailure}
	ErrInvalidContent   = &Error{Kind: InvalidContent}
)

// Error is a classified filesystem failure.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Msg  string
	Err  error

	// Residue lists keys left behind by a compound operation that did not
	// complete, as "container/key" strings.
	Residue []string
}

// New builds an Error without an underlying cause.
func New(kind Kind, op, path, msg string) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Msg: msg}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op, path string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	switch {
	case e.Op != "" && e.Path != "":
		fmt.Fprintf(&b, "%s %s: ", e.Op, e.Path)
	case e.Op != "":
		fmt.Fprintf(&b, "%s: ", e.Op)
	case e.Path != "":
		fmt.Fprintf(&b, "%s: ", e.Path)
	}
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Residue) > 0 {
		fmt.Fprintf(&b, " (residue: %s)", strings.Join(e.Residue, ", "))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a detail-free *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Path != "" || t.Msg != "" || t.Err != nil {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of the outermost *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// ResidueOf returns the residue recorded on err, if any.
func ResidueOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Residue
	}
	return nil
}

// Message returns a short human readable explanation for a kind, suitable
// for showing to an end user.
func Message(kind Kind) string {
	switch kind {
	case InvalidPath:
		return "The path is not valid"
	case NotAuthenticated:
		return "Not logged in, or credentials are not configured"
	case ObjectNotFound:
		return "File not found"
	case NotAllowed:
		return "Deleting a bucket or a non-empty folder is not allowed"
	case PartialFailure:
		return "The operation only partly completed"
	case TransportFailure:
		return "The storage service could not be reached"
	case InvalidContent:
		return "The content could not be decoded"
	default:
		return "Unexpected error"
	}
}
