package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownElement marks a known element used where it is not permitted,
	// such as an order nested in an order or a repeated scalar field.
	ErrUnknownElement = errors.New("element not permitted here")
	// ErrUnresolvableType marks an element name the codec has no mapping for.
	ErrUnresolvableType = errors.New("unresolvable element type")
	// ErrMalformedDocument marks input that is not well-formed markup or whose
	// values cannot be converted.
	ErrMalformedDocument = errors.New("malformed document")

	ErrNilValue = errors.New("nil value")
	// ErrInvalidText marks a field value that XML 1.0 cannot carry.
	ErrInvalidText = errors.New("text not representable in XML")
)

// DecodeError carries the failing element and its position in the document.
type DecodeError struct {
	Kind    error
	Element string
	Path    string
	Detail  string
	Err     error
}

func (e *DecodeError) Error() string {
	msg := e.Kind.Error()
	if e.Element != "" {
		msg = fmt.Sprintf("%s: <%s>", msg, e.Element)
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s at %s", msg, e.Path)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsDecodeError reports whether err is any of the decode failure kinds.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrUnknownElement) ||
		errors.Is(err, ErrUnresolvableType) ||
		errors.Is(err, ErrMalformedDocument)
}

// Kind returns a short label for the decode failure kind, or "" when err is
// not a decode error. Used as a metrics label.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnknownElement):
		return "unknown_element"
	case errors.Is(err, ErrUnresolvableType):
		return "unresolvable_type"
	case errors.Is(err, ErrMalformedDocument):
		return "malformed"
	default:
		return ""
	}
}

func decodeErr(kind error, element, path, detail string) *DecodeError {
	return &DecodeError{Kind: kind, Element: element, Path: path, Detail: detail}
}

func malformed(element, path string, err error) *DecodeError {
	return &DecodeError{Kind: ErrMalformedDocument, Element: element, Path: path, Err: err}
}
