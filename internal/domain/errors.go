package domain

import "errors"

var (
	// ErrConfigIncomplete marks a button that lacks what its kind needs.
	ErrConfigIncomplete = errors.New("button configuration incomplete")
	// ErrEmptyResult marks a well-formed response that carried no usable data.
	ErrEmptyResult = errors.New("empty result")
	// ErrTruncated marks a listing cut short before its last page.
	ErrTruncated = errors.New("result truncated")
)

// ErrorKind is the degraded-display taxonomy every failure is mapped to.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorConfigIncomplete
	ErrorTransport
	ErrorProtocol
	ErrorEmptyResult
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return "none"
	case ErrorConfigIncomplete:
		return "config_incomplete"
	case ErrorTransport:
		return "transport"
	case ErrorProtocol:
		return "protocol"
	case ErrorEmptyResult:
		return "empty_result"
	}
	return "unknown"
}

// StatusError is implemented by errors that carry an unexpected response status.
type StatusError interface {
	error
	StatusCode() int
}

// Classify maps err to its ErrorKind. Truncated listings count as protocol
// failures. Errors that are neither status nor sentinel errors are treated as
// transport failures.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorNone
	}
	var se StatusError
	switch {
	case errors.Is(err, ErrConfigIncomplete):
		return ErrorConfigIncomplete
	case errors.Is(err, ErrEmptyResult):
		return ErrorEmptyResult
	case errors.Is(err, ErrTruncated), errors.As(err, &se):
		return ErrorProtocol
	}
	return ErrorTransport
}
