package events

import "errors"

// Error kinds drive the worker's acknowledgement decision. Parse and
// Transient errors NAK for redelivery; NotFound, Validation and Indexing
// errors ACK (with an error row where applicable); Fatal errors exit the
// process.
var (
	// ErrParse marks a malformed event payload.
	ErrParse = errors.New("event parse error")

	// ErrNotFound marks a missing blob or entity. The event is stale.
	ErrNotFound = errors.New("not found")

	// ErrTransient marks a retryable failure (broker disconnect, HTTP 5xx,
	// timeout).
	ErrTransient = errors.New("transient error")

	// ErrValidation marks a constraint violation on extracted data.
	ErrValidation = errors.New("validation error")

	// ErrIndexing marks a best-effort indexing failure (embeddings, KV).
	// The primary SQL row is still written.
	ErrIndexing = errors.New("indexing error")

	// ErrFatal marks an unrecoverable failure; the process should exit.
	ErrFatal = errors.New("fatal error")

	// ErrNotImplemented marks query modes deferred past v1.
	ErrNotImplemented = errors.New("not implemented")
)

// Kind is the classification of a pipeline error.
type Kind int

const (
	KindUnknown Kind = iota
	KindParse
	KindNotFound
	KindTransient
	KindValidation
	KindIndexing
	KindFatal
)

// Classify maps an error onto its pipeline kind. Unknown errors are treated
// as transient by callers so the broker retries up to max deliver.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrIndexing):
		return KindIndexing
	case errors.Is(err, ErrFatal):
		return KindFatal
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindUnknown
	}
}
