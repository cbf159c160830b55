package domain

// ErrorSample pairs a terminally failed job with its (truncated) error
// text for batch summary reporting.
type ErrorSample struct {
	Job   Job
	Error string
}

// BatchResult is the outcome of one batch run. Immutable once returned.
type BatchResult struct {
	OK           int
	Fail         int
	Total        int
	ErrorSamples []ErrorSample
}
