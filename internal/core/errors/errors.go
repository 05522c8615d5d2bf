package errors

// Stable error kind tags surfaced in HTTP error bodies.
const (
	HttpInternalError          = "internal_error"
	HttpInvalidJsonError       = "invalid_json"
	HttpInvalidParameter       = "invalid_parameter"
	HttpUnknownDatasetError    = "unknown_dataset"
	HttpUnknownFieldError      = "unknown_field"
	HttpInvalidFilterValue     = "invalid_filter_value"
	HttpQueryCompilationFailed = "query_compilation_failed"
	HttpQueryExecutionFailed   = "query_execution_failed"
	HttpCacheKeyNotFound       = "cache_key_not_found"
	HttpResultTooLarge         = "result_too_large"
)

// ErrorResponse is the error response body for all API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
