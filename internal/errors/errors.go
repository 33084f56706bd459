// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Custom error types, error codes, and HTTP status mapping (spec §7).

package errors

import (
	"fmt"
	"net/http"
	"strings"
)

type ErrorCode string

const (
	CodeMalformedQuery           ErrorCode = "MALFORMED_QUERY"
	CodeNonDistributiveAggregate ErrorCode = "NON_DISTRIBUTIVE_AGGREGATE"
	CodeUnpartitionedDataset     ErrorCode = "UNPARTITIONED_DATASET"
	CodePartitionFailure         ErrorCode = "PARTITION_FAILURE"
	CodeExecutorFailure          ErrorCode = "EXECUTOR_FAILURE"
	CodeProfilingUnavailable     ErrorCode = "PROFILING_UNAVAILABLE"
	CodeCacheUnavailable         ErrorCode = "CACHE_UNAVAILABLE"
	CodeInternalError            ErrorCode = "INTERNAL_ERROR"
)

// CoordError is the coordinator's uniform error envelope. It is returned to
// the HTTP layer as {"detail": Message} with the status from ToHTTPStatus.
type CoordError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *CoordError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func New(code ErrorCode, msg string, details map[string]any) *CoordError {
	return &CoordError{Code: code, Message: msg, Details: sanitize(details)}
}

func NewMalformedQuery(msg string) *CoordError {
	return New(CodeMalformedQuery, msg, nil)
}

func NewNonDistributiveAggregate(aggregates []string) *CoordError {
	return New(CodeNonDistributiveAggregate,
		"query is not distributable: contains an aggregate that cannot be combined across partitions",
		map[string]any{"aggregates": aggregates})
}

func NewUnpartitionedDataset(datasetRef string) *CoordError {
	return New(CodeUnpartitionedDataset,
		"no partition key/value segments were found in the dataset's storage paths",
		map[string]any{"dataset_ref": scrub(datasetRef)})
}

func NewPartitionFailure(value string, cause error) *CoordError {
	causeMsg := ""
	if cause != nil {
		causeMsg = scrub(cause.Error())
	}
	return New(CodePartitionFailure,
		fmt.Sprintf("sub-query for partition '%s' failed: %s", value, causeMsg),
		map[string]any{"partition_value": value, "cause": causeMsg})
}

func NewExecutorFailure(cause error) *CoordError {
	if cause == nil {
		return New(CodeExecutorFailure, "executor failed", nil)
	}
	return New(CodeExecutorFailure, scrub(cause.Error()), nil)
}

func NewProfilingUnavailable(msg string) *CoordError {
	return New(CodeProfilingUnavailable, msg, nil)
}

func NewCacheUnavailable(cause error) *CoordError {
	if cause == nil {
		return New(CodeCacheUnavailable, "cache unavailable", nil)
	}
	return New(CodeCacheUnavailable, scrub(cause.Error()), nil)
}

func NewInternal(err error) *CoordError {
	if err == nil {
		return New(CodeInternalError, "internal error", nil)
	}
	return New(CodeInternalError, "internal error", map[string]any{"cause": scrub(err.Error())})
}

// ToCoordError converts any error into a *CoordError, wrapping unknown errors
// as an internal error with a scrubbed message.
func ToCoordError(err error) *CoordError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*CoordError); ok {
		return ce
	}
	return NewInternal(err)
}

// ToHTTPStatus maps an error code onto the status table from spec.md §6/§7.
// CodeExecutorFailure covers both a malformed query the engine rejected and
// a genuine engine-internal failure; it maps to 400 in both cases rather
// than trying to distinguish the two from the driver's error text.
func ToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeMalformedQuery, CodeNonDistributiveAggregate, CodeUnpartitionedDataset, CodeExecutorFailure:
		return http.StatusBadRequest
	case CodePartitionFailure, CodeProfilingUnavailable, CodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func sanitize(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if s, ok := v.(string); ok {
			out[k] = scrub(s)
			continue
		}
		out[k] = v
	}
	return out
}

// scrub best-effort masks object-storage credentials embedded in paths or DSNs.
func scrub(s string) string {
	replacements := []struct{ find, repl string }{
		{"AWS_SECRET_ACCESS_KEY=", "AWS_SECRET_ACCESS_KEY=***"},
		{"password=", "password=***"},
	}
	out := s
	for _, r := range replacements {
		out = strings.ReplaceAll(out, r.find, r.repl)
	}
	return out
}
