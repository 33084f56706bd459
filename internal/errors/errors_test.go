package errors

import (
	"net/http"
	"strings"
	"testing"
)

func TestNewError(t *testing.T) {
	e := New(CodeMalformedQuery, "msg", nil)
	if e.Code != CodeMalformedQuery {
		t.Fatalf("expected code %s, got %s", CodeMalformedQuery, e.Code)
	}
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		CodeMalformedQuery:           http.StatusBadRequest,
		CodeNonDistributiveAggregate: http.StatusBadRequest,
		CodeUnpartitionedDataset:     http.StatusBadRequest,
		CodeExecutorFailure:          http.StatusBadRequest,
		CodePartitionFailure:         http.StatusInternalServerError,
		CodeProfilingUnavailable:     http.StatusInternalServerError,
		CodeInternalError:            http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := ToHTTPStatus(code); got != want {
			t.Errorf("ToHTTPStatus(%s) = %d, want %d", code, got, want)
		}
	}
}

func TestToCoordErrorWrapsUnknown(t *testing.T) {
	ce := ToCoordError(errNotACoordError{})
	if ce.Code != CodeInternalError {
		t.Fatalf("expected wrapped error to be internal, got %s", ce.Code)
	}
}

type errNotACoordError struct{}

func (errNotACoordError) Error() string { return "boom" }

func TestPartitionFailureMessageContainsValue(t *testing.T) {
	e := NewPartitionFailure("b", errNotACoordError{})
	if !strings.Contains(e.Message, "'b'") {
		t.Fatalf("expected message to mention partition 'b', got %q", e.Message)
	}
	if e.Details["partition_value"] != "b" {
		t.Fatalf("expected partition_value detail to be 'b', got %v", e.Details["partition_value"])
	}
}
