// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Unit tests for the executor shim.

package sqlengine

import (
	"math"
	"testing"
)

func TestInjectLimitAddsWhenAbsent(t *testing.T) {
	out := injectLimit("SELECT * FROM read_parquet('x')", 10)
	if out != "SELECT * FROM read_parquet('x') LIMIT 10" {
		t.Fatalf("unexpected: %q", out)
	}
}

func TestInjectLimitRespectsExisting(t *testing.T) {
	in := "SELECT * FROM read_parquet('x') LIMIT 3"
	if out := injectLimit(in, 10); out != in {
		t.Fatalf("expected untouched, got %q", out)
	}
}

func TestInjectLimitSkipsNonSelect(t *testing.T) {
	in := "INSERT INTO t VALUES (1)"
	if out := injectLimit(in, 10); out != in {
		t.Fatalf("expected untouched, got %q", out)
	}
}

func TestInjectLimitCaseInsensitiveLeadingKeyword(t *testing.T) {
	in := "  select 1"
	out := injectLimit(in, 5)
	if out == in {
		t.Fatalf("expected LIMIT to be appended")
	}
}

func TestSanitizeValueNaNAndInf(t *testing.T) {
	if sanitizeValue(math.NaN()) != nil {
		t.Fatalf("NaN must sanitize to nil")
	}
	if sanitizeValue(math.Inf(1)) != nil {
		t.Fatalf("+Inf must sanitize to nil")
	}
	if sanitizeValue(math.Inf(-1)) != nil {
		t.Fatalf("-Inf must sanitize to nil")
	}
}

func TestSanitizeValuePassesThroughFinite(t *testing.T) {
	if v := sanitizeValue(3.5); v != 3.5 {
		t.Fatalf("expected 3.5, got %v", v)
	}
	if v := sanitizeValue(nil); v != nil {
		t.Fatalf("expected nil, got %v", v)
	}
}

func TestFirstKeywordStripsComments(t *testing.T) {
	if kw := firstKeyword("-- note\nSELECT 1"); kw != "select" {
		t.Fatalf("expected select, got %q", kw)
	}
}
