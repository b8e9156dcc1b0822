package auditsink

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"powerpositions/internal/engine/domain"
	perr "powerpositions/internal/platform/errors"
)

func TestNew_RejectsEmptyDir(t *testing.T) {
	if _, err := New("  ", time.UTC); !perr.IsCode(err, perr.ErrorCodeInvalidConfiguration) {
		t.Fatalf("New(empty) err = %v, want InvalidConfiguration", err)
	}
}

func TestLogAttempt_WritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(dir, time.UTC)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Date(2025, 12, 10, 23, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Second)
	target := domain.Date{Year: 2025, Month: 12, Day: 11}

	if err := sink.LogAttempt(context.Background(), start, end, target, domain.AuditDone, 1, "", "PowerPosition_20251210_2300.csv"); err != nil {
		t.Fatalf("LogAttempt 1: %v", err)
	}
	if err := sink.LogAttempt(context.Background(), start, end, target, domain.AuditRetryAttempt, 2, "trade source unavailable", ""); err != nil {
		t.Fatalf("LogAttempt 2: %v", err)
	}

	path := filepath.Join(dir, "ExecutionAudit_20251210.csv")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\r\n"), "\r\n")
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3 (header + 2 rows)", len(lines))
	}
	if lines[0] != strings.Join(header, ",") {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "Done") {
		t.Fatalf("row 1 = %q, want Done status", lines[1])
	}
	if !strings.Contains(lines[2], "RetryAttempt") {
		t.Fatalf("row 2 = %q, want RetryAttempt status", lines[2])
	}
}

func TestLogAttempt_TimestampsAreSpaceSeparatedLocalNoOffset(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(dir, time.UTC)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Date(2025, 12, 10, 23, 0, 0, 0, time.UTC)
	end := start.Add(2500 * time.Millisecond)
	target := domain.Date{Year: 2025, Month: 12, Day: 11}

	if err := sink.LogAttempt(context.Background(), start, end, target, domain.AuditDone, 1, "", ""); err != nil {
		t.Fatalf("LogAttempt: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "ExecutionAudit_20251210.csv"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\r\n"), "\r\n")
	row := lines[1]
	if !strings.Contains(row, "2025-12-10 23:00:00") {
		t.Fatalf("row = %q, want a 2025-12-10 23:00:00-style timestamp (space separator, no offset)", row)
	}
	if strings.Contains(row, "T") || strings.Contains(row, "Z") {
		t.Fatalf("row = %q, should not contain RFC3339's T/Z markers", row)
	}
	if !strings.Contains(row, ",2.50,") {
		t.Fatalf("row = %q, want DurationSeconds formatted to two decimals (2.50)", row)
	}
}

func TestLogAttempt_RejectsInvalidArgs(t *testing.T) {
	sink, err := New(t.TempDir(), time.UTC)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Now()
	target := domain.Date{}

	if err := sink.LogAttempt(context.Background(), now, now, target, domain.AuditDone, 0, "", ""); !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("attempt=0 err = %v, want InvalidArgument", err)
	}
	if err := sink.LogAttempt(context.Background(), now, now, target, "", 1, "", ""); !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("empty status err = %v, want InvalidArgument", err)
	}
}

func TestEscapeCSVField(t *testing.T) {
	cases := map[string]string{
		"plain":        "plain",
		"a,b":          `"a,b"`,
		`say "hi"`:     `"say ""hi"""`,
		"line\nbreak":  "\"line\nbreak\"",
		"":              "",
	}
	for in, want := range cases {
		if got := escapeCSVField(in); got != want {
			t.Fatalf("escapeCSVField(%q) = %q, want %q", in, got, want)
		}
	}
}
