package main

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestAuditWriteAndRead(t *testing.T) {
	dir := t.TempDir()

	writeAuditLog(dir, AuditAnswersRecorded, "cli", map[string]interface{}{"stage": "g1"})
	writeAuditLog(dir, AuditStageFailed, "cli", map[string]interface{}{"stage": "g1", "unmet": "g1_rule_based"})
	writeAuditLog(dir, AuditStagePassed, "api", map[string]interface{}{"stage": "g1"})

	entries, err := readAuditLog(dir)
	if err != nil {
		t.Fatalf("readAuditLog: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[1].Action != AuditStageFailed || entries[1].Details["unmet"] != "g1_rule_based" {
		t.Errorf("entry 1 = %+v", entries[1])
	}
	if entries[2].Actor != "api" {
		t.Errorf("actor = %q, want api", entries[2].Actor)
	}
}

func TestAuditReadMissingFile(t *testing.T) {
	entries, err := readAuditLog(t.TempDir())
	if err != nil || entries != nil {
		t.Errorf("readAuditLog = %v, %v; want nil, nil", entries, err)
	}
}

func TestAuditDisabled(t *testing.T) {
	ws := newTestWorkspace(t)
	before, _ := readAuditLog(ws.Dir)

	ws.Config.Audit.Enabled = false
	ws.audit(AuditSnapshotExported, nil)

	after, _ := readAuditLog(ws.Dir)
	if len(after) != len(before) {
		t.Errorf("disabled audit wrote an entry: %d -> %d", len(before), len(after))
	}
}

func TestAuditFilter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []AuditEntry{
		{Timestamp: now.Add(-3 * time.Hour).Format(time.RFC3339), Action: AuditStagePassed, Actor: "cli"},
		{Timestamp: now.Add(-2 * time.Hour).Format(time.RFC3339), Action: AuditStageFailed, Actor: "cli"},
		{Timestamp: now.Add(-30 * time.Minute).Format(time.RFC3339), Action: AuditStageFailed, Actor: "reviewer"},
		{Timestamp: now.Add(-10 * time.Minute).Format(time.RFC3339), Action: AuditStagePassed, Actor: "cli"},
	}

	tests := []struct {
		name   string
		filter auditFilter
		want   int
	}{
		{"no filter", auditFilter{}, 4},
		{"by action", auditFilter{Action: AuditStageFailed}, 2},
		{"by actor", auditFilter{Actor: "review"}, 1},
		{"since", auditFilter{Since: now.Add(-time.Hour)}, 2},
		{"last", auditFilter{Last: 3}, 3},
		{"combined", auditFilter{Action: AuditStagePassed, Since: now.Add(-time.Hour)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.apply(entries); len(got) != tt.want {
				t.Errorf("apply = %d entries, want %d", len(got), tt.want)
			}
		})
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseSince("2h", now)
	if err != nil || !got.Equal(now.Add(-2*time.Hour)) {
		t.Errorf("parseSince(2h) = %v, %v", got, err)
	}
	got, err = parseSince("2026-02-01T00:00:00Z", now)
	if err != nil || got.Month() != time.February {
		t.Errorf("parseSince(RFC3339) = %v, %v", got, err)
	}
	if got, err := parseSince("", now); err != nil || !got.IsZero() {
		t.Errorf("parseSince(\"\") = %v, %v", got, err)
	}
	if _, err := parseSince("yesterday", now); err == nil {
		t.Error("expected error for invalid value")
	}
}

func TestPrintAuditEntries(t *testing.T) {
	var buf bytes.Buffer
	if err := printAuditEntries(&buf, nil, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No audit entries found.") {
		t.Errorf("empty output = %q", buf.String())
	}

	buf.Reset()
	entries := []AuditEntry{{
		Timestamp: "2026-03-01T12:00:00Z",
		Action:    AuditStagePassed,
		Actor:     "cli",
		Details:   map[string]interface{}{"stage": "g2", "score": 95.24},
	}}
	if err := printAuditEntries(&buf, entries, false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "[2026-03-01 12:00:00] stage_passed") {
		t.Errorf("missing header in %q", out)
	}
	if !strings.Contains(out, "score=95.24 stage=g2") {
		t.Errorf("details not sorted in %q", out)
	}

	buf.Reset()
	printAuditEntries(&buf, entries, true)
	if !strings.HasPrefix(buf.String(), `{"timestamp":"2026-03-01T12:00:00Z"`) {
		t.Errorf("json output = %q", buf.String())
	}
}
