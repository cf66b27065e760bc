package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mfourny/offload/pkg/job"
	"github.com/mfourny/offload/pkg/scan"
	"github.com/mfourny/offload/pkg/transfer"
)

func sampleResult() *transfer.Result {
	return &transfer.Result{
		Job: job.Snapshot{
			ID:     "9a1c",
			Status: job.StatusCompleted,
		},
		Completed: []transfer.FileResult{
			{Item: scan.FileItem{RelativePath: "DCIM/clip001.mov", Size: 2048}, Destination: "/mnt/a"},
		},
		Failed: []transfer.FileResult{
			{Item: scan.FileItem{RelativePath: "DCIM/clip002.mov"}, Destination: "/mnt/a", Err: errors.New("read error")},
		},
		Skipped:          []string{"/mnt/b/DCIM/clip002.mov"},
		FilesTransferred: 1,
		BytesTransferred: 2048,
		Duration:         2 * time.Second,
	}
}

func TestHumanFormatterSummary(t *testing.T) {
	var buf bytes.Buffer
	f := NewHumanFormatter()
	if err := f.Start(&buf, 2, 4096); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := f.Complete(sampleResult()); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	got := buf.String()
	for _, want := range []string{
		"Offloading 2 files",
		"Files transferred:  1",
		"Copies failed:      1",
		"completed (partial)",
		"DCIM/clip002.mov -> /mnt/a: read error",
		"/mnt/b/DCIM/clip002.mov",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
}

func TestJSONFormatterSummary(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter()
	if err := f.Start(&buf, 2, 4096); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := f.Complete(sampleResult()); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	var report JSONReportData
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}

	if report.Status != "completed" {
		t.Errorf("expected status completed, got %s", report.Status)
	}
	if !report.Partial {
		t.Error("expected partial to be true")
	}
	if report.Files.Transferred != 1 || report.Files.CopiesFailed != 1 {
		t.Errorf("unexpected file counts: %+v", report.Files)
	}
	if len(report.Failures) != 1 || report.Failures[0].Path != "DCIM/clip002.mov" {
		t.Errorf("unexpected failures: %+v", report.Failures)
	}
}

func TestNewSelectsFormatter(t *testing.T) {
	if got := New("json", true).Name(); got != "json" {
		t.Errorf("expected json, got %s", got)
	}
	if got := New("human", true).Name(); got != "progress" {
		t.Errorf("expected progress, got %s", got)
	}
	if got := New("human", false).Name(); got != "human" {
		t.Errorf("expected human, got %s", got)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{3 * 1024 * 1024, "3.0 MiB"},
	}
	for _, tc := range cases {
		if got := formatBytes(tc.in); got != tc.want {
			t.Errorf("formatBytes(%d) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
