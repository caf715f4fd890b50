package scanner

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestClassify_findingsArray(t *testing.T) {
	out := []byte(`[
		{"severity": "HIGH", "analyzer": "prompt-injection"},
		{"severity": "low", "analyzer": "prompt-injection"},
		{"severity": "medium", "analyzer": "tool-poisoning"}
	]`)

	res, err := Classify(out)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.IsSafe {
		t.Error("high finding should mark the scan unsafe")
	}
	if res.High != 1 || res.Medium != 1 || res.Low != 1 || res.Critical != 0 {
		t.Errorf("tallies = c%d h%d m%d l%d", res.Critical, res.High, res.Medium, res.Low)
	}
	if len(res.Analyzers) != 2 {
		t.Errorf("analyzers = %v, want 2 distinct", res.Analyzers)
	}
}

func TestClassify_reportObject(t *testing.T) {
	out := []byte(`{"findings": [{"severity": "info"}], "analyzers": ["secrets", "yara"]}`)

	res, err := Classify(out)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !res.IsSafe {
		t.Error("info-only findings should be safe")
	}
	if res.Low != 1 {
		t.Errorf("Low = %d, want 1 (info counts as low)", res.Low)
	}
	if len(res.Analyzers) != 2 {
		t.Errorf("analyzers = %v", res.Analyzers)
	}
}

func TestClassify_stripsANSIAndNoise(t *testing.T) {
	out := []byte("\x1b[32mScanning...\x1b[0m\nloading rules\n[{\"severity\": \"critical\"}]\ntrailer")

	res, err := Classify(out)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.IsSafe || res.Critical != 1 {
		t.Errorf("critical = %d, safe = %t", res.Critical, res.IsSafe)
	}
}

func TestClassify_noJSON(t *testing.T) {
	if _, err := Classify([]byte("nothing useful here")); err == nil {
		t.Error("expected error for output with no JSON")
	}
}

func TestScan_safeVerdict(t *testing.T) {
	// echo prints the findings array followed by the appended path argument;
	// Classify only reads the first JSON value.
	s := New("echo []", 5*time.Second, zap.NewNop())

	var verdicts []string
	s.SetVerdictRecord(func(status string) { verdicts = append(verdicts, status) })

	res := s.Scan(context.Background(), "/fetch", []byte(`{"server_name":"fetch"}`))
	if res.ScanFailed {
		t.Fatalf("scan failed: %s", res.Error)
	}
	if !res.IsSafe {
		t.Error("empty findings should be safe")
	}
	if len(verdicts) != 1 || verdicts[0] != "pass" {
		t.Errorf("verdicts = %v, want [pass]", verdicts)
	}
}

func TestScan_commandFailure(t *testing.T) {
	s := New("false", 5*time.Second, zap.NewNop())

	var verdicts []string
	s.SetVerdictRecord(func(status string) { verdicts = append(verdicts, status) })

	res := s.Scan(context.Background(), "/fetch", nil)
	if !res.ScanFailed {
		t.Fatal("expected a failed result from a non-zero exit")
	}
	if len(verdicts) != 1 || verdicts[0] != "error" {
		t.Errorf("verdicts = %v, want [error]", verdicts)
	}
}

func TestScan_timeout(t *testing.T) {
	s := New("sleep 10", 100*time.Millisecond, zap.NewNop())

	res := s.Scan(context.Background(), "/fetch", nil)
	if !res.ScanFailed {
		t.Fatal("expected timeout to produce a failed result")
	}
}

func TestScan_noCommand(t *testing.T) {
	s := New("", time.Second, zap.NewNop())
	res := s.Scan(context.Background(), "/fetch", nil)
	if !res.ScanFailed {
		t.Error("empty command should produce a failed result")
	}
}
