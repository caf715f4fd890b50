// Package scanner runs an external security analyzer over a candidate
// entity before admission and classifies its verdict. The analyzer is an
// arbitrary executable: the entity JSON goes in on stdin, findings come
// back as JSON somewhere in the combined output.
package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// VerdictFunc is an optional callback recording scan outcomes, wired to the
// metrics layer at startup.
type VerdictFunc func(status string)

// Scanner shells out to the configured analyzer command.
type Scanner struct {
	command   string
	timeout   time.Duration
	onVerdict VerdictFunc
	logger    *zap.Logger
}

// New builds a Scanner. command is split on whitespace; the entity path is
// appended as the final argument.
func New(command string, timeout time.Duration, logger *zap.Logger) *Scanner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Scanner{command: command, timeout: timeout, logger: logger}
}

// SetVerdictRecord configures the verdict recording callback.
func (s *Scanner) SetVerdictRecord(fn VerdictFunc) {
	s.onVerdict = fn
}

// Result is the classified outcome of one analyzer run.
type Result struct {
	IsSafe     bool
	Critical   int
	High       int
	Medium     int
	Low        int
	Analyzers  []string
	Raw        json.RawMessage
	ScanFailed bool
	Error      string
}

// Scan runs the analyzer against the entity at path, feeding payload on
// stdin. A timeout or non-zero exit produces a failed result, never an
// error: admission policy decides what a failed scan means.
func (s *Scanner) Scan(ctx context.Context, path string, payload []byte) Result {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	parts := strings.Fields(s.command)
	if len(parts) == 0 {
		return s.record(Result{ScanFailed: true, Error: "no scanner command configured"})
	}
	args := append(parts[1:], path)
	cmd := exec.CommandContext(ctx, parts[0], args...)
	cmd.Stdin = bytes.NewReader(payload)

	out, err := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.logger.Warn("scanner timed out", zap.String("path", path), zap.Duration("timeout", s.timeout))
		return s.record(Result{ScanFailed: true, Error: fmt.Sprintf("scanner timed out after %s", s.timeout)})
	}
	if err != nil {
		s.logger.Warn("scanner failed", zap.String("path", path), zap.Error(err))
		return s.record(Result{ScanFailed: true, Error: fmt.Sprintf("scanner exited: %v", err), Raw: rawOrNil(out)})
	}

	res, perr := Classify(out)
	if perr != nil {
		s.logger.Warn("scanner output unparseable", zap.String("path", path), zap.Error(perr))
		return s.record(Result{ScanFailed: true, Error: perr.Error(), Raw: rawOrNil(out)})
	}
	return s.record(res)
}

func (s *Scanner) record(r Result) Result {
	if s.onVerdict != nil {
		switch {
		case r.ScanFailed:
			s.onVerdict("error")
		case r.IsSafe:
			s.onVerdict("pass")
		default:
			s.onVerdict("fail")
		}
	}
	return r
}

func rawOrNil(out []byte) json.RawMessage {
	if json.Valid(out) {
		return out
	}
	return nil
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// finding is the least common denominator of analyzer output entries.
type finding struct {
	Severity string `json:"severity"`
	Analyzer string `json:"analyzer"`
}

// report is the object form some analyzers emit.
type report struct {
	Findings  []finding `json:"findings"`
	Analyzers []string  `json:"analyzers"`
}

// Classify strips terminal noise from analyzer output, locates the first
// JSON value, and tallies findings by severity. A scan is safe when it
// produced no critical and no high findings.
func Classify(output []byte) (Result, error) {
	cleaned := ansiEscape.ReplaceAll(output, nil)
	payload, err := firstJSON(cleaned)
	if err != nil {
		return Result{}, err
	}

	var findings []finding
	var analyzers []string
	switch payload[0] {
	case '[':
		if err := json.Unmarshal(payload, &findings); err != nil {
			return Result{}, fmt.Errorf("parse findings array: %w", err)
		}
	default:
		var rep report
		if err := json.Unmarshal(payload, &rep); err != nil {
			return Result{}, fmt.Errorf("parse findings report: %w", err)
		}
		findings = rep.Findings
		analyzers = rep.Analyzers
	}

	res := Result{Raw: payload, Analyzers: analyzers}
	seen := map[string]bool{}
	for _, f := range findings {
		switch strings.ToLower(f.Severity) {
		case "critical":
			res.Critical++
		case "high":
			res.High++
		case "medium", "moderate":
			res.Medium++
		case "low", "info":
			res.Low++
		}
		if f.Analyzer != "" && !seen[f.Analyzer] {
			seen[f.Analyzer] = true
			res.Analyzers = append(res.Analyzers, f.Analyzer)
		}
	}
	res.IsSafe = res.Critical == 0 && res.High == 0
	return res, nil
}

// firstJSON finds the first JSON array or object in noisy output and
// returns the complete value starting there.
func firstJSON(out []byte) (json.RawMessage, error) {
	start := bytes.IndexAny(out, "[{")
	if start < 0 {
		return nil, errors.New("no JSON found in scanner output")
	}
	dec := json.NewDecoder(bytes.NewReader(out[start:]))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("malformed JSON in scanner output: %w", err)
	}
	return raw, nil
}
