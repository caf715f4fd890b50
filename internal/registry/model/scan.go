package model

import (
	"encoding/json"
	"time"
)

// SecurityScanResult is one scanner run over an entity. Results are
// append-only per path; the current verdict is the most recent ScannedAt.
type SecurityScanResult struct {
	ServerPath string          `json:"server_path"         bson:"server_path"`
	ScannedAt  time.Time       `json:"scanned_at"          bson:"scanned_at"`
	IsSafe     bool            `json:"is_safe"             bson:"is_safe"`
	Critical   int             `json:"critical"            bson:"critical"`
	High       int             `json:"high"                bson:"high"`
	Medium     int             `json:"medium"              bson:"medium"`
	Low        int             `json:"low"                 bson:"low"`
	Analyzers  []string        `json:"analyzers,omitempty" bson:"analyzers,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"       bson:"raw,omitempty"`
	ScanFailed bool            `json:"scan_failed"         bson:"scan_failed"`
	Error      string          `json:"error,omitempty"     bson:"error,omitempty"`
}

// Status summarizes the run for index queries: pass, fail, or error.
func (r *SecurityScanResult) Status() string {
	switch {
	case r.ScanFailed:
		return "error"
	case r.IsSafe:
		return "pass"
	default:
		return "fail"
	}
}
