package model

// ErrValidation is returned when the caller supplies invalid input: a
// malformed path, an out-of-range rating, an unknown transport, a broken
// security-scheme reference. Handlers translate it to 400.
type ErrValidation struct{ Msg string }

func (e *ErrValidation) Error() string { return e.Msg }

// ErrUnsafe is returned when registration is blocked by a failing security
// scan. The offending scan result rides along so the caller can see why.
type ErrUnsafe struct {
	Path string
	Scan *SecurityScanResult
}

func (e *ErrUnsafe) Error() string {
	if e.Scan != nil && e.Scan.ScanFailed {
		return "security scan for " + e.Path + " failed: " + e.Scan.Error
	}
	return "security scan for " + e.Path + " found blocking findings"
}
