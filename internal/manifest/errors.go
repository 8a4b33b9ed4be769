package manifest

import (
	"fmt"
	"strings"
)

// ParseError reports a malformed declared resource list or document.
type ParseError struct {
	Path  string
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("parse %s of %s: %v", e.Field, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// InvalidManifestData reports structurally wrong page or channel data.
type InvalidManifestData struct {
	Path   string
	Reason string
	Err    error
}

func (e *InvalidManifestData) Error() string {
	msg := "invalid manifest data"
	if e.Path != "" {
		msg += " for " + e.Path
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidManifestData) Unwrap() error { return e.Err }

// ResourceUnavailable is the soft failure of one declared resource. It is
// logged and the entry dropped; it never fails a manifest. Page is the
// manifest that declared the resource, filled in by the composer.
type ResourceUnavailable struct {
	Path  string
	Page  string
	Cause error
}

func (e *ResourceUnavailable) Error() string {
	if e.Page != "" {
		return fmt.Sprintf("resource %s of %s not available: %v", e.Path, e.Page, e.Cause)
	}
	return fmt.Sprintf("resource %s not available: %v", e.Path, e.Cause)
}

func (e *ResourceUnavailable) Unwrap() error { return e.Cause }

// CyclicFragmentError reports a fragment that includes itself, directly or
// through other fragments. Chain lists the traversal ending at the repeat.
type CyclicFragmentError struct {
	Chain []string
}

func (e *CyclicFragmentError) Error() string {
	return "fragment cycle: " + strings.Join(e.Chain, " -> ")
}
