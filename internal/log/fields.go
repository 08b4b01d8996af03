// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldJobID     = "job_id"
	FieldRequestID = "request_id"

	// Process / lifecycle fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldModule    = "module"
	FieldStage     = "stage"
	FieldOutcome   = "outcome"

	// Bundle fields
	FieldURL       = "url"
	FieldPath      = "path"
	FieldBytes     = "bytes"
	FieldETag      = "etag"
	FieldStatus    = "status"
	FieldTimeout   = "timeout"
	FieldUserRetry = "user_retry"
)
