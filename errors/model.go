// Package errors maps contact failures onto transport-neutral responses
// that render as gRPC statuses or JSON HTTP bodies.
package errors

import (
	"encoding/json"
	"maps"
	"slices"

	"google.golang.org/grpc/codes"
)

// Reason is a stable machine code such as "validation_failed" or "conflict".
type Reason string

// FieldViolation is a validation failure on one field.
type FieldViolation struct {
	Field       string `json:"field"`
	Reason      string `json:"reason,omitempty"`
	Description string `json:"description,omitempty"`
}

type ErrorResponse struct {
	Code       codes.Code        `json:"code"`
	Reason     Reason            `json:"reason,omitempty"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Violations []FieldViolation  `json:"violations,omitempty"`
}

func New(message string, code codes.Code, details map[string]string) ErrorResponse {
	return ErrorResponse{Code: code, Message: message, Details: details}
}

func (e ErrorResponse) WithReason(r string) ErrorResponse { e.Reason = Reason(r); return e }

func (e ErrorResponse) WithDetail(k, v string) ErrorResponse {
	return e.WithDetails(map[string]string{k: v})
}

// WithDetails merges m over the existing details without touching e's map.
func (e ErrorResponse) WithDetails(m map[string]string) ErrorResponse {
	if len(m) == 0 {
		return e
	}
	merged := maps.Clone(e.Details)
	if merged == nil {
		merged = make(map[string]string, len(m))
	}
	maps.Copy(merged, m)
	e.Details = merged
	return e
}

func (e ErrorResponse) WithViolations(v []FieldViolation) ErrorResponse {
	if len(v) == 0 {
		return e
	}
	e.Violations = slices.Clone(v)
	return e
}

// body is the wire shape shared by ToString and ToHTTP; Code is the name.
type body struct {
	Code       string            `json:"code"`
	Reason     Reason            `json:"reason,omitempty"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Violations []FieldViolation  `json:"violations,omitempty"`
}

func (e ErrorResponse) body() body {
	return body{
		Code:       e.Code.String(),
		Reason:     e.Reason,
		Message:    e.Message,
		Details:    e.Details,
		Violations: e.Violations,
	}
}

// ToString renders e as JSON.
func (e ErrorResponse) ToString() string {
	b, _ := json.Marshal(e.body())
	return string(b)
}

func (e ErrorResponse) Error() string { return e.ToString() }

// ViolationsFromMap converts field->reason pairs, ordered by field.
func ViolationsFromMap(m map[string]string) []FieldViolation {
	if len(m) == 0 {
		return nil
	}
	out := make([]FieldViolation, 0, len(m))
	for _, f := range slices.Sorted(maps.Keys(m)) {
		out = append(out, FieldViolation{Field: f, Reason: m[f]})
	}
	return out
}
