package services

import (
	"encoding/json"
	"io"
)

// OperationResult is the machine-readable outcome of an operator command.
type OperationResult struct {
	OK       bool     `json:"ok"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Data     any      `json:"data,omitempty"`
}

func Succeeded(data any) *OperationResult {
	return &OperationResult{OK: true, Errors: []string{}, Warnings: []string{}, Data: data}
}

// Failed reports err. Data may still describe partial progress, such as a provisioning report.
func Failed(err error, data any) *OperationResult {
	return &OperationResult{OK: false, Errors: []string{err.Error()}, Warnings: []string{}, Data: data}
}

func (r *OperationResult) Warn(msg string) *OperationResult {
	r.Warnings = append(r.Warnings, msg)
	return r
}

func (r *OperationResult) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
