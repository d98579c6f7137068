// Package output renders command results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Format selects how a Printer renders values.
type Format string

const (
	YAML Format = "yaml"
	JSON Format = "json"
)

// ParseFormat maps an --output flag value to a Format. An empty value
// selects YAML.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "yaml", "":
		return YAML, nil
	case "json":
		return JSON, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Printer renders command results to one destination in one format.
type Printer struct {
	w      io.Writer
	format Format
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer, format Format) *Printer {
	return &Printer{w: w, format: format}
}

// Format reports the printer's rendering format.
func (p *Printer) Format() Format { return p.format }

// Print renders v to the printer's destination.
func (p *Printer) Print(v any) error {
	switch p.format {
	case JSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case YAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	return fmt.Errorf("unknown output format %q", p.format)
}
