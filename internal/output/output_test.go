package output

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	Book    string `json:"book" yaml:"book"`
	Chapter int    `json:"chapter" yaml:"chapter"`
}

func TestPrinter(t *testing.T) {
	data := sample{Book: "Genesis", Chapter: 1}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := NewPrinter(&buf, JSON).Print(data); err != nil {
			t.Fatalf("Print: %v", err)
		}
		if !strings.Contains(buf.String(), `"book": "Genesis"`) {
			t.Errorf("unexpected JSON output: %s", buf.String())
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := NewPrinter(&buf, YAML).Print(data); err != nil {
			t.Fatalf("Print: %v", err)
		}
		if !strings.Contains(buf.String(), "book: Genesis") {
			t.Errorf("unexpected YAML output: %s", buf.String())
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		var buf bytes.Buffer
		if err := NewPrinter(&buf, Format("toml")).Print(data); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != JSON {
		t.Errorf("ParseFormat(json) = %q, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != YAML {
		t.Errorf("ParseFormat(empty) = %q, %v", f, err)
	}
	if _, err := ParseFormat("bogus"); err == nil {
		t.Error("expected error for unknown format")
	}
}
