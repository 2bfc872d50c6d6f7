package tts

import (
	"errors"
	"strings"
	"testing"
)

func TestStripMarkdown(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"headers", "## Growth plan\nStart here.", "Growth plan\nStart here."},
		{"emphasis", "This is **bold**, *italic*, __strong__ and _soft_.", "This is bold, italic, strong and soft."},
		{"links", "Read [the brief](https://example.com/brief) today.", "Read the brief today."},
		{"images", "Chart: ![q3](chart.png) done", "Chart:  done"},
		{"fences", "Before\n```go\nfmt.Println(1)\n```\nAfter", "Before\n\nAfter"},
		{"inline code", "Run `make build` now.", "Run make build now."},
		{"blockquote", "> Quoted line\nplain", "Quoted line\nplain"},
		{"rule", "One\n---\nTwo", "One\n\nTwo"},
		{"table", "| Metric | Value |\n|---|---|\n| CAC | 120 |", "Metric Value\n\nCAC 120"},
		{"collapse", "a\n\n\n\n\nb", "a\n\nb"},
		{"snake case survives", "use my_var_name here", "use my_var_name here"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripMarkdown(tc.in); got != tc.want {
				t.Fatalf("StripMarkdown(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestPrepare(t *testing.T) {
	if _, err := Prepare("```\nonly code\n```", 0); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if _, err := Prepare("   ", 0); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText for blank text, got %v", err)
	}

	long := strings.Repeat("é", MaxTextLength+50)
	out, err := Prepare(long, 0)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if n := len([]rune(out)); n != MaxTextLength {
		t.Fatalf("expected %d runes, got %d", MaxTextLength, n)
	}

	out, err = Prepare("**Hello** world", 5)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if out != "**Hel" {
		t.Fatalf("truncation happens before cleaning, got %q", out)
	}
}
