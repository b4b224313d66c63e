package main

import (
	"testing"

	"github.com/hikmah-ai/hikmah/pkg/config"
	"github.com/hikmah-ai/hikmah/pkg/core"
)

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"-voice", "Puck", "-language", "Arabic", "-style", "concise"})
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if opts.Voice != "Puck" || opts.Language != "Arabic" || opts.Style != "concise" {
		t.Fatalf("opts = %+v", opts)
	}
}

func TestParseOptionsRejectsUnknownStyle(t *testing.T) {
	if _, err := parseOptions([]string{"-style", "verbose"}); err == nil {
		t.Fatal("parseOptions accepted an unknown style")
	}
}

func TestParseOptionsRejectsUnknownFlag(t *testing.T) {
	if _, err := parseOptions([]string{"-no-such-flag"}); err == nil {
		t.Fatal("parseOptions accepted an unknown flag")
	}
}

func TestApplyOverrides(t *testing.T) {
	prefs := config.Preferences{Voice: "Zephyr", Language: "", Style: core.StyleConversational}
	applyOverrides(&prefs, cliOptions{Voice: "Puck", Style: "detailed"})

	if prefs.Voice != "Puck" {
		t.Fatalf("Voice = %q", prefs.Voice)
	}
	if prefs.Language != "" {
		t.Fatalf("Language overridden without a flag: %q", prefs.Language)
	}
	if prefs.Style != core.StyleDetailed {
		t.Fatalf("Style = %q", prefs.Style)
	}
}

func TestParseStyle(t *testing.T) {
	tests := []struct {
		in   string
		want core.ResponseStyle
	}{
		{"concise", core.StyleConcise},
		{"Detailed", core.StyleDetailed},
		{"conversational", core.StyleConversational},
		{"anything-else", core.StyleConversational},
	}
	for _, tt := range tests {
		if got := parseStyle(tt.in); got != tt.want {
			t.Errorf("parseStyle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEditedPath(t *testing.T) {
	if got := editedPath("photos/cat.png"); got != "photos/cat.edited.png" {
		t.Fatalf("editedPath = %q", got)
	}
	if got := editedPath("noext"); got != "noext.edited" {
		t.Fatalf("editedPath = %q", got)
	}
}

func TestMimeTypeFor(t *testing.T) {
	tests := []struct{ path, want string }{
		{"a.png", "image/png"},
		{"a.PNG", "image/png"},
		{"a.webp", "image/webp"},
		{"a.gif", "image/gif"},
		{"a.jpg", "image/jpeg"},
		{"a.jpeg", "image/jpeg"},
		{"a.unknown", "image/jpeg"},
	}
	for _, tt := range tests {
		if got := mimeTypeFor(tt.path); got != tt.want {
			t.Errorf("mimeTypeFor(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
