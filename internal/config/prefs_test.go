package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPrefsFile_MissingWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "masterd.prf")

	pf, err := LoadPrefsFile(path)
	if err != nil {
		t.Fatalf("LoadPrefsFile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected defaults written to disk: %v", err)
	}
	if pf.values["name"] != "masterd" {
		t.Fatalf("expected default name parsed back, got %q", pf.values["name"])
	}
}

func TestParsePrefsLines_IgnoresCommentsAndBlankLines(t *testing.T) {
	pf := parsePrefsLines([]string{
		"# a comment",
		"",
		"$name test-server",
		"   ",
		"$verbosity 3",
	})
	if pf.values["name"] != "test-server" {
		t.Fatalf("got %q", pf.values["name"])
	}
	if pf.values["verbosity"] != "3" {
		t.Fatalf("got %q", pf.values["verbosity"])
	}
}

func TestParsePrefsLines_RepeatedAddressAccumulates(t *testing.T) {
	pf := parsePrefsLines([]string{
		"$address 10.0.0.1:28000",
		"$address 10.0.0.2:28000",
	})
	if len(pf.addresses) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(pf.addresses))
	}
}

func TestPrefsKeyToViperKey_FlattensDoubleColon(t *testing.T) {
	if got, want := prefsKeyToViperKey("flood::MaxTickets"), "flood.maxtickets"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
