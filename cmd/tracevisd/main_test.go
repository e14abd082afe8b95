package main

import (
	"bytes"
	"testing"
)

func TestVersionCommandPrintsVersion(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if got := out.String(); got != version+"\n" {
		t.Fatalf("version output = %q, want %q", got, version+"\n")
	}
}

func TestParseThreadPipeNameAcceptsOnlyTraceSuffix(t *testing.T) {
	cases := []struct {
		name    string
		wantID  uint64
		wantOK  bool
	}{
		{"42.trace", 42, true},
		{"42.trace.tmp", 0, false},
		{"notanumber.trace", 0, false},
		{"readme.txt", 0, false},
	}
	for _, c := range cases {
		id, ok := parseThreadPipeName(c.name)
		if ok != c.wantOK || (ok && id != c.wantID) {
			t.Errorf("parseThreadPipeName(%q) = (%d, %v), want (%d, %v)", c.name, id, ok, c.wantID, c.wantOK)
		}
	}
}
