package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	orig := Version
	Version = "1.2.3"
	defer func() { Version = orig }()

	info := Get()
	if info.Version != "1.2.3" {
		t.Errorf("Version = %q, want 1.2.3", info.Version)
	}
	if info.GoVersion == "" {
		t.Error("GoVersion is empty")
	}
	if s := info.String(); !strings.HasPrefix(s, "lapexport 1.2.3 (") {
		t.Errorf("String() = %q", s)
	}
}
