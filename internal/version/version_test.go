package version

import (
	"strings"
	"testing"
)

func TestVersionStringNonEmpty(t *testing.T) {
	if s := String(); s == "" {
		t.Fatalf("version string is empty")
	}
}

func TestVersionStringCarriesBuildVersion(t *testing.T) {
	old := Version
	Version = "9.9.9"
	t.Cleanup(func() { Version = old })
	if s := String(); !strings.HasSuffix(s, "9.9.9") {
		t.Fatalf("version string %q does not end with build version", s)
	}
}
