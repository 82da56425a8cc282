// ABOUTME: Tests for version command
// ABOUTME: Verifies version info display in text and JSON
package commands

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func withVersion(t *testing.T, version, commit, date string) {
	t.Helper()
	original := versionInfo
	t.Cleanup(func() { versionInfo = original })
	SetVersion(version, commit, date)
}

func TestVersionCmd_Output(t *testing.T) {
	resetGlobals(t)
	withVersion(t, "1.2.3", "abc123", "2026-01-31")

	cmd := NewVersionCmd()
	var output bytes.Buffer
	cmd.SetOut(&output)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	for _, want := range []string{"MindAid 1.2.3", "Commit: abc123", "Built:  2026-01-31", "Go:"} {
		if !strings.Contains(output.String(), want) {
			t.Errorf("output %q should contain %q", output.String(), want)
		}
	}
}

func TestVersionCmd_JSON(t *testing.T) {
	resetGlobals(t)
	withVersion(t, "1.2.3", "abc123", "2026-01-31")

	root := NewRootCmd()
	var output bytes.Buffer
	root.SetOut(&output)
	root.SetArgs([]string{"--format", "json", "version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var info VersionInfo
	if err := json.Unmarshal(output.Bytes(), &info); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, output.String())
	}
	if info.Version != "1.2.3" || info.Commit != "abc123" || info.GoVersion == "" {
		t.Errorf("info = %+v", info)
	}
}
