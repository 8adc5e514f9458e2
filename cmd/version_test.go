package cmd

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
)

func runVersion(t *testing.T, version string, args ...string) string {
	t.Helper()
	original := rootCmd.Version
	defer func() { rootCmd.Version = original }()
	rootCmd.Version = version

	versionCmd := newVersionCmd()
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.SetErr(&buf)
	versionCmd.SetArgs(args)
	if err := versionCmd.Execute(); err != nil {
		t.Fatalf("version %v: %v", args, err)
	}
	return buf.String()
}

func TestVersionCommand(t *testing.T) {
	output := runVersion(t, "1.2.3-test")

	if !strings.HasPrefix(output, "steward version 1.2.3-test (") {
		t.Errorf("Unexpected output %q", output)
	}
	if !strings.Contains(output, runtime.GOOS+"/"+runtime.GOARCH) {
		t.Errorf("Output %q should name the platform", output)
	}
}

func TestVersionCommand_Short(t *testing.T) {
	if output := runVersion(t, "1.2.3", "--short"); output != "1.2.3\n" {
		t.Errorf("Expected %q, got %q", "1.2.3\n", output)
	}
}

func TestVersionCommand_EmptyVersion(t *testing.T) {
	if output := runVersion(t, "", "--short"); output != "dev\n" {
		t.Errorf("Expected dev build marker, got %q", output)
	}
}

func TestVersionCommand_RejectsArgs(t *testing.T) {
	versionCmd := newVersionCmd()
	versionCmd.SetOut(&bytes.Buffer{})
	versionCmd.SetErr(&bytes.Buffer{})
	versionCmd.SetArgs([]string{"extra"})
	if err := versionCmd.Execute(); err == nil {
		t.Error("Expected an error for unexpected arguments")
	}
}
