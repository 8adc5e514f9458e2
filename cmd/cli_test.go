package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"steward/internal/model"
)

// execute runs the root command against a scratch configuration directory.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append([]string{"--config-path", dir, "-q"}, args...))
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeDefinition(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLI_CreateAndListServer(t *testing.T) {
	dir := t.TempDir()
	def := writeDefinition(t, dir, "node1.yaml", `
name: node1
domain: example.com
ip: 10.0.0.1
sshPort: 22
login: root
startPort: 10000
endPort: 10100
`)

	out, err := execute(t, dir, "create", "server", def, "-o", "json")
	if err != nil {
		t.Fatalf("create server failed: %v\n%s", err, out)
	}
	var srv model.Server
	if err := json.Unmarshal([]byte(out), &srv); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", out, err)
	}
	if srv.ID == "" || srv.PublicKey == "" {
		t.Errorf("Expected a stored server with a generated key, got %+v", srv)
	}

	out, err = execute(t, dir, "list", "servers", "-o", "json")
	if err != nil {
		t.Fatalf("list servers failed: %v", err)
	}
	if !strings.Contains(out, `"Name": "node1"`) {
		t.Errorf("Expected node1 in listing, got %q", out)
	}

	out, err = execute(t, dir, "ssh-config", srv.ID, "-o", "table")
	if err != nil {
		t.Fatalf("ssh-config failed: %v", err)
	}
	if !strings.Contains(out, "Host node1.example.com") {
		t.Errorf("Expected a host block, got %q", out)
	}
	identity := filepath.Join(dir, "keys", "node1.example.com")
	if !strings.Contains(out, "IdentityFile "+identity) {
		t.Errorf("Expected identity file %s, got %q", identity, out)
	}
	if _, err := os.Stat(identity); err != nil {
		t.Errorf("Expected identity file to be written: %v", err)
	}
}

func TestCLI_ActionErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, dir, "reset", "container", "x", "-o", "table")
	if err == nil || !strings.Contains(err.Error(), "unknown resource type 'container'") {
		t.Errorf("Expected an unsupported kind error, got %v", err)
	}

	_, err = execute(t, dir, "save", "container", "missing", "-o", "table")
	if err == nil {
		t.Fatal("Expected saving an unknown container to fail")
	}
	if code := getExitCode(err); code != ExitCodeInvalid {
		t.Errorf("Expected exit code %d, got %d (%v)", ExitCodeInvalid, code, err)
	}
}

func TestCLI_ListEmpty(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "list", "containers", "-o", "json")
	if err != nil {
		t.Fatalf("list containers failed: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("Expected an empty JSON list, got %q", out)
	}

	_, err = execute(t, dir, "list", "versions", "-o", "json", "--app", "")
	if err == nil {
		t.Error("Expected listing versions without --app to fail")
	}
}
