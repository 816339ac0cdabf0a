package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "sshx.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestLoadFillsDefaults(t *testing.T) {
	p := writeTempConfig(t, `
max-auth-requests: 5
preferred-ciphers: ["aes256-ctr", "aes128-ctr"]
`)
	opts, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.MaxAuthRequests != 5 {
		t.Errorf("MaxAuthRequests = %d, want 5", opts.MaxAuthRequests)
	}
	if opts.WindowSize != Defaults().WindowSize {
		t.Errorf("WindowSize not defaulted: got %d", opts.WindowSize)
	}
	if opts.MaxPacket != Defaults().MaxPacket {
		t.Errorf("MaxPacket not defaulted: got %d", opts.MaxPacket)
	}
	if len(opts.PreferredCiphers) != 2 {
		t.Errorf("PreferredCiphers = %v", opts.PreferredCiphers)
	}
	if err := opts.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	os.Setenv("SSHX_TEST_MAXAUTH", "9")
	defer os.Unsetenv("SSHX_TEST_MAXAUTH")

	p := writeTempConfig(t, `
max-auth-requests: ${SSHX_TEST_MAXAUTH}
`)
	opts, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.MaxAuthRequests != 9 {
		t.Errorf("MaxAuthRequests = %d, want 9 (from env expansion)", opts.MaxAuthRequests)
	}
}

func TestValidateRejectsNonPositiveMaxAuthRequests(t *testing.T) {
	opts := Defaults()
	opts.MaxAuthRequests = 0
	if err := opts.Validate(); err == nil {
		t.Error("Validate should reject max-auth-requests=0")
	}
}

func TestValidateRejectsOversizedMaxPacket(t *testing.T) {
	opts := Defaults()
	opts.MaxPacket = 1 << 21
	if err := opts.Validate(); err == nil {
		t.Error("Validate should reject an oversized max-packet")
	}
}
