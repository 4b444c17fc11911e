package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeDotEnv(t *testing.T, body string) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".gemhub")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, ".env")
	if body != "" {
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

func TestParseDotEnv(t *testing.T) {
	body := `# comment
A=1
export B = two
C = "quoted # value"
D=plain # trailing
E='single'
not a pair
=orphan
`
	m, err := parseDotEnv(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parseDotEnv: %v", err)
	}
	want := map[string]string{"A": "1", "B": "two", "C": "quoted # value", "D": "plain", "E": "single"}
	if len(m) != len(want) {
		t.Fatalf("got %v, want %v", m, want)
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %q, want %q", k, m[k], v)
		}
	}
}

func TestLoadDotEnvMissing(t *testing.T) {
	writeDotEnv(t, "")
	m, err := LoadDotEnv()
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty map, got %v", m)
	}
}

func TestGetConfigValueEnvWins(t *testing.T) {
	writeDotEnv(t, "K=fromdotenv\nL=only\n")
	t.Setenv("K", "fromenv")
	t.Setenv("L", "")

	if v, err := GetConfigValue("K"); err != nil || v != "fromenv" {
		t.Fatalf("K = %q, %v", v, err)
	}
	if v, err := GetConfigValue("L"); err != nil || v != "only" {
		t.Fatalf("L = %q, %v", v, err)
	}
}

func TestEnsureDotEnvTemplate(t *testing.T) {
	p := writeDotEnv(t, "")
	if err := EnsureDotEnvTemplate(); err != nil {
		t.Fatalf("EnsureDotEnvTemplate: %v", err)
	}
	m, err := LoadDotEnv()
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{EnvRoot, EnvLogLevel, EnvLockTimeout} {
		if v, ok := m[k]; !ok || v != "" {
			t.Errorf("template entry %s = %q, %v", k, v, ok)
		}
	}

	if err := os.WriteFile(p, []byte(EnvRoot+"=/srv/gems\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := EnsureDotEnvTemplate(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != EnvRoot+"=/srv/gems\n" {
		t.Fatalf("template overwrote existing file: %q", b)
	}
}
