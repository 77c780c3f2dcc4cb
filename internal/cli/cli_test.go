package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// run executes the root command against a private sqlite directory.
func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func testConfig(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"DATABASE_URL", "REDIS_URL", "CITTADINO_DB_DRIVER", "CITTADINO_DATA_DIR"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "cittadino.toml")
	body := fmt.Sprintf("[database]\ndata_dir = %q\n\n[scheduler]\nenabled = false\n", filepath.Join(dir, "data"))
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLevelsCommand(t *testing.T) {
	out, err := run(t, testConfig(t), "levels")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "LEVEL") || !strings.Contains(out, "∞") {
		t.Errorf("levels output:\n%s", out)
	}
}

func TestQuestionWorkflow(t *testing.T) {
	cfg := testConfig(t)
	book := filepath.Join(t.TempDir(), "bank.xlsx")

	steps := []struct {
		args []string
		want string
	}{
		{[]string{"migrate"}, "schema is up to date"},
		{[]string{"questions", "template", "--sample", book}, "Template written"},
		{[]string{"questions", "import", book}, "Imported 1 questions"},
		{[]string{"questions", "generate", "--date", "2026-05-13"}, "2026-05-13: 1 created"},
		{[]string{"questions", "generate", "--date", "2026-05-13"}, "1 already scheduled"},
	}
	for _, s := range steps {
		out, err := run(t, cfg, s.args...)
		if err != nil {
			t.Fatalf("%v: %v\n%s", s.args, err, out)
		}
		if !strings.Contains(out, s.want) {
			t.Errorf("%v output %q, want %q", s.args, out, s.want)
		}
	}

	if _, err := run(t, cfg, "questions", "generate", "--date", "13/05/2026"); err == nil {
		t.Error("expected an error for a malformed date")
	}
}

func TestPlayerCommands(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "xp", "award", "lucia", "200")
	if err != nil {
		t.Fatalf("xp award: %v\n%s", err, out)
	}
	if !strings.Contains(out, "lucia: 0 → 200 XP") {
		t.Errorf("xp award output: %s", out)
	}

	out, err = run(t, cfg, "profile", "lucia")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if !strings.Contains(out, "User:      lucia") || !strings.Contains(out, "Badges:") {
		t.Errorf("profile output:\n%s", out)
	}

	out, err = run(t, cfg, "leaderboard", "--board", "lifetime_xp")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if !strings.Contains(out, "lucia") {
		t.Errorf("leaderboard output:\n%s", out)
	}

	out, err = run(t, cfg, "premium", "grant", "lucia", "--days", "7")
	if err != nil || !strings.Contains(out, "lucia is premium until") {
		t.Errorf("premium grant: %v\n%s", err, out)
	}

	if _, err := run(t, cfg, "xp", "award", "lucia", "lots"); err == nil {
		t.Error("expected an error for non-numeric points")
	}
	if _, err := run(t, cfg, "leaderboard", "--board", "karma"); err == nil {
		t.Error("expected an error for an unknown board")
	}
}
