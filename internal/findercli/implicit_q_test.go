package findercli

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestRewriteArgsForImplicitQ(t *testing.T) {
	root := NewRootCommand()

	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "empty", in: nil, want: nil},
		{name: "explicit_q", in: []string{"q", "report"}, want: []string{"q", "report"}},
		{name: "explicit_index", in: []string{"index", "build"}, want: []string{"index", "build"}},
		{name: "explicit_watch", in: []string{"watch"}, want: []string{"watch"}},
		{name: "implicit_query_single", in: []string{"report.pdf"}, want: []string{"q", "report.pdf"}},
		{name: "implicit_query_multi", in: []string{"tax", "2024"}, want: []string{"q", "tax", "2024"}},
		{name: "implicit_query_with_index_flag", in: []string{"-f", "/tmp/i.txt", "report"}, want: []string{"q", "-f", "/tmp/i.txt", "report"}},
		{name: "explicit_index_with_base_flag", in: []string{"--base", "/home", "index", "stats"}, want: []string{"--base", "/home", "index", "stats"}},
		{name: "flag_value_named_like_command", in: []string{"-b", "index", "notes"}, want: []string{"q", "-b", "index", "notes"}},
		{name: "q_limit_flag", in: []string{"-n", "5", "pdf"}, want: []string{"q", "-n", "5", "pdf"}},
		{name: "inline_flag_value", in: []string{"--limit=5", "pdf"}, want: []string{"q", "--limit=5", "pdf"}},
		{name: "bool_flag_does_not_consume", in: []string{"--jsonl", "pdf"}, want: []string{"q", "--jsonl", "pdf"}},
		{name: "root_only_flags", in: []string{"--verbose"}, want: []string{"--verbose"}},
		{name: "version_flag", in: []string{"-v"}, want: []string{"-v"}},
		{name: "help_command", in: []string{"help"}, want: []string{"help"}},
		{name: "completion_command", in: []string{"completion", "bash"}, want: []string{"completion", "bash"}},
		{name: "dash_dash_keeps_positional", in: []string{"--", "-foo"}, want: []string{"q", "--", "-foo"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RewriteArgsForImplicitQ(root, tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got=%v want=%v", got, tc.want)
			}
		})
	}
}

func TestImplicitQueryRuns(t *testing.T) {
	cmd, home := testRoot(t)
	base := t.TempDir()
	for _, p := range []string{"a/f1.txt", "b/other.md"} {
		full := filepath.Join(base, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfgPath := writeConfig(t, home, "exclusions = [\"/.git/\"]\n")
	index := filepath.Join(home, "finder_cli", "index.txt")

	cmd.SetArgs([]string{"index", "build", "--config", cfgPath, "--base", base})
	if _, _, err := ExecuteForTest(cmd); err != nil {
		t.Fatalf("build: %v", err)
	}

	cmd, _ = testRoot(t)
	cmd.SetArgs(RewriteArgsForImplicitQ(cmd, []string{"--index", index, "OTHER"}))
	out, _, err := ExecuteForTest(cmd)
	if err != nil {
		t.Fatalf("implicit q: %v", err)
	}
	if want := filepath.Join(base, "b", "other.md") + "\n"; out != want {
		t.Fatalf("output=%q want=%q", out, want)
	}
}
