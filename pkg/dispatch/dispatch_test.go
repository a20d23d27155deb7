package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/nstogner/crew/pkg/executor"
	"github.com/nstogner/crew/pkg/sandbox"
)

// fakeEngine returns canned results keyed by path and records calls.
type fakeEngine struct {
	results map[string]*executor.Result
	calls   []string
}

func (f *fakeEngine) Execute(ctx context.Context, root, rel string) *executor.Result {
	f.calls = append(f.calls, rel)
	if r, ok := f.results[rel]; ok {
		return r
	}
	return &executor.Result{Stdout: "ran " + rel + "\n"}
}

func (f *fakeEngine) Close() error { return nil }

func newTestDispatcher(t *testing.T, results map[string]*executor.Result) (*Dispatcher, *sandbox.Sandbox, *fakeEngine) {
	t.Helper()
	sb, err := sandbox.Create(t.TempDir(), time.Now())
	if err != nil {
		t.Fatalf("sandbox.Create: %v", err)
	}
	eng := &fakeEngine{results: results}
	return New(sb, eng), sb, eng
}

func TestDispatchNExecutions(t *testing.T) {
	d, _, eng := newTestDispatcher(t, nil)

	reply := "Running them now: <exec>a.py</exec> <exec>b/c.py</exec> and <exec>d.py</exec>"
	summaries := d.Dispatch(context.Background(), reply)

	if len(summaries) != 3 {
		t.Fatalf("got %d summaries, want 3", len(summaries))
	}
	for i, p := range []string{"a.py", "b/c.py", "d.py"} {
		if !strings.HasPrefix(summaries[i].Text, "Execution of "+p) {
			t.Errorf("summary %d = %q", i, summaries[i].Text)
		}
		if summaries[i].Failed {
			t.Errorf("summary %d marked failed", i)
		}
	}
	if len(eng.calls) != 3 {
		t.Errorf("engine called %d times, want 3", len(eng.calls))
	}
}

func TestDispatchAppliesFilesBeforeExecution(t *testing.T) {
	d, sb, _ := newTestDispatcher(t, nil)

	reply := "<exec>a/b.py</exec>\n" +
		`<efil file="a/b.py">X` + "\n" + `Y</efil>` + "\n" +
		"<cfil>a/b.py</cfil><cfol>a</cfol>"

	// The file must exist with its final body by the time it executes.
	var seen string
	d.engine = engineFunc(func(root, rel string) *executor.Result {
		data, _ := os.ReadFile(filepath.Join(root, rel))
		seen = string(data)
		return &executor.Result{}
	})
	d.Dispatch(context.Background(), reply)

	if seen != "X\nY" {
		t.Errorf("file content at execution = %q, want %q", seen, "X\nY")
	}
	got, _ := os.ReadFile(filepath.Join(sb.Root(), "a", "b.py"))
	if string(got) != "X\nY" {
		t.Errorf("file content = %q, want %q", got, "X\nY")
	}
}

func TestDispatchNoTags(t *testing.T) {
	d, sb, eng := newTestDispatcher(t, nil)

	if got := d.Dispatch(context.Background(), "Just a plain answer."); len(got) != 0 {
		t.Errorf("got %d summaries, want 0", len(got))
	}
	entries, err := os.ReadDir(sb.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("sandbox mutated: %d entries", len(entries))
	}
	if len(eng.calls) != 0 {
		t.Error("engine called")
	}
}

func TestDispatchRepeatedCreateFile(t *testing.T) {
	d, sb, _ := newTestDispatcher(t, nil)

	d.Dispatch(context.Background(), "<cfil>x/y.py</cfil>")
	d.Dispatch(context.Background(), "<cfil>x/y.py</cfil><cfil>x/y.py</cfil>")

	if _, err := os.Stat(filepath.Join(sb.Root(), "x", "y.py")); err != nil {
		t.Errorf("file missing: %v", err)
	}
}

func TestDispatchContinuesAfterFilesystemError(t *testing.T) {
	d, sb, _ := newTestDispatcher(t, nil)

	reply := "<cfil>../escape.py</cfil><cfil>ok.py</cfil>" +
		`<efil file="../../evil.py">x</efil><efil file="ok.py">fine</efil>`
	d.Dispatch(context.Background(), reply)

	got, err := os.ReadFile(filepath.Join(sb.Root(), "ok.py"))
	if err != nil {
		t.Fatalf("sibling action skipped: %v", err)
	}
	if string(got) != "fine" {
		t.Errorf("content = %q", got)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(sb.Root()), "escape.py")); !os.IsNotExist(err) {
		t.Error("file created outside the sandbox")
	}
}

func TestDispatchRejectsEscapingExecution(t *testing.T) {
	d, _, eng := newTestDispatcher(t, nil)

	summaries := d.Dispatch(context.Background(), "<exec>../../bin/tool.py</exec>")
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	if !summaries[0].Failed {
		t.Error("escaping execution not marked failed")
	}
	if !strings.HasPrefix(summaries[0].Text, "Execution of ../../bin/tool.py failed with error: ") {
		t.Errorf("summary = %q", summaries[0].Text)
	}
	if len(eng.calls) != 0 {
		t.Error("engine called for an escaping path")
	}
}

func TestSummarize(t *testing.T) {
	var many strings.Builder
	for i := 1; i <= 15; i++ {
		fmt.Fprintf(&many, "line %d\n", i)
	}
	tail := "line 6\nline 7\nline 8\nline 9\nline 10\nline 11\nline 12\nline 13\nline 14\nline 15"

	tests := []struct {
		name       string
		res        executor.Result
		want       string
		wantFailed bool
	}{
		{
			name: "success",
			res:  executor.Result{Stdout: many.String()},
			want: "Execution of app.py succeeded. Last 10 lines of output:\n" + tail,
		},
		{
			name: "success without output",
			res:  executor.Result{},
			want: "Execution of app.py succeeded. Last 10 lines of output:\n",
		},
		{
			name:       "failure with output",
			res:        executor.Result{Stdout: many.String(), Stderr: "Traceback: boom"},
			want:       "Execution of app.py failed with error: Traceback: boom\nLast 10 lines of output:\n" + tail,
			wantFailed: true,
		},
		{
			name: "carriage returns end lines",
			res:  executor.Result{Stdout: "10%\r50%\r100%\r\ndone\n"},
			want: "Execution of app.py succeeded. Last 10 lines of output:\n10%\n50%\n100%\ndone",
		},
		{
			name:       "failure without output",
			res:        executor.Result{Stderr: "Failed to install requirements: nope"},
			want:       "Execution of app.py failed with error: Failed to install requirements: nope",
			wantFailed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.res
			got := Summarize("app.py", &res, DefaultMaxSummaryChars)
			if got.Text != tt.want {
				t.Errorf("Text = %q, want %q", got.Text, tt.want)
			}
			if got.Failed != tt.wantFailed {
				t.Errorf("Failed = %v, want %v", got.Failed, tt.wantFailed)
			}
		})
	}
}

func TestSummarizeTruncation(t *testing.T) {
	res := &executor.Result{Stderr: strings.Repeat("é", 8000)}
	got := Summarize("big.py", res, DefaultMaxSummaryChars)

	if !strings.HasSuffix(got.Text, TruncationMarker) {
		t.Fatalf("missing truncation marker")
	}
	body := strings.TrimSuffix(got.Text, TruncationMarker)
	if n := utf8.RuneCountInString(body); n != DefaultMaxSummaryChars {
		t.Errorf("body has %d characters, want %d", n, DefaultMaxSummaryChars)
	}
	if !utf8.ValidString(got.Text) {
		t.Error("truncation split a character")
	}

	short := Summarize("small.py", &executor.Result{Stdout: "ok"}, DefaultMaxSummaryChars)
	if strings.Contains(short.Text, TruncationMarker) {
		t.Error("short summary truncated")
	}

	// Exactly at the budget is not truncated.
	exact := "Execution of e.py failed with error: "
	res = &executor.Result{Stderr: strings.Repeat("x", DefaultMaxSummaryChars-len(exact))}
	if got := Summarize("e.py", res, DefaultMaxSummaryChars); strings.HasSuffix(got.Text, TruncationMarker) {
		t.Error("summary at the budget was truncated")
	}
}

func TestJoin(t *testing.T) {
	text, failed := Join([]Summary{
		{Path: "a.py", Text: "Execution of a.py succeeded. Last 10 lines of output:\nhi"},
		{Path: "b.py", Text: "Execution of b.py failed with error: x", Failed: true},
	})
	want := "Execution results:\n" +
		"Execution of a.py succeeded. Last 10 lines of output:\nhi\n" +
		"Execution of b.py failed with error: x"
	if text != want {
		t.Errorf("Join text = %q, want %q", text, want)
	}
	if !failed {
		t.Error("Join failed = false, want true")
	}

	if _, failed := Join([]Summary{{Text: "ok"}}); failed {
		t.Error("Join failed = true for successful summaries")
	}
}

// engineFunc adapts a function to executor.Engine.
type engineFunc func(root, rel string) *executor.Result

func (f engineFunc) Execute(ctx context.Context, root, rel string) *executor.Result {
	return f(root, rel)
}

func (f engineFunc) Close() error { return nil }
