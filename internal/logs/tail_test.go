package logs_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"notesync/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notesync.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\n")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("Tail returned error: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "b" || result.Lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	if result.Offset != int64(len("a\nb\nc\n")) {
		t.Fatalf("offset = %d", result.Offset)
	}
}

func TestTailLastLinesAcrossChunks(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 5000; i++ {
		fmt.Fprintf(&b, "line %04d %s\n", i, strings.Repeat("x", 20))
	}
	path := writeLog(t, b.String())

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 3000})
	if err != nil {
		t.Fatalf("Tail returned error: %v", err)
	}
	if len(result.Lines) != 3000 {
		t.Fatalf("expected 3000 lines, got %d", len(result.Lines))
	}
	if !strings.HasPrefix(result.Lines[0], "line 2000 ") || !strings.HasPrefix(result.Lines[2999], "line 4999 ") {
		t.Fatalf("unexpected bounds: %q .. %q", result.Lines[0], result.Lines[2999])
	}
}

func TestTailMatchFiltersSession(t *testing.T) {
	path := writeLog(t, "s1 start\ns2 start\ns1 done\nno newline s1")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 10, Match: "s1"})
	if err != nil {
		t.Fatalf("Tail returned error: %v", err)
	}
	want := []string{"s1 start", "s1 done", "no newline s1"}
	if strings.Join(result.Lines, "|") != strings.Join(want, "|") {
		t.Fatalf("lines = %#v, want %#v", result.Lines, want)
	}
}

func TestTailFromOffsetSkipsPartialLine(t *testing.T) {
	path := writeLog(t, "one\ntwo\npart")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 4})
	if err != nil {
		t.Fatalf("Tail returned error: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "two" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	if result.Offset != 8 {
		t.Fatalf("offset = %d, want 8", result.Offset)
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := logs.Tail(context.Background(), filepath.Join(t.TempDir(), "absent.log"), logs.TailOptions{Offset: -1, Limit: 5})
	if err != nil {
		t.Fatalf("Tail returned error: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestTailFollowWaitsForNewLines(t *testing.T) {
	path := writeLog(t, "start\n")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	first, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("Tail returned error: %v", err)
	}

	done := make(chan logs.TailResult, 1)
	go func() {
		res, err := logs.Tail(ctx, path, logs.TailOptions{Offset: first.Offset, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow Tail returned error: %v", err)
		}
		done <- res
	}()

	time.Sleep(100 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := f.WriteString("later\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	f.Close()

	select {
	case res := <-done:
		if len(res.Lines) != 1 || res.Lines[0] != "later" {
			t.Fatalf("unexpected follow lines: %#v", res.Lines)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("follow did not return")
	}
}
