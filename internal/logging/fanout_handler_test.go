package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestNewFanoutHandlerNilHandlers(t *testing.T) {
	h := newFanoutHandler(nil, nil)
	if _, ok := h.(NoopHandler); !ok {
		t.Errorf("expected NoopHandler for all nil handlers, got %T", h)
	}
}

func TestNewFanoutHandlerFiltersNil(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)

	if h := newFanoutHandler(nil, inner, nil); h != inner {
		t.Error("expected single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerEnabled(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewJSONHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected fanout to be enabled when any handler accepts debug")
	}

	none := newFanoutHandler(
		slog.NewJSONHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewJSONHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	if none.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected fanout to reject info when no handler accepts it")
	}
}

func TestFanoutHandlerHandleRespectsLevel(t *testing.T) {
	var infoBuf, warnBuf bytes.Buffer
	logger := slog.New(newFanoutHandler(
		slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	))

	logger.Info("info message", slog.String("attr", "value"))

	if !bytes.Contains(infoBuf.Bytes(), []byte(`"attr"`)) {
		t.Error("expected attr in info buffer")
	}
	if warnBuf.Len() != 0 {
		t.Error("expected no output in warn buffer")
	}
}

func TestFanoutHandlerWithAttrsAndGroup(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := newFanoutHandler(slog.NewJSONHandler(&buf1, nil), slog.NewJSONHandler(&buf2, nil))
	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("key", "value")}).WithGroup("grp"))
	logger.Info("test", slog.String("field", "v"))

	for name, buf := range map[string]*bytes.Buffer{"buf1": &buf1, "buf2": &buf2} {
		if !bytes.Contains(buf.Bytes(), []byte(`"key"`)) {
			t.Errorf("expected key attribute in %s", name)
		}
		if !bytes.Contains(buf.Bytes(), []byte(`"grp"`)) {
			t.Errorf("expected group in %s", name)
		}
	}
}

func TestTeeLogger(t *testing.T) {
	var baseBuf, teeBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, nil))
	TeeLogger(base, slog.NewJSONHandler(&teeBuf, nil)).Info("teed message")

	if baseBuf.Len() == 0 {
		t.Error("expected output in base buffer")
	}
	if teeBuf.Len() == 0 {
		t.Error("expected output in tee buffer")
	}

	var nilBaseBuf bytes.Buffer
	TeeLogger(nil, slog.NewJSONHandler(&nilBaseBuf, nil)).Info("no base")
	if nilBaseBuf.Len() == 0 {
		t.Error("expected output with nil base")
	}
}
