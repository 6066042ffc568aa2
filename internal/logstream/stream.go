package logstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notesync/internal/ipc"
	"notesync/internal/logs"
)

// TailClient captures the IPC log tail contract.
type TailClient interface {
	LogTail(req ipc.LogTailRequest) (*ipc.LogTailResponse, error)
}

// Options controls stream behavior.
type Options struct {
	Lines  int
	Follow bool
	// Session keeps only lines mentioning this session id.
	Session string
}

// FileTail reads the log file directly, for when no daemon is reachable.
type FileTail struct {
	ctx  context.Context
	Path string
}

// NewFileTail returns a TailClient backed by the log file at path.
func NewFileTail(ctx context.Context, path string) *FileTail {
	return &FileTail{ctx: ctx, Path: path}
}

// LogTail implements TailClient.
func (f *FileTail) LogTail(req ipc.LogTailRequest) (*ipc.LogTailResponse, error) {
	result, err := logs.Tail(f.ctx, f.Path, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Match:  req.Match,
		Follow: req.Follow,
		Wait:   time.Duration(req.WaitMillis) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	return &ipc.LogTailResponse{Lines: result.Lines, Offset: result.Offset}, nil
}

// Stream emits log lines from client, polling for more while following.
// It returns true when at least one line was emitted.
func Stream(ctx context.Context, client TailClient, opts Options, onLine func(string)) (bool, error) {
	if client == nil {
		return false, errors.New("log source unavailable")
	}
	limit := opts.Lines
	if limit < 0 {
		limit = 0
	}
	offset := int64(-1)
	if limit == 0 {
		offset = 0
	}

	printed := false
	for {
		req := ipc.LogTailRequest{
			Offset:     offset,
			Limit:      limit,
			Match:      opts.Session,
			Follow:     opts.Follow && offset >= 0,
			WaitMillis: 1000,
		}
		resp, err := client.LogTail(req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return printed, nil
			}
			return printed, fmt.Errorf("tail logs: %w", err)
		}
		if resp == nil {
			return printed, errors.New("log tail response missing")
		}
		for _, line := range resp.Lines {
			if onLine != nil {
				onLine(line)
			}
			printed = true
		}
		offset = resp.Offset
		limit = 0
		if !opts.Follow {
			return printed, nil
		}
		select {
		case <-ctx.Done():
			return printed, nil
		default:
		}
	}
}
