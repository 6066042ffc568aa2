package logs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	chunkSize    = 32 * 1024
	maxLineBytes = 1024 * 1024
	pollInterval = 200 * time.Millisecond
)

// TailOptions controls a Tail call.
type TailOptions struct {
	// Offset < 0 selects the last Limit lines; otherwise reading starts at Offset.
	Offset int64
	Limit  int
	// Match keeps only lines containing the substring, typically a session id.
	Match  string
	Follow bool
	Wait   time.Duration
}

// TailResult carries the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from the log at path. A missing file yields an empty
// result at offset zero.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	var result TailResult
	if opts.Offset < 0 {
		result, err = lastLines(path, info.Size(), opts.Limit, opts.Match)
	} else {
		offset := opts.Offset
		if offset > info.Size() {
			// Rotated or truncated since the caller's last read.
			offset = 0
		}
		result, err = readFrom(path, offset, opts.Match)
	}
	if err != nil {
		return result, err
	}
	if len(result.Lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return result, nil
	}
	return poll(ctx, path, result.Offset, opts)
}

// lastLines walks the file backwards in chunks until it has collected limit
// matching lines or reached the start.
func lastLines(path string, size int64, limit int, match string) (TailResult, error) {
	result := TailResult{Offset: size}
	if limit <= 0 || size == 0 {
		return result, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return result, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var (
		collected []string
		carry     []byte
		pos       = size
	)
	for pos > 0 && len(collected) < limit {
		n := int64(chunkSize)
		if pos < n {
			n = pos
		}
		pos -= n
		buf := make([]byte, n, int(n)+len(carry))
		if _, err := file.ReadAt(buf, pos); err != nil && !errors.Is(err, io.EOF) {
			return result, fmt.Errorf("read log file: %w", err)
		}
		buf = append(buf, carry...)

		parts := bytes.Split(buf, []byte{'\n'})
		// The first fragment may continue in the previous chunk.
		carry = parts[0]
		for i := len(parts) - 1; i >= 1 && len(collected) < limit; i-- {
			if line := string(parts[i]); line != "" && keep(line, match) {
				collected = append(collected, line)
			}
		}
		if len(carry) > maxLineBytes {
			carry = carry[len(carry)-maxLineBytes:]
		}
	}
	if pos == 0 && len(collected) < limit {
		if line := string(carry); line != "" && keep(line, match) {
			collected = append(collected, line)
		}
	}

	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	result.Lines = collected
	return result, nil
}

func readFrom(path string, offset int64, match string) (TailResult, error) {
	result := TailResult{Offset: offset}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return result, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return result, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// A partial last line is left for the next read.
			return result, nil
		}
		if err != nil {
			return result, fmt.Errorf("read log file: %w", err)
		}
		result.Offset += int64(len(line))
		if text := strings.TrimRight(line, "\r\n"); keep(text, match) {
			result.Lines = append(result.Lines, text)
		}
	}
}

func poll(ctx context.Context, path string, offset int64, opts TailOptions) (TailResult, error) {
	deadline := time.NewTimer(opts.Wait)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-deadline.C:
			return result, nil
		case <-ticker.C:
		}
		next, err := readFrom(path, result.Offset, opts.Match)
		if err != nil {
			return result, err
		}
		result = next
		if len(result.Lines) > 0 {
			return result, nil
		}
	}
}

func keep(line, match string) bool {
	return match == "" || strings.Contains(line, match)
}
