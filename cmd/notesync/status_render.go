package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"notesync/internal/ipc"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const statusLabelWidth = 18

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	tag := "[" + statusKindLabel(kind) + "]"
	if message != "" {
		tag += " " + message
	}
	line := fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", tag)
	if colorize {
		return statusKindColor(kind) + line + ansiReset
	}
	return line
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	default:
		return ansiBlue
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		return []string{ansiBlue + line + ansiReset, ansiBlue + rule + ansiReset}
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// resultKind maps a session state to a status line severity.
func resultKind(state string) statusKind {
	switch state {
	case "success":
		return statusOK
	case "cancelled":
		return statusWarn
	default:
		return statusError
	}
}

func describeResult(result *ipc.SessionResult) string {
	if result == nil {
		return "no session yet"
	}
	stats := result.Stats
	remote := stats.RemoteCreates + stats.RemoteUpdates + stats.RemoteDeletes + stats.RemoteMoves
	local := stats.LocalCreates + stats.LocalUpdates + stats.LocalDeletes
	parts := []string{
		result.State,
		fmt.Sprintf("%d pushed", remote),
		fmt.Sprintf("%d pulled", local),
	}
	if stats.Deferred > 0 {
		parts = append(parts, fmt.Sprintf("%d deferred", stats.Deferred))
	}
	if !result.FinishedAt.IsZero() {
		parts = append(parts, result.FinishedAt.Local().Format(time.DateTime))
	}
	msg := strings.Join(parts, ", ")
	if result.Error != "" {
		msg += " (" + result.Error + ")"
	}
	return msg
}

func resultRows(result *ipc.SessionResult) [][]string {
	s := result.Stats
	row := func(label string, remote, local int) []string {
		return []string{label, fmt.Sprint(remote), fmt.Sprint(local)}
	}
	return [][]string{
		row("Created", s.RemoteCreates, s.LocalCreates),
		row("Updated", s.RemoteUpdates, s.LocalUpdates),
		row("Deleted", s.RemoteDeletes, s.LocalDeletes),
		row("Moved", s.RemoteMoves, 0),
	}
}
