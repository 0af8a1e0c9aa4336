package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// statusColor maps a job or clip status to its display color.
func statusColor(status string) string {
	switch status {
	case "completed", "verified":
		return ansiGreen
	case "failed":
		return ansiRed
	case "pending":
		return ansiBlue
	default:
		return ansiYellow
	}
}

func paintStatus(status string, colorize bool) string {
	if !colorize {
		return status
	}
	return statusColor(status) + status + ansiReset
}

func formatPercent(percent float64) string {
	return fmt.Sprintf("%.0f%%", percent)
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
