package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/John-Robertt/imgsaver/internal/app/run"
	"github.com/John-Robertt/imgsaver/internal/config"
	"github.com/John-Robertt/imgsaver/internal/domain"
	"github.com/John-Robertt/imgsaver/internal/scan"
)

var _ run.Observer = (*console)(nil)

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))  // cyan
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))   // green
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))  // yellow
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))   // red
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240")) // grey
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true)
)

// console 是面向用户的逐行进度输出。
//
// 事件来自多个 goroutine，写入统一经过 mu；每个事件只写一行，避免交错。
type console struct {
	w  io.Writer
	mu sync.Mutex
}

func newConsole(w io.Writer) *console {
	return &console{w: w}
}

func (c *console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, s)
}

func (c *console) OnStart(cfg config.Options) {
	c.println(infoStyle.Render("[*] Searching..."))
	c.println(dimStyle.Render("    directory: " + cfg.Directory))
	c.println(dimStyle.Render("    output:    " + cfg.OutputDir))
}

func (c *console) OnOutputReady(dir string, created bool) {
	if created {
		c.println(infoStyle.Render("[*] Created " + dir))
	}
}

func (c *console) OnFileSkipped(s scan.Skipped) {
	c.println(warnStyle.Render(fmt.Sprintf("[!] %s skipped (%s)", s.RelPath, s.Reason)))
}

func (c *console) OnReplaced(file, url, ref string, reused bool) {
	line := successStyle.Render("[+]") + fmt.Sprintf(" %s Replaced %s with %s", file, url, ref)
	if reused {
		line += dimStyle.Render(" (reused)")
	}
	c.println(line)
}

func (c *console) OnURLFailed(file, url string, err error) {
	c.println(errorStyle.Render(fmt.Sprintf("[-] %s %s: %s", file, url, truncate(errString(err), 160))))
}

func (c *console) OnDone(rr domain.RunReport, dur time.Duration) {
	s := rr.Summary
	c.println(renderSummary([]summaryRow{
		{"files", strconv.Itoa(s.Files)},
		{"skipped", strconv.Itoa(s.Skipped)},
		{"urls", strconv.Itoa(s.URLs)},
		{"images", strconv.Itoa(s.Images)},
		{"replaced", strconv.Itoa(s.Replaced)},
		{"failed", strconv.Itoa(s.Failed)},
		{"elapsed", formatShortDuration(dur)},
	}))
}

type summaryRow struct {
	Label string
	Value string
}

func renderSummary(rows []summaryRow) string {
	labelWidth, valueWidth := 0, 0
	for _, r := range rows {
		labelWidth = max(labelWidth, len(r.Label))
		valueWidth = max(valueWidth, len(r.Value))
	}

	hline := strings.Repeat("-", labelWidth+valueWidth+3)
	lines := make([]string, 0, len(rows)+2)
	lines = append(lines, hline)
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%s | %s",
			labelStyle.Render(padRight(r.Label, labelWidth)),
			valueStyle.Render(padRight(r.Value, valueWidth)),
		))
	}
	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
