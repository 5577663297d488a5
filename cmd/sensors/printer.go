package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	nameStyle  = lipgloss.NewStyle().Bold(true).Width(20)
	timeStyle  = lipgloss.NewStyle().Faint(true)
	oldStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	newStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	firstStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
)

// printer writes change notifications of all watchers, one per line.
type printer struct {
	mx sync.Mutex
	w  io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

func (p *printer) change(sensor, old, current string, at time.Time) {
	p.mx.Lock()
	defer p.mx.Unlock()
	line := nameStyle.Render(sensor)
	if old == "" {
		line += firstStyle.Render(current)
	} else {
		line += oldStyle.Render(old) + " → " + newStyle.Render(current)
	}
	_, _ = fmt.Fprintf(p.w, "%s %s\n", timeStyle.Render(at.Format(time.TimeOnly)), line)
}
