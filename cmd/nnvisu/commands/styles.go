// Package commands provides CLI command implementations.
package commands

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/nnvisu/nnvisu-go/pkg/nnvisu"
)

var (
	brand  = lipgloss.Color("63")
	subtle = lipgloss.Color("244")
)

// Styles holds the terminal styles shared by all commands.
var Styles = struct {
	Title lipgloss.Style
	Key   lipgloss.Style
	Value lipgloss.Style
	Dim   lipgloss.Style
	OK    lipgloss.Style
	Warn  lipgloss.Style
	Error lipgloss.Style
}{
	Title: lipgloss.NewStyle().Bold(true).Foreground(brand),
	Key:   lipgloss.NewStyle().Foreground(subtle).Width(14),
	Value: lipgloss.NewStyle().Bold(true),
	Dim:   lipgloss.NewStyle().Foreground(subtle),
	OK:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	Warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
	Error: lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
}

// KeyValue renders an aligned "key value" line.
func KeyValue(key, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, Styles.Key.Render(key), Styles.Value.Render(value))
}

// StatusLine renders a status with a color matching its state.
func StatusLine(status nnvisu.Status) string {
	style := Styles.Dim
	switch status.Text {
	case nnvisu.StatusConnected, nnvisu.StatusTraining:
		style = Styles.OK
	case nnvisu.StatusModelReset, nnvisu.StatusIdle:
		style = Styles.Warn
	case nnvisu.StatusError:
		style = Styles.Error
	}
	return style.Render(status.String())
}

// PrintStatusChanges prints every status change until ctx is done.
func PrintStatusChanges(ctx context.Context, client *nnvisu.Client) {
	events := client.Subscribe(nnvisu.EventStatusChanged)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			text, _ := event.Payload["status"].(string)
			detail, _ := event.Payload["detail"].(string)
			line := StatusLine(nnvisu.Status{Text: nnvisu.StatusText(text), Detail: detail})
			if nnvisu.StatusText(text) == nnvisu.StatusDisconnected {
				if n := client.ConnectionAttempts(); n > 0 {
					line += Styles.Dim.Render(fmt.Sprintf("  (attempt %d)", n))
				}
			}
			fmt.Println(line)
		}
	}
}
