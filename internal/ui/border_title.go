package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	reflowtruncate "github.com/muesli/reflow/truncate"
)

// titledTop renders a panel's top border with the title embedded in it,
// e.g. "╭─ Installation log ───╮". A title too wide for the panel is
// hard-cut; the border line itself must never pick up an ellipsis.
func titledTop(width int, title string, border lipgloss.Border) string {
	edge := border.Top
	inner := width - lipgloss.Width(border.TopLeft) - lipgloss.Width(border.TopRight)
	if inner < 0 {
		return ""
	}

	line := edgeFill(edge, inner)
	if t := strings.TrimSpace(title); t != "" && inner > lipgloss.Width(edge)+2 {
		block := edge + " " + panelTitleStyle.Render(runewidth.Truncate(t, inner-lipgloss.Width(edge)-2, "")) + " "
		if w := lipgloss.Width(block); w <= inner {
			line = block + edgeFill(edge, inner-w)
		} else {
			line = reflowtruncate.StringWithTail(block, uint(inner), "")
		}
	}
	return border.TopLeft + line + border.TopRight
}

func edgeFill(edge string, width int) string {
	if width <= 0 || edge == "" {
		return ""
	}
	cell := lipgloss.Width(edge)
	if cell <= 0 {
		return ""
	}
	return runewidth.Truncate(strings.Repeat(edge, width/cell+1), width, "")
}
