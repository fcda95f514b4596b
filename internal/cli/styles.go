package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// styles renders status labels for one output stream.
type styles struct {
	pass   lipgloss.Style
	fail   lipgloss.Style
	header lipgloss.Style
	muted  lipgloss.Style
}

// newStyles builds styles for w. Colors are dropped when noColor is set, when
// NO_COLOR is present in the environment or when w is not a terminal.
func newStyles(w io.Writer, noColor bool) *styles {
	r := lipgloss.NewRenderer(w)
	if _, ok := os.LookupEnv("NO_COLOR"); ok || noColor {
		r.SetColorProfile(termenv.Ascii)
	}
	return &styles{
		pass:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		fail:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		muted:  r.NewStyle().Faint(true),
	}
}
