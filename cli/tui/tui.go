package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
)

// ViewStatsBarcodes is the per-barcode read count view of "nanoplex stats".
const ViewStatsBarcodes = "stats_barcodes"

// Run starts the interactive view for viewType.
func Run(viewType string, data any) error {
	switch viewType {
	case ViewStatsBarcodes:
		return RunStatsTUI(data)
	default:
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
}

// IsTUISupported reports whether viewType has an interactive view.
func IsTUISupported(viewType string) bool {
	for _, v := range SupportedTUIViews() {
		if v == viewType {
			return true
		}
	}
	return false
}

// SupportedTUIViews lists the view types with an interactive view.
func SupportedTUIViews() []string {
	return []string{ViewStatsBarcodes}
}

type keyMap struct {
	Quit key.Binding
	Sort key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Sort: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "sort by reads"),
	),
}
