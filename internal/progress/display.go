package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

const spinnerDelay = 100 * time.Millisecond

// Display is a spinner with a status suffix. On anything but a terminal it
// prints nothing, so piped output and CI logs stay clean.
type Display struct {
	mu      sync.Mutex
	w       io.Writer
	caps    TerminalCapabilities
	symbols ProgressSymbols
	spin    *spinner.Spinner
	message string
}

// NewDisplay creates a display writing to w.
func NewDisplay(w io.Writer, caps TerminalCapabilities) *Display {
	symbols := SelectSymbols(caps)
	s := spinner.New(spinner.CharSets[symbols.SpinnerSet], spinnerDelay, spinner.WithWriter(w))
	return &Display{w: w, caps: caps, symbols: symbols, spin: s}
}

// Start shows message with a spinning indicator.
func (d *Display) Start(message string) {
	if !d.caps.IsTTY {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.message = message
	d.setSuffix(" " + message)
	d.spin.Start()
}

// SetMessage replaces the text next to the spinner.
func (d *Display) SetMessage(message string) {
	if !d.caps.IsTTY {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.message = message
	d.setSuffix(" " + message)
}

// Update reports batch progress for a stage: "fetching change-requests (3/8)".
func (d *Display) Update(stage string, done, total int) {
	if !d.caps.IsTTY {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setSuffix(fmt.Sprintf(" %s: %s (%d/%d)", d.message, stage, done, total))
}

// Stop clears the spinner and prints a final status line.
func (d *Display) Stop(success bool, message string) {
	if !d.caps.IsTTY {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.spin.Stop()

	symbol := d.symbols.Checkmark
	paint := color.New(color.FgGreen)
	if !success {
		symbol = d.symbols.Failure
		paint = color.New(color.FgRed)
	}
	if d.caps.SupportsColor {
		symbol = paint.Sprint(symbol)
	}
	fmt.Fprintf(d.w, "%s %s\n", symbol, message)
}

func (d *Display) setSuffix(s string) {
	d.spin.Lock()
	d.spin.Suffix = s
	d.spin.Unlock()
}
