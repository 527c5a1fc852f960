// Package console handles operator-facing diagnostics. Warnings are
// non-fatal and always go to stderr so they never interleave with the
// event log on stdout.
package console

import (
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
)

// program name prefixed to every diagnostic line
const prog = "toshreplay"

var (
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed, color.Bold)

	// warnings can arrive concurrently from every worker
	mu sync.Mutex
)

// Warnf prints a non-fatal warning to stderr
func Warnf(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	warnColor.Fprintf(os.Stderr, "%s: warning: %s\n", prog, fmt.Sprintf(format, args...))
}

// Errorf prints a fatal error message to stderr; the caller decides
// the exit path
func Errorf(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	errColor.Fprintf(os.Stderr, "%s: %s\n", prog, fmt.Sprintf(format, args...))
}
