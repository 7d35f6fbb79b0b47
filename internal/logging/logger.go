// Package logging wraps charmbracelet/log behind printf-style helpers.
package logging

import (
	"fmt"
	"io"
	"os"

	clog "github.com/charmbracelet/log"
)

// L is the package-level logger. Tests swap it for a buffer-backed one.
var L = clog.NewWithOptions(os.Stderr, clog.Options{Prefix: "bunqday"})

// Configure points the logger at w and enables debug output when verbose.
func Configure(w io.Writer, verbose bool) {
	L = clog.NewWithOptions(w, clog.Options{
		Prefix:          "bunqday",
		ReportTimestamp: true,
	})
	if verbose {
		L.SetLevel(clog.DebugLevel)
	}
}

// Debugf logs a debug-level formatted message.
func Debugf(format string, v ...any) {
	L.Debug(fmt.Sprintf(format, v...))
}

// Infof logs an info-level formatted message.
func Infof(format string, v ...any) {
	L.Info(fmt.Sprintf(format, v...))
}

// Warnf logs a warning-level formatted message.
func Warnf(format string, v ...any) {
	L.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs an error-level formatted message.
func Errorf(format string, v ...any) {
	L.Error(fmt.Sprintf(format, v...))
}
