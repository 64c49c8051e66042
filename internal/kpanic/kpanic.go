// Package kpanic reports the fatal half of spec.md §7's error model:
// invariant violations that indicate corruption or a programming bug. The
// teacher never reaches for a third-party logger — cmd/root.go's own error
// path is a plain fmt.Fprintf(os.Stderr, ...) plus os.Exit(1) — so this package
// stays on the standard library too, using "log" for the message itself since
// Fatal, unlike Execute's one-shot error print, is logging an unrecoverable
// condition rather than returning control to a caller.
package kpanic

import (
	"fmt"
	"log"
	"os"
)

// Exit is called after logging a fatal condition. Tests override it to
// avoid tearing down the test binary.
var Exit = os.Exit

// Fatal logs a formatted message and halts the process, standing in for
// "a fatal failure halts the kernel; no rollback" (spec.md §7).
func Fatal(format string, args ...interface{}) {
	log.Printf("tinyfs: fatal: %s", fmt.Sprintf(format, args...))
	Exit(2)
}
