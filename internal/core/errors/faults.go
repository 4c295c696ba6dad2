package errors

import (
	"fmt"
	"log/slog"
)

// NewIssueURL is where internal faults should be reported.
const NewIssueURL = "https://github.com/awslabs/cargo-check-external-types/issues/new"

// Faults reports internal invariant violations. Bug logs and lets the run
// continue with degraded output; BugAbort logs and returns an error that
// must stop the run.
type Faults struct {
	logger *slog.Logger
	count  int
}

func NewFaults(logger *slog.Logger) *Faults {
	if logger == nil {
		logger = slog.Default()
	}
	return &Faults{logger: logger}
}

func (f *Faults) Bug(msg string, args ...any) {
	f.count++
	f.logger.Error("BUG: "+msg, append(args, "hint", "This is a bug. Please report it with a piece of Rust code that triggers it at: "+NewIssueURL)...)
}

func (f *Faults) BugAbort(msg string, args ...any) error {
	f.Bug(msg, args...)
	return New(CodeInternal, fmt.Sprintf("%s: execution cannot continue", msg))
}

// Count returns how many faults were reported.
func (f *Faults) Count() int {
	return f.count
}
