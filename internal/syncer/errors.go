package syncer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotRepository is returned when the base directory is not inside a git
// work tree.
var ErrNotRepository = errors.New("not a git repository")

// SyncFailure reports a failed step of the sync cycle together with the
// diagnostic output captured from the command.
type SyncFailure struct {
	Op     string // status, add, commit, fetch, merge, push
	Args   []string
	Output string
	Err    error
}

func (f *SyncFailure) Error() string {
	msg := fmt.Sprintf("sync: %s failed: %v", f.Op, f.Err)
	if out := strings.TrimSpace(f.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (f *SyncFailure) Unwrap() error { return f.Err }

// AsFailure extracts a *SyncFailure from err.
func AsFailure(err error) (*SyncFailure, bool) {
	var f *SyncFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
