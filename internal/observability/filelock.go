package observability

import (
	"fmt"
	"os"
	"syscall"
)

// lockFile takes an exclusive advisory lock on f, so appends from several
// medic-conf processes sharing one event log (watch next to evaluate) do
// not interleave. The returned function releases the lock.
func lockFile(f *os.File) (unlock func() error, err error) {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return nil, fmt.Errorf("acquiring event log lock: %w", err)
	}
	return func() error {
		return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}, nil
}
