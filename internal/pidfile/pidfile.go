// Package pidfile writes and removes the daemon's PID file (spec §6.5).
// Grounded on the teacher's main.go, which itself follows the pack's
// simplest pidfile idiom (sandia-minimega-minimega's main.go: os.Getpid,
// write decimal PID, remove on shutdown) with an added O_EXCL guard so a
// second instance refuses to start over a live PID file.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Write creates path containing the current process's PID, failing if the
// file already exists (a stale file from an unclean shutdown must be
// removed by the operator, not silently overwritten).
func Write(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("pidfile %s already exists (stale, or another instance is running)", path)
		}
		return fmt.Errorf("create pidfile %s: %w", path, err)
	}
	defer f.Close()
	_, err = f.WriteString(strconv.Itoa(os.Getpid()))
	return err
}

// Remove deletes path, ignoring a not-exist error so a second call (or a
// shutdown after a failed Write) is harmless.
func Remove(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
