// SPDX-License-Identifier: MIT

package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is the instance lock inside the data directory.
const LockFileName = "sportsdvr.lock"

// acquireLock takes the exclusive instance lock of dataDir. A second daemon on
// the same directory gets ErrAlreadyRunning.
func acquireLock(dataDir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	fl := flock.New(filepath.Join(dataDir, LockFileName))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock data dir: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, dataDir)
	}
	return fl, nil
}
