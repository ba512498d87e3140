// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package datacache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// fileLock is an exclusive flock(2) held on an open lock file. The
// lock belongs to the open file description, so two Cache values in
// one process exclude each other the same way two processes do.
type fileLock struct {
	file *os.File
}

// acquireLock takes an exclusive lock on path, creating the file if
// needed. A held lock is polled with LOCK_NB on the cache's clock until
// it is granted or ctx is done.
func (c *Cache) acquireLock(ctx context.Context, path string) (*fileLock, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	acquired, err := tryLock(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	if acquired {
		return &fileLock{file: file}, nil
	}

	c.logger.Info("waiting for cache lock held by another populate", slog.String("lock", path))
	started := c.clock.Now()
	ticker := c.clock.NewTicker(c.lockPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			file.Close()
			return nil, ctx.Err()
		case <-ticker.C:
		}
		acquired, err := tryLock(file)
		if err != nil {
			file.Close()
			return nil, err
		}
		if acquired {
			c.logger.Info("acquired cache lock",
				slog.String("lock", path),
				slog.Duration("waited", c.clock.Now().Sub(started)))
			return &fileLock{file: file}, nil
		}
	}
}

func tryLock(file *os.File) (bool, error) {
	for {
		err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EWOULDBLOCK):
			return false, nil
		default:
			return false, fmt.Errorf("locking %s: %w", file.Name(), err)
		}
	}
}

// release drops the lock and closes the file. The lock file itself is
// left in place; removing it would race with a waiter that has it
// open.
func (l *fileLock) release() error {
	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	if unlockErr != nil {
		return fmt.Errorf("unlocking %s: %w", l.file.Name(), unlockErr)
	}
	return closeErr
}
