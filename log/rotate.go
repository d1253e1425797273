package log

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// rotate makes sure a.fd points at a writable current log file. The active
// file is archived and reopened when it crosses the size limit or the
// configured hour of day. Callers must hold a.mu.
func (a *FileAppender) rotate() error {
	if a.path == "" {
		return errors.New("log path is empty")
	}

	if a.fd != nil {
		fi, err := os.Stat(a.path)
		switch {
		case os.IsNotExist(err):
			// File was removed out from under us, reopen below.
		case err != nil:
			return fmt.Errorf("stat log file: %w", err)
		case a.splitDue(fi.Size(), time.Now()):
			if err := a.archive(time.Now()); err != nil {
				return err
			}
		default:
			return nil
		}
	}

	fd, created, err := openLogFile(a.path)
	if err != nil {
		return err
	}
	a.fd = fd
	a.fdCreated = created
	return nil
}

// splitDue reports whether the active file has outgrown splitMB or crossed
// the splitHour boundary since it was created. A zero limit disables that
// trigger.
func (a *FileAppender) splitDue(size int64, now time.Time) bool {
	if a.splitMB > 0 && size >= int64(a.splitMB)<<20 {
		return true
	}
	if a.splitHour == 0 {
		return false
	}

	if now.Unix()-a.fdCreated.Unix() >= int64(24*time.Hour/time.Second) {
		return true
	}
	if a.fdCreated.Day() == now.Day() {
		return now.Hour() >= a.splitHour && a.fdCreated.Hour() < a.splitHour
	}
	return now.Hour() >= a.splitHour
}

// archive closes the active file and renames it to a timestamped backup.
// Collisions within the same second bump the timestamp, giving up after a
// few tries.
func (a *FileAppender) archive(now time.Time) error {
	if err := a.fd.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	a.fd = nil

	ext := filepath.Ext(a.path)
	base := strings.TrimSuffix(a.path, ext)
	for i := 0; i < 5; i++ {
		ts := now.Add(time.Duration(i) * time.Second)
		backup := fmt.Sprintf("%s%s.%s", base, ext, ts.Format("20060102-150405"))
		switch _, err := os.Stat(backup); {
		case err == nil:
			continue
		case !os.IsNotExist(err):
			return fmt.Errorf("stat backup file: %w", err)
		}
		if err := os.Rename(a.path, backup); err != nil {
			return fmt.Errorf("archive log file: %w", err)
		}
		return nil
	}
	return errors.New("no free backup file name")
}

// openLogFile opens the file for appending, creating parent directories as
// needed, and returns its creation time for the hour-of-day trigger. Go has
// no portable birth time, so the modification time stands in for it.
func openLogFile(path string) (*os.File, time.Time, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, time.Time{}, fmt.Errorf("create log directory: %w", err)
		}
	}

	fd, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("open log file: %w", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		fd.Close()
		return nil, time.Time{}, fmt.Errorf("stat log file: %w", err)
	}
	created := fi.ModTime()
	if created.UnixNano()%int64(time.Second) > int64(time.Second)/2 {
		created = time.Unix(created.Unix()+1, 0)
	}
	return fd, created, nil
}
