// Package daemon manages the serve process lifecycle: the PID file and
// the cross-process lock that keeps a project to a single server.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
)

// ErrPIDFileNotFound is returned when the PID file doesn't exist.
var ErrPIDFileNotFound = errors.New("PID file not found")

// ErrAlreadyRunning is returned when another server holds the lock.
var ErrAlreadyRunning = errors.New("another server instance is already running")

// PIDFile manages a server process ID file with an exclusive
// cross-process lock. Works on all platforms via gofrs/flock.
type PIDFile struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewPIDFile creates a PIDFile manager for the given path.
// The lock file lives next to the PID file.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{
		path:  path,
		flock: flock.New(path + ".lock"),
	}
}

// Path returns the PID file path.
func (p *PIDFile) Path() string {
	return p.path
}

// Acquire takes the exclusive lock and writes the current process's
// PID. Returns ErrAlreadyRunning when another process holds the lock.
func (p *PIDFile) Acquire() error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}

	acquired, err := p.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire server lock: %w", err)
	}
	if !acquired {
		return ErrAlreadyRunning
	}
	p.locked = true

	pid := os.Getpid()
	if err := os.WriteFile(p.path, []byte(strconv.Itoa(pid)), 0644); err != nil {
		p.locked = false
		_ = p.flock.Unlock()
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	return nil
}

// Release removes the PID file and drops the lock.
// Safe to call when nothing was acquired.
func (p *PIDFile) Release() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}

	if !p.locked {
		return nil
	}
	p.locked = false
	if err := p.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release server lock: %w", err)
	}
	return nil
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrPIDFileNotFound
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}

	return pid, nil
}

// IsRunning reports whether a process with the stored PID is running.
// Returns false if the PID file doesn't exist.
func (p *PIDFile) IsRunning() bool {
	pid, err := p.Read()
	if err != nil {
		return false
	}
	return processExists(pid)
}

// Signal sends a signal to the process with the stored PID.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	pid, err := p.Read()
	if err != nil {
		return fmt.Errorf("failed to read PID: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	if err := process.Signal(sig); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}

	return nil
}

// processExists checks if a process with the given PID exists.
// On Unix FindProcess always succeeds, so signal 0 probes for real.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
