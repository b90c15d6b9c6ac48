package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning is returned by Acquire when another live process owns the PID file.
var ErrAlreadyRunning = errors.New("already running")

// ErrNotRunning is returned by Stop when no live process owns the PID file.
var ErrNotRunning = errors.New("not running")

// PIDFile tracks the process serving the API in the background.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write writes the current process's PID to the file.
func (p *PIDFile) Write() error {
	return p.WritePID(os.Getpid())
}

// WritePID writes the given PID to the file.
func (p *PIDFile) WritePID(pid int) error {
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}

// Acquire claims the PID file for the current process. A file naming the
// current process (written by the parent of a background server) is accepted;
// a file naming any other live process is not. Stale files are overwritten.
func (p *PIDFile) Acquire() error {
	if pid, running := p.IsRunning(); running && pid != os.Getpid() {
		return fmt.Errorf("pid %d: %w", pid, ErrAlreadyRunning)
	}
	return p.Write()
}

// Release removes the PID file if it still names the current process.
func (p *PIDFile) Release() {
	if pid, err := p.Read(); err == nil && pid == os.Getpid() {
		_ = p.Remove()
	}
}

// Stop sends term to the recorded process and waits up to grace for it to
// exit, then sends kill. The PID file is removed once the process is gone.
func (p *PIDFile) Stop(term, kill syscall.Signal, grace time.Duration) (int, error) {
	pid, running := p.IsRunning()
	if !running {
		if pid != 0 {
			_ = p.Remove()
		}
		return pid, ErrNotRunning
	}

	if err := p.Signal(term); err != nil {
		return pid, fmt.Errorf("signal %d: %w", pid, err)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if _, alive := p.IsRunning(); !alive {
			_ = p.Remove()
			return pid, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := p.Signal(kill); err != nil {
		return pid, fmt.Errorf("kill %d: %w", pid, err)
	}
	_ = p.Remove()
	return pid, nil
}
