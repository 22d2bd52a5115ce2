package setup

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/oldphotos/api/internal/config"
	"github.com/oldphotos/api/internal/model"
)

// Probe answers environment questions from the artifacts the bootstrap
// script leaves under the AI directory: the virtualenv it installs, its
// pid file while it runs, its log, and an error marker when it failed.
// The server never writes any of these, it only reads.
type Probe struct {
	ai config.AIConfig
}

func NewProbe(ai config.AIConfig) *Probe {
	return &Probe{ai: ai}
}

// Ready reports whether worker scripts can run: the interpreter exists.
func (p *Probe) Ready() bool {
	_, err := os.Stat(p.ai.PythonPath())
	return err == nil
}

// Status assembles the environment snapshot served by the status endpoint.
func (p *Probe) Status() *model.EnvStatus {
	return &model.EnvStatus{
		AIReady:      p.Ready(),
		Device:       p.device(),
		SetupRunning: p.setupRunning(),
		SetupStatus:  lastLine(filepath.Join(p.ai.Dir, "setup.log")),
		SetupError:   readTrimmed(filepath.Join(p.ai.Dir, "setup.error")),
	}
}

func (p *Probe) device() string {
	if d := readTrimmed(filepath.Join(p.ai.Dir, "device")); d != "" {
		return d
	}
	return "cpu"
}

// setupRunning checks the pid file against a live process; a stale file
// left by a crashed bootstrap must not read as "running".
func (p *Probe) setupRunning() bool {
	raw := readTrimmed(filepath.Join(p.ai.Dir, "setup.pid"))
	if raw == "" {
		return false
	}
	pid, err := strconv.Atoi(raw)
	if err != nil || pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes existence without touching the process.
	return proc.Signal(syscall.Signal(0)) == nil
}

func readTrimmed(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func lastLine(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	lines := strings.Split(string(b), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
