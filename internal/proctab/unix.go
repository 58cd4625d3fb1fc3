//go:build !windows

package proctab

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// SystemTable inspects the live host via ps and /proc.
type SystemTable struct{}

// NewSystemTable returns the platform process-table backend.
func NewSystemTable() *SystemTable {
	return &SystemTable{}
}

// List enumerates all processes via ps. Rows that fail to parse are skipped.
func (t *SystemTable) List() ([]ProcessInfo, error) {
	out, err := exec.Command("ps", "-eo", "pid,ppid,etime,rss,args").Output()
	if err != nil {
		return nil, fmt.Errorf("running ps: %w", err)
	}

	var procs []ProcessInfo
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	// Skip header line.
	scanner.Scan()

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 {
			continue
		}

		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		ppid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		elapsed, err := ParseElapsed(fields[2])
		if err != nil {
			elapsed = 0
		}
		rssKB, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			rssKB = 0
		}

		procs = append(procs, ProcessInfo{
			PID:      pid,
			PPID:     ppid,
			Command:  strings.Join(fields[4:], " "),
			Elapsed:  elapsed,
			RSSBytes: rssKB * 1024,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning ps output: %w", err)
	}

	return procs, nil
}

// Usage samples CPU and resident memory for one pid. CPU sampling degrades
// to zero when ps cannot report it.
func (t *SystemTable) Usage(pid int) (Usage, error) {
	out, err := exec.Command("ps", "-o", "%cpu=,rss=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return Usage{}, fmt.Errorf("sampling pid %d: %w", pid, err)
	}

	fields := strings.Fields(string(out))
	if len(fields) < 2 {
		return Usage{}, fmt.Errorf("sampling pid %d: unexpected ps output %q", pid, string(out))
	}

	cpu, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		debugf("cpu sample unavailable for pid %d: %v", pid, err)
		cpu = 0
	}
	rssKB, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		rssKB = 0
	}

	return Usage{CPUPercent: cpu, RSSBytes: rssKB * 1024}, nil
}

// WorkingDirectory resolves /proc/<pid>/cwd. Permission failures return ""
// without error: the caller treats an unreadable cwd as unknown.
func (t *SystemTable) WorkingDirectory(pid int) (string, error) {
	wd, err := os.Readlink(fmt.Sprintf("/proc/%d/cwd", pid))
	if err != nil {
		if os.IsPermission(err) || os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("resolve cwd for pid %d: %w", pid, err)
	}
	return wd, nil
}

// Environ reads /proc/<pid>/environ. Returns nil when unreadable.
func (t *SystemTable) Environ(pid int) []string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/environ", pid))
	if err != nil {
		return nil
	}
	var env []string
	for _, entry := range bytes.Split(data, []byte{0}) {
		if len(entry) > 0 {
			env = append(env, string(entry))
		}
	}
	return env
}

// Alive reports whether the pid refers to a live process. Signal 0 performs
// the existence check without delivering anything; EPERM still means alive.
func (t *SystemTable) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// Signal delivers a signal to the pid.
func (t *SystemTable) Signal(pid int, sig syscall.Signal) error {
	return syscall.Kill(pid, sig)
}

var debugEnabled = os.Getenv("DROVER_DEBUG") != ""

func debugf(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf("[proctab] "+format, args...)
	}
}
