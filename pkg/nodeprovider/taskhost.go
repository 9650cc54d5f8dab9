package nodeprovider

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/buildforge/manager/pkg/nodeprotocol"
)

// TaskHostMode selects between the two coexisting task-host lifetimes
// spec.md §4.5 describes.
type TaskHostMode int

const (
	// TaskHostTransient spawns one process per task invocation and exits
	// it after a bounded grace period once idle.
	TaskHostTransient TaskHostMode = iota
	// TaskHostSidecar keeps one process alive across many task
	// invocations, entered when MSBUILDFORCEALLTASKSOUTOFPROC is set
	// together with node reuse (spec.md §4.5).
	TaskHostSidecar
)

// GraceDefault is how long a transient task-host process is kept alive,
// unused, before being torn down (spec.md §4.5).
const GraceDefault = 5 * time.Second

// TaskHost is a single task-execution sub-process, exchanging
// length-prefixed nodeprotocol.Packet frames over stdin/stdout instead of
// the go-plugin net/rpc calls the out-of-process node uses, kept
// deliberately simpler here since task-host invocations are one task at a
// time with no configuration negotiation (spec.md §4.5).
type TaskHost struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	mode    TaskHostMode
	lastUse time.Time
	grace   time.Duration
	dir     string
}

// Dir returns the working directory this host was started in, as decided
// by the startup-directory rule (spec.md §4.5).
func (th *TaskHost) Dir() string { return th.dir }

// TaskHostProvider launches task-host processes on demand.
type TaskHostProvider struct {
	Command func() *exec.Cmd
	Mode    TaskHostMode
	Grace   time.Duration

	// MultiThreaded mirrors the session's multi-threaded task execution
	// setting and governs the startup-directory rule (spec.md §4.5): it
	// is one of the two conditions (alongside a known, non-empty project
	// path) required before a spawned task host's initial working
	// directory is set to the project's own directory rather than
	// inheriting the session's current directory.
	MultiThreaded bool

	mu   sync.Mutex
	idle map[string]*TaskHost // keyed by runtime identity, for sidecar reuse
}

// NewTaskHostProvider builds a provider; Grace defaults to GraceDefault
// when zero.
func NewTaskHostProvider(cmd func() *exec.Cmd, mode TaskHostMode, grace time.Duration, multiThreaded bool) *TaskHostProvider {
	if grace <= 0 {
		grace = GraceDefault
	}
	return &TaskHostProvider{Command: cmd, Mode: mode, Grace: grace, MultiThreaded: multiThreaded, idle: make(map[string]*TaskHost)}
}

// Acquire returns a task host for runtimeKey (e.g. ".NETFramework,Version=v4.0"
// per spec.md §4.5's "one sub-process per distinct task runtime"). In
// sidecar mode an idle host for the same key is reused; in transient mode
// a fresh process is always spawned and torn down after Grace once idle.
// projectFullPath is the invoking task's project file path, used only to
// compute the new host's startup directory (spec.md §4.5): a reused
// sidecar host keeps whatever directory it already started in, since
// startup directory is fixed at process creation.
func (p *TaskHostProvider) Acquire(ctx context.Context, runtimeKey, projectFullPath string) (*TaskHost, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Mode == TaskHostSidecar {
		p.mu.Lock()
		if th, ok := p.idle[runtimeKey]; ok {
			delete(p.idle, runtimeKey)
			p.mu.Unlock()
			return th, nil
		}
		p.mu.Unlock()
	}
	return p.spawn(projectFullPath)
}

// startupDir implements spec.md §4.5's "Startup directory" rule: when
// multi-threaded task execution is enabled and projectFullPath is known
// and non-empty, the task host starts in the project's own directory;
// otherwise it inherits the session's current directory. No environment
// override alters this.
func startupDir(multiThreaded bool, projectFullPath string) string {
	if multiThreaded && projectFullPath != "" {
		return filepath.Dir(projectFullPath)
	}
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}

// Release returns th to the idle pool (sidecar mode) or tears it down
// after Grace (transient mode).
func (p *TaskHostProvider) Release(runtimeKey string, th *TaskHost) {
	th.mu.Lock()
	th.lastUse = nowFunc()
	th.mu.Unlock()

	if p.Mode == TaskHostSidecar {
		p.mu.Lock()
		p.idle[runtimeKey] = th
		p.mu.Unlock()
		return
	}
	go func() {
		time.Sleep(p.Grace)
		_ = th.Close()
	}()
}

var nowFunc = time.Now

func (p *TaskHostProvider) spawn(projectFullPath string) (*TaskHost, error) {
	cmd := p.Command()
	cmd.Dir = startupDir(p.MultiThreaded, projectFullPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("task host stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("task host stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting task host: %w", err)
	}
	return &TaskHost{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  bufio.NewReader(stdout),
		mode:    p.Mode,
		lastUse: nowFunc(),
		grace:   p.Grace,
		dir:     cmd.Dir,
	}, nil
}

// Invoke sends p to the task host and waits for its single response
// packet, length-prefixed on the wire (4-byte big-endian length, then the
// gob-encoded, version-prefixed payload nodeprotocol.Encode produces).
func (th *TaskHost) Invoke(pkt *nodeprotocol.Packet) (*nodeprotocol.Packet, error) {
	th.mu.Lock()
	defer th.mu.Unlock()

	data, err := nodeprotocol.Encode(pkt)
	if err != nil {
		return nil, err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := th.stdin.Write(lenBuf[:]); err != nil {
		return nil, fmt.Errorf("writing task host frame length: %w", err)
	}
	if _, err := th.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("writing task host frame: %w", err)
	}

	if _, err := io.ReadFull(th.stdout, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("reading task host response length: %w", err)
	}
	respLen := binary.BigEndian.Uint32(lenBuf[:])
	respData := make([]byte, respLen)
	if _, err := io.ReadFull(th.stdout, respData); err != nil {
		return nil, fmt.Errorf("reading task host response: %w", err)
	}
	return nodeprotocol.Decode(respData)
}

// Close terminates the underlying process.
func (th *TaskHost) Close() error {
	th.mu.Lock()
	defer th.mu.Unlock()
	_ = th.stdin.Close()
	if th.cmd.Process != nil {
		return th.cmd.Process.Kill()
	}
	return nil
}
