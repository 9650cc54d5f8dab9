package nodeprovider

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trueCmd() *exec.Cmd {
	return exec.Command("cat")
}

func TestSidecarReleaseMakesHostReusable(t *testing.T) {
	p := NewTaskHostProvider(trueCmd, TaskHostSidecar, time.Second, false)

	th, err := p.Acquire(context.Background(), "net8.0", "")
	require.NoError(t, err)
	p.Release("net8.0", th)

	again, err := p.Acquire(context.Background(), "net8.0", "")
	require.NoError(t, err)
	assert.Same(t, th, again)

	require.NoError(t, th.Close())
}

func TestTransientReleaseDoesNotPool(t *testing.T) {
	p := NewTaskHostProvider(trueCmd, TaskHostTransient, 10*time.Millisecond, false)

	th, err := p.Acquire(context.Background(), "net8.0", "")
	require.NoError(t, err)
	p.Release("net8.0", th)

	p.mu.Lock()
	_, pooled := p.idle["net8.0"]
	p.mu.Unlock()
	assert.False(t, pooled)

	time.Sleep(30 * time.Millisecond)
}

// TestStartupDirUsesProjectDirWhenMultiThreaded reproduces spec.md §4.5's
// startup-directory rule: with multi-threaded task execution enabled and
// a known, non-empty project path, the host starts in the project's own
// directory.
func TestStartupDirUsesProjectDirWhenMultiThreaded(t *testing.T) {
	p := NewTaskHostProvider(trueCmd, TaskHostTransient, 10*time.Millisecond, true)

	projDir := t.TempDir()
	th, err := p.Acquire(context.Background(), "net8.0", filepath.Join(projDir, "app.csproj"))
	require.NoError(t, err)
	defer th.Close()

	assert.Equal(t, projDir, th.Dir())
}

// TestStartupDirInheritsSessionCwdWhenNotMultiThreaded reproduces the
// fallback half of spec.md §4.5's rule: without multi-threaded task
// execution, the host inherits the session's current directory even when
// a project path is known.
func TestStartupDirInheritsSessionCwdWhenNotMultiThreaded(t *testing.T) {
	p := NewTaskHostProvider(trueCmd, TaskHostTransient, 10*time.Millisecond, false)

	th, err := p.Acquire(context.Background(), "net8.0", "/src/myproj/app.csproj")
	require.NoError(t, err)
	defer th.Close()

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, th.Dir())
}

// TestStartupDirInheritsSessionCwdWhenProjectPathUnknown covers the other
// half of the "known and non-empty" condition: multi-threaded execution
// alone is not enough without a project path.
func TestStartupDirInheritsSessionCwdWhenProjectPathUnknown(t *testing.T) {
	p := NewTaskHostProvider(trueCmd, TaskHostTransient, 10*time.Millisecond, true)

	th, err := p.Acquire(context.Background(), "net8.0", "")
	require.NoError(t, err)
	defer th.Close()

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, th.Dir())
}
