package nodeprovider

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/manager/pkg/model"
	"github.com/buildforge/manager/pkg/nodeexec"
	"github.com/buildforge/manager/pkg/nodeprotocol"
)

type noopCoop struct{}

func (noopCoop) Yield(ctx context.Context) error                       { return nil }
func (noopCoop) RequestCores(ctx context.Context, n int) (int, error)  { return n, nil }
func (noopCoop) ReleaseCores(k int) error                              { return nil }

type explodingExecutor struct{ name string }

func (e *explodingExecutor) Name() string        { return e.name }
func (e *explodingExecutor) DependsOn() []string { return nil }
func (e *explodingExecutor) Execute(ctx context.Context, cfg *model.Configuration, coop nodeexec.Cooperation) ([]string, error) {
	return nil, fmt.Errorf("%s: should never run", e.name)
}

// TestRemoteExecutorSkipsAlreadyFailedTargets reproduces skip-unsuccessful
// replay (spec.md §4.2/§8 scenario 4) on the out-of-process path: a target
// the scheduler already stamped onto the request as failed is reported as
// a skipped failure rather than re-executed, with no scheduler reachable
// from this process.
func TestRemoteExecutorSkipsAlreadyFailedTargets(t *testing.T) {
	exec := NewRemoteExecutor([]nodeexec.TargetExecutor{&explodingExecutor{name: "Build"}}, noopCoop{}, nil, false)

	req := &model.Request{
		ConfigID:             1,
		Targets:              []string{"Build"},
		NodeRequest:          7,
		AlreadyFailedTargets: []string{"Build"},
	}
	require.NoError(t, exec.Deliver(nodeprotocol.RequestPacket(1, req)))

	started, err := exec.Drain()
	require.NoError(t, err)
	require.NotNil(t, started)
	assert.Equal(t, nodeprotocol.PacketLogMessage, started.Type)
	assert.Equal(t, nodeprotocol.ProjectStartedEventType, started.LogMessage.CustomEventType)

	pkt, err := exec.Drain()
	require.NoError(t, err)
	require.NotNil(t, pkt)
	assert.Equal(t, nodeprotocol.PacketResult, pkt.Type)
	require.NotNil(t, pkt.Result)
	assert.Equal(t, model.ResultFailure, pkt.Result.OverallResult)
	require.Contains(t, pkt.Result.Targets, "Build")
	assert.Equal(t, model.ResultSkipped, pkt.Result.Targets["Build"].Code)
	assert.True(t, pkt.Result.Targets["Build"].SkippedFailure)
}

func TestRemoteExecutorDrainEmptyReturnsNil(t *testing.T) {
	exec := NewRemoteExecutor(nil, noopCoop{}, nil, false)
	pkt, err := exec.Drain()
	require.NoError(t, err)
	assert.Nil(t, pkt)
}

// TestRemoteExecutorAppliesForwardingAllowlist reproduces spec.md §4.4's
// property-forwarding allowlist on the out-of-process path: only the
// allowlisted property survives onto the ProjectStarted event even though
// the request carries more.
func TestRemoteExecutorAppliesForwardingAllowlist(t *testing.T) {
	exec := NewRemoteExecutor(
		[]nodeexec.TargetExecutor{&explodingExecutor{name: "Build"}},
		noopCoop{},
		[]string{"Configuration"},
		false,
	)

	req := &model.Request{
		ConfigID:    2,
		Targets:     []string{"Build"},
		NodeRequest: 9,
		AlreadyFailedTargets: []string{"Build"},
		InitialProperties: map[string]string{
			"Configuration": "Release",
			"Secret":        "should-not-forward",
		},
	}
	require.NoError(t, exec.Deliver(nodeprotocol.RequestPacket(2, req)))

	started, err := exec.Drain()
	require.NoError(t, err)
	require.NotNil(t, started)

	ev, err := nodeprotocol.DecodeProjectStarted(started.LogMessage)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Configuration": "Release"}, ev.Properties)
}
