package nodeprovider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/manager/pkg/model"
	"github.com/buildforge/manager/pkg/nodeexec"
	"github.com/buildforge/manager/pkg/nodeprotocol"
)

// TestZeroConnectionTimeoutFailsInternalError reproduces spec.md §8's
// boundary behavior for MSBUILDNODECONNECTIONTIMEOUT=0: the provider must
// never hang, and a timeout of zero is treated as "no wait", failing
// deterministically with an InternalError rather than racing a real
// connection attempt.
func TestZeroConnectionTimeoutFailsInternalError(t *testing.T) {
	p := NewOutOfProcProvider(trueCmd, nil)
	_, err := p.Spawn(context.Background(), 0)
	assert.Error(t, err)
	assert.Equal(t, model.KindInternalError, model.KindOf(err))
}

// TestInProcNodeIgnoresForwardingAllowlist reproduces spec.md §4.4's
// InProc side of the property-forwarding contract: every initial
// property is reported on ProjectStarted, unfiltered, regardless of any
// allowlist an embedder might otherwise apply to out-of-process nodes.
func TestInProcNodeIgnoresForwardingAllowlist(t *testing.T) {
	p := NewInProcProvider([]nodeexec.TargetExecutor{&explodingExecutor{name: "Build"}}, nil)
	n := p.Spawn(context.Background(), noopCoop{})
	defer n.Shutdown(context.Background())

	req := &model.Request{
		ConfigID:    3,
		Targets:     []string{"Build"},
		NodeRequest: 11,
		AlreadyFailedTargets: []string{"Build"},
		InitialProperties: map[string]string{
			"Configuration": "Release",
			"Secret":        "visible-to-inproc",
		},
	}
	require.NoError(t, n.Transport().Send(nodeprotocol.RequestPacket(n.ID(), req)))

	select {
	case pkt := <-n.Transport().Inbound():
		require.Equal(t, nodeprotocol.PacketLogMessage, pkt.Type)
		require.Equal(t, nodeprotocol.ProjectStartedEventType, pkt.LogMessage.CustomEventType)
		ev, err := nodeprotocol.DecodeProjectStarted(pkt.LogMessage)
		require.NoError(t, err)
		assert.Equal(t, req.InitialProperties, ev.Properties)
	case <-time.After(time.Second):
		t.Fatal("InProc node never emitted a ProjectStarted event")
	}
}
