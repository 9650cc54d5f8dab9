package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/manager/pkg/model"
	"github.com/buildforge/manager/pkg/resultscache"
)

func TestSubmitCreatesInProcNodeWhenNoneExist(t *testing.T) {
	s := New(4, resultscache.New(nil))
	req := &model.Request{ConfigID: 1, Targets: []string{"Build"}, NodeRequest: 1}

	resp, err := s.Submit(req, model.AffinityInProc, false, false, false)
	require.NoError(t, err)
	require.Len(t, resp, 1)
	assert.Equal(t, model.CreateNode, resp[0].Kind)
	assert.Equal(t, model.AffinityInProc, resp[0].NodeAffinity)
}

func TestSubmitSchedulesOntoIdleNode(t *testing.T) {
	s := New(4, resultscache.New(nil))
	s.ReportNodesCreated([]int32{1}, model.AffinityOutOfProc)

	req := &model.Request{ConfigID: 1, Targets: []string{"Build"}, NodeRequest: 1}
	resp, err := s.Submit(req, model.AffinityOutOfProc, false, false, false)
	require.NoError(t, err)
	require.Len(t, resp, 1)
	assert.Equal(t, model.ScheduleWithConfiguration, resp[0].Kind)
	assert.EqualValues(t, 1, resp[0].NodeID)
}

func TestSubmitResultCacheFastPath(t *testing.T) {
	cache := resultscache.New(nil)
	result := model.NewResult(1, 0)
	result.AddTargetResult(&model.TargetResult{Name: "Build", Code: model.ResultSuccess})
	cache.Add(result)

	s := New(4, cache)
	req := &model.Request{ConfigID: 1, Targets: []string{"Build"}, NodeRequest: 1}
	resp, err := s.Submit(req, model.AffinityAny, false, false, false)
	require.NoError(t, err)
	require.Len(t, resp, 2)
	assert.Equal(t, model.ReportResults, resp[0].Kind)
	assert.Equal(t, model.ResumeExecution, resp[1].Kind)
}

func TestSubmitCollapsesIdenticalRequests(t *testing.T) {
	s := New(4, resultscache.New(nil))
	s.ReportNodesCreated([]int32{1}, model.AffinityOutOfProc)

	leader := &model.Request{ConfigID: 1, Targets: []string{"Build"}, NodeRequest: 1}
	follower := &model.Request{ConfigID: 1, Targets: []string{"Build"}, NodeRequest: 2}

	_, err := s.Submit(leader, model.AffinityOutOfProc, false, false, false)
	require.NoError(t, err)

	resp, err := s.Submit(follower, model.AffinityOutOfProc, false, false, false)
	require.NoError(t, err)
	assert.Empty(t, resp)
	assert.Equal(t, 1, s.GetMetrics().Collapsed)
}

func TestReportResultCompletesFollowers(t *testing.T) {
	s := New(4, resultscache.New(nil))
	s.ReportNodesCreated([]int32{1}, model.AffinityOutOfProc)

	leader := &model.Request{ConfigID: 1, Targets: []string{"Build"}, NodeRequest: 1}
	follower := &model.Request{ConfigID: 1, Targets: []string{"Build"}, NodeRequest: 2}
	_, err := s.Submit(leader, model.AffinityOutOfProc, false, false, false)
	require.NoError(t, err)
	_, err = s.Submit(follower, model.AffinityOutOfProc, false, false, false)
	require.NoError(t, err)

	result := model.NewResult(1, 1)
	result.AddTargetResult(&model.TargetResult{Name: "Build", Code: model.ResultSuccess})

	resp := s.ReportResult(1, result)
	require.Len(t, resp, 4)
	assert.Equal(t, model.ReportResults, resp[0].Kind)
	assert.EqualValues(t, 1, resp[0].ParentRequest)
	assert.Equal(t, model.ReportResults, resp[2].Kind)
	assert.EqualValues(t, 2, resp[2].ParentRequest)
}

func TestDispatchErrorsAtMaxNodeCount(t *testing.T) {
	s := New(1, resultscache.New(nil))
	s.ReportNodesCreated([]int32{1}, model.AffinityOutOfProc)
	s.nodes[1].Busy = true

	req := &model.Request{ConfigID: 2, Targets: []string{"Build"}, NodeRequest: 2}
	_, err := s.Submit(req, model.AffinityOutOfProc, false, false, false)
	assert.Error(t, err)
}

func TestReportBlockerDetectsCycle(t *testing.T) {
	s := New(4, resultscache.New(nil))
	err := s.ReportBlocker(&model.Blocker{BlockedRequest: 1, BlockingRequest: 2, BlockingTarget: "A"})
	require.NoError(t, err)
	err = s.ReportBlocker(&model.Blocker{BlockedRequest: 2, BlockingRequest: 1, BlockingTarget: "B"})
	assert.Error(t, err)
}

func TestDiagnoseReportsPendingWithoutNode(t *testing.T) {
	s := New(4, resultscache.New(nil))
	req := &model.Request{ConfigID: 1, Targets: []string{"Build"}, NodeRequest: 1}
	_, err := s.Submit(req, model.AffinityOutOfProc, false, false, false)
	require.NoError(t, err)

	d := s.Diagnose()
	assert.Equal(t, 1, d.PendingWithoutNode)
}
