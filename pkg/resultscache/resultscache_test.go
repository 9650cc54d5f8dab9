package resultscache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/manager/pkg/model"
)

func newResult(id model.ConfigID, target string, code model.ResultCode) *model.Result {
	r := model.NewResult(id, 0)
	r.AddTargetResult(&model.TargetResult{Name: target, Code: code})
	return r
}

func TestAdd_MergesByTarget(t *testing.T) {
	cache := New(nil)
	cache.Add(newResult(1, "Build", model.ResultSuccess))
	cache.Add(newResult(1, "Clean", model.ResultSuccess))

	r, ok := cache.Get(1)
	require.True(t, ok)
	assert.True(t, r.HasResultsForTarget("Build"))
	assert.True(t, r.HasResultsForTarget("Clean"))
}

func TestAdd_LaterFailureFlipsOverallResult(t *testing.T) {
	cache := New(nil)
	cache.Add(newResult(1, "Build", model.ResultSuccess))
	cache.Add(newResult(1, "Test", model.ResultFailure))

	r, ok := cache.Get(1)
	require.True(t, ok)
	assert.Equal(t, model.ResultFailure, r.OverallResult)
}

type fakeOverride struct {
	results map[model.ConfigID]*model.Result
}

func (f *fakeOverride) Get(id model.ConfigID) (*model.Result, bool) {
	r, ok := f.results[id]
	return r, ok
}

func (f *fakeOverride) Has(id model.ConfigID) bool {
	_, ok := f.results[id]
	return ok
}

func TestGet_OverrideCacheShadowsSessionCache(t *testing.T) {
	override := &fakeOverride{results: map[model.ConfigID]*model.Result{
		2: newResult(2, "Build", model.ResultSuccess),
	}}
	cache := New(override)

	r, ok := cache.Get(2)
	require.True(t, ok)
	assert.True(t, r.HasResultsForTarget("Build"))
}

func TestAdd_DropsWritesForOverrideKnownConfig(t *testing.T) {
	override := &fakeOverride{results: map[model.ConfigID]*model.Result{
		3: newResult(3, "Build", model.ResultSuccess),
	}}
	cache := New(override)

	cache.Add(newResult(3, "Other", model.ResultSuccess))
	assert.Equal(t, 0, cache.Len())
}

func TestIsComplete(t *testing.T) {
	cache := New(nil)
	cache.Add(newResult(4, "Build", model.ResultSuccess))

	_, complete := cache.IsComplete(4, []string{"Build"})
	assert.True(t, complete)

	_, complete = cache.IsComplete(4, []string{"Build", "Test"})
	assert.False(t, complete)
}

func TestHasFailedTarget(t *testing.T) {
	cache := New(nil)
	cache.Add(newResult(5, "Build", model.ResultFailure))

	assert.True(t, cache.HasFailedTarget(5, "Build"))
	assert.False(t, cache.HasFailedTarget(5, "Clean"))
}

func TestReset(t *testing.T) {
	cache := New(nil)
	cache.Add(newResult(6, "Build", model.ResultSuccess))
	require.Equal(t, 1, cache.Len())

	cache.Reset()
	assert.Equal(t, 0, cache.Len())
}

func TestSerializeForSubmission_RestrictsToTopLevelTargets(t *testing.T) {
	r := model.NewResult(7, 0)
	r.AddTargetResult(&model.TargetResult{Name: "Build", Code: model.ResultSuccess})
	r.AddTargetResult(&model.TargetResult{Name: "_InternalHelper", Code: model.ResultSuccess})

	data, err := SerializeForSubmission(r, []string{"Build"})
	require.NoError(t, err)

	decoded, err := DeserializeResult(data)
	require.NoError(t, err)
	assert.True(t, decoded.HasResultsForTarget("Build"))
	assert.False(t, decoded.HasResultsForTarget("_InternalHelper"))
	assert.Equal(t, model.ConfigID(7), decoded.ConfigID)
}

func TestDeserializeResult_RejectsUnknownVersion(t *testing.T) {
	_, err := DeserializeResult([]byte{0xFF, 0x00})
	assert.Error(t, err)
}

func TestDeserializeResult_RejectsEmptyPayload(t *testing.T) {
	_, err := DeserializeResult(nil)
	assert.Error(t, err)
}

// TestSerializeForSubmission_SurvivesBufferPoolReuse guards against the
// pooled encode buffer (memory.GetBuffer/PutBuffer) aliasing back into the
// returned payload: a later SerializeForSubmission call reusing the same
// pooled slice must not corrupt bytes an earlier caller is still holding.
func TestSerializeForSubmission_SurvivesBufferPoolReuse(t *testing.T) {
	first := model.NewResult(8, 0)
	first.AddTargetResult(&model.TargetResult{Name: "Build", Code: model.ResultSuccess})
	firstData, err := SerializeForSubmission(first, []string{"Build"})
	require.NoError(t, err)
	firstCopy := append([]byte(nil), firstData...)

	for i := 0; i < 8; i++ {
		other := model.NewResult(model.ConfigID(100+i), 0)
		other.AddTargetResult(&model.TargetResult{Name: "Clean", Code: model.ResultSuccess})
		_, err := SerializeForSubmission(other, []string{"Clean"})
		require.NoError(t, err)
	}

	assert.Equal(t, firstCopy, firstData)
	decoded, err := DeserializeResult(firstData)
	require.NoError(t, err)
	assert.Equal(t, model.ConfigID(8), decoded.ConfigID)
}
