package job

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type sinkRecorder struct {
	mu     sync.Mutex
	values []int
	err    error
}

func (s *sinkRecorder) RecordProgress(_ context.Context, _ string, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = append(s.values, percent)
	return s.err
}

func TestMonotonicReporter_DropsRegressions(t *testing.T) {
	sink := &sinkRecorder{}
	r := NewMonotonicReporter("job-1", nil, sink)
	ctx := context.Background()

	for _, v := range []int{0, 33, 33, 20, 67, 150, 100, -5} {
		r.Report(ctx, v)
	}

	assert.Equal(t, []int{0, 33, 67, 100}, sink.values)
	last, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, 100, last)
}

func TestMonotonicReporter_FansOutAndSwallowsSinkErrors(t *testing.T) {
	failing := &sinkRecorder{err: errors.New("redis down")}
	ok := &sinkRecorder{}
	var gotID string
	fn := ProgressSinkFunc(func(_ context.Context, jobID string, _ int) error {
		gotID = jobID
		return nil
	})

	r := NewMonotonicReporter("job-2", nil, failing, ok, fn)
	r.Report(context.Background(), 50)

	assert.Equal(t, []int{50}, failing.values)
	assert.Equal(t, []int{50}, ok.values)
	assert.Equal(t, "job-2", gotID)
}

func TestMonotonicReporter_NoReportsYet(t *testing.T) {
	r := NewMonotonicReporter("job-3", nil)
	_, ok := r.Last()
	assert.False(t, ok)
}
