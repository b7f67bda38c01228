package alertcheck

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/upswyng/alert-worker/internal/domain/model"
)

// memStore is an in-memory Store that keeps insertion order and stores copies,
// so only successful saves are visible to later reads.
type memStore struct {
	mu     sync.Mutex
	order  []string
	alerts map[string]model.Alert
	failOn map[string]error
	saves  []string
}

func newMemStore(alerts ...model.Alert) *memStore {
	s := &memStore{alerts: map[string]model.Alert{}, failOn: map[string]error{}}
	for _, a := range alerts {
		s.order = append(s.order, a.ID)
		s.alerts[a.ID] = a
	}
	return s
}

func (s *memStore) ActiveAlerts(_ context.Context, now time.Time) ([]*model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Alert
	for _, id := range s.order {
		a := s.alerts[id]
		if a.Start != nil && !a.Start.After(now) {
			cp := a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) Save(_ context.Context, alert *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, alert.ID)
	if err := s.failOn[alert.ID]; err != nil {
		return err
	}
	s.alerts[alert.ID] = *alert
	return nil
}

func (s *memStore) processed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alerts[id].WasProcessed
}

func (s *memStore) processedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, a := range s.alerts {
		if a.WasProcessed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

type progressRecorder struct {
	mu     sync.Mutex
	values []int
}

func (r *progressRecorder) Report(_ context.Context, percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, percent)
}

func (r *progressRecorder) all() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.values...)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type recordingNotifier struct {
	mu       sync.Mutex
	notified []string
	failOn   map[string]error
}

func (n *recordingNotifier) Notify(_ context.Context, alert *model.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, alert.ID)
	if n.failOn != nil {
		return n.failOn[alert.ID]
	}
	return nil
}

func alertAt(id string, start time.Time, processed bool) model.Alert {
	s := start
	return model.Alert{ID: id, Title: "alert " + id, Start: &s, WasProcessed: processed}
}

func checkJob() *model.Job {
	return &model.Job{ID: "4b1e2c1a-7b1f-4a53-9d0e-1f0a0c9e7d11", Kind: model.JobKindCheckNewAlerts}
}

var testNow = time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC)
