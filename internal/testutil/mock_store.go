package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/pulse/internal/daybucket"
	"github.com/MikeSquared-Agency/pulse/internal/store"
)

// MockStore is a thread-safe in-memory implementation of store.DataStore
// for testing. Buckets are keyed "metric|guild|user|date|dimension".
type MockStore struct {
	mu sync.Mutex

	Buckets      map[string]int64
	OpenSessions map[string]store.OpenSession // key: "kind|guild|user"
	Monitors     map[string]store.Monitor

	IncrementErr error
	FlushErr     error
	PutOpenErr   error
	ReadErr      error

	IncrementCalls int
	FlushCalls     int
	PutOpenCalls   int
	DeleteOpenCalls int
}

func NewMockStore() *MockStore {
	return &MockStore{
		Buckets:      make(map[string]int64),
		OpenSessions: make(map[string]store.OpenSession),
		Monitors:     make(map[string]store.Monitor),
	}
}

func bucketKey(metric, guildID, userID, date, dimension string) string {
	return strings.Join([]string{metric, guildID, userID, date, dimension}, "|")
}

func sessionKey(kind, guildID, userID string) string {
	return kind + "|" + guildID + "|" + userID
}

func (m *MockStore) IncrementBucket(_ context.Context, metric, guildID, userID string, date time.Time, dimension string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IncrementCalls++
	if m.IncrementErr != nil {
		return m.IncrementErr
	}
	if delta <= 0 {
		return nil
	}
	m.Buckets[bucketKey(metric, guildID, userID, date.UTC().Format("2006-01-02"), dimension)] += delta
	return nil
}

func (m *MockStore) FlushSession(_ context.Context, sess store.OpenSession, metric, dimension string, segs []daybucket.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FlushCalls++
	if m.FlushErr != nil {
		return m.FlushErr
	}
	for _, seg := range segs {
		if delta := seg.Duration.Milliseconds(); delta > 0 {
			m.Buckets[bucketKey(metric, sess.GuildID, sess.UserID, seg.Date.Format("2006-01-02"), dimension)] += delta
		}
	}
	delete(m.OpenSessions, sessionKey(sess.Kind, sess.GuildID, sess.UserID))
	return nil
}

func (m *MockStore) SumUserRange(_ context.Context, metric, guildID, userID string, dates []time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	var total int64
	for _, d := range dates {
		prefix := strings.Join([]string{metric, guildID, userID, d.UTC().Format("2006-01-02")}, "|") + "|"
		for k, v := range m.Buckets {
			if strings.HasPrefix(k, prefix) {
				total += v
			}
		}
	}
	return total, nil
}

func (m *MockStore) SumUserAll(_ context.Context, metric, guildID, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	prefix := strings.Join([]string{metric, guildID, userID}, "|") + "|"
	var total int64
	for k, v := range m.Buckets {
		if strings.HasPrefix(k, prefix) {
			total += v
		}
	}
	return total, nil
}

func (m *MockStore) TotalsByUser(_ context.Context, metric, guildID string, dates []time.Time) (map[string]int64, error) {
	return m.totals(metric, guildID, dates, func(parts []string) (string, bool) {
		return parts[2], true
	})
}

func (m *MockStore) TotalsByUserInDimension(_ context.Context, metric, guildID, dimension string, dates []time.Time) (map[string]int64, error) {
	return m.totals(metric, guildID, dates, func(parts []string) (string, bool) {
		return parts[2], parts[4] == dimension
	})
}

func (m *MockStore) TotalsByDimension(_ context.Context, metric, guildID string, dates []time.Time) (map[string]int64, error) {
	return m.totals(metric, guildID, dates, func(parts []string) (string, bool) {
		return parts[4], true
	})
}

func (m *MockStore) totals(metric, guildID string, dates []time.Time, keyOf func(parts []string) (string, bool)) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	wanted := make(map[string]bool, len(dates))
	for _, d := range dates {
		wanted[d.UTC().Format("2006-01-02")] = true
	}
	out := make(map[string]int64)
	for k, v := range m.Buckets {
		parts := strings.SplitN(k, "|", 5)
		if parts[0] != metric || parts[1] != guildID || !wanted[parts[3]] {
			continue
		}
		if key, ok := keyOf(parts); ok {
			out[key] += v
		}
	}
	return out, nil
}

func (m *MockStore) UserSeries(_ context.Context, metric, guildID, userID string, dates []time.Time) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	out := make(map[string]int64)
	for _, d := range dates {
		day := d.UTC().Format("2006-01-02")
		prefix := strings.Join([]string{metric, guildID, userID, day}, "|") + "|"
		for k, v := range m.Buckets {
			if strings.HasPrefix(k, prefix) {
				out[day] += v
			}
		}
	}
	return out, nil
}

func (m *MockStore) ResetGuild(_ context.Context, guildID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.Buckets {
		parts := strings.SplitN(k, "|", 5)
		if parts[1] == guildID {
			delete(m.Buckets, k)
		}
	}
	return nil
}

func (m *MockStore) PutOpenSession(_ context.Context, sess store.OpenSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutOpenCalls++
	if m.PutOpenErr != nil {
		return m.PutOpenErr
	}
	m.OpenSessions[sessionKey(sess.Kind, sess.GuildID, sess.UserID)] = sess
	return nil
}

func (m *MockStore) DeleteOpenSession(_ context.Context, kind, guildID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteOpenCalls++
	delete(m.OpenSessions, sessionKey(kind, guildID, userID))
	return nil
}

func (m *MockStore) ListOpenSessions(_ context.Context, kind string) ([]store.OpenSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	var out []store.OpenSession
	for _, sess := range m.OpenSessions {
		if sess.Kind == kind {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (m *MockStore) GetMonitor(_ context.Context, guildID string) (*store.Monitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	mon, ok := m.Monitors[guildID]
	if !ok {
		return nil, nil
	}
	cp := mon
	return &cp, nil
}

func (m *MockStore) PutMonitor(_ context.Context, mon store.Monitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Monitors[mon.GuildID] = mon
	return nil
}

func (m *MockStore) DeleteMonitor(_ context.Context, guildID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Monitors, guildID)
	return nil
}

func (m *MockStore) ListMonitors(_ context.Context) ([]store.Monitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	var out []store.Monitor
	for _, mon := range m.Monitors {
		out = append(out, mon)
	}
	return out, nil
}

func (m *MockStore) Close() {}

// BucketValue reads one bucket directly (test assertions).
func (m *MockStore) BucketValue(metric, guildID, userID, date, dimension string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Buckets[bucketKey(metric, guildID, userID, date, dimension)]
}

// SetBucket seeds one bucket directly.
func (m *MockStore) SetBucket(metric, guildID, userID, date, dimension string, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Buckets[bucketKey(metric, guildID, userID, date, dimension)] = value
}

// OpenSessionCount returns how many durable open sessions exist.
func (m *MockStore) OpenSessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.OpenSessions)
}
