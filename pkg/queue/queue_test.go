package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scheduled struct {
	data string
	at   time.Time
}

type memStore struct {
	mu    sync.Mutex
	lists map[string][]string
	sets  map[string][]scheduled
}

func newMemStore() *memStore {
	return &memStore{lists: map[string][]string{}, sets: map[string][]scheduled{}}
}

func (m *memStore) Push(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append([]string{string(data)}, m.lists[key]...)
	return nil
}

func (m *memStore) Pop(_ context.Context, key string, _ time.Duration) ([]byte, error) {
	m.mu.Lock()
	l := m.lists[key]
	if len(l) == 0 {
		m.mu.Unlock()
		time.Sleep(time.Millisecond)
		return nil, errEmpty
	}
	last := l[len(l)-1]
	m.lists[key] = l[:len(l)-1]
	m.mu.Unlock()
	return []byte(last), nil
}

func (m *memStore) Schedule(_ context.Context, key string, data []byte, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[key] = append(m.sets[key], scheduled{data: string(data), at: at})
	sort.Slice(m.sets[key], func(i, j int) bool { return m.sets[key][i].at.Before(m.sets[key][j].at) })
	return nil
}

func (m *memStore) Due(_ context.Context, key string, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.sets[key] {
		if !s.at.After(now) {
			out = append(out, s.data)
		}
	}
	return out, nil
}

func (m *memStore) Promote(_ context.Context, from, to, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.sets[from][:0]
	for _, s := range m.sets[from] {
		if s.data != member {
			kept = append(kept, s)
		}
	}
	m.sets[from] = kept
	m.lists[to] = append([]string{member}, m.lists[to]...)
	return nil
}

func (m *memStore) Len(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sets[key]; ok {
		return int64(len(s)), nil
	}
	return int64(len(m.lists[key])), nil
}

func (m *memStore) Ping(context.Context) error { return nil }

type recordingJob struct {
	mu       sync.Mutex
	payloads []string
	errs     []error
}

func (j *recordingJob) Name() string { return "recording" }
func (j *recordingJob) Type() string { return "classify_curve" }

func (j *recordingJob) Handle(_ context.Context, payload json.RawMessage) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.payloads = append(j.payloads, string(payload))
	if len(j.errs) == 0 {
		return nil
	}
	err := j.errs[0]
	j.errs = j.errs[1:]
	return err
}

func startedQueue(t *testing.T, st store, job Job, retries int) *RedisQueue {
	t.Helper()
	q := newQueue(nil, &QueueConfig{RetryLimit: retries, RetryDelay: time.Second}, st, ModeProducerConsumer)
	q.RegisterJob(job)
	// mark running without launching workers so tests drive processing
	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.isRunning = true
	t.Cleanup(q.cancel)
	return q
}

func TestEnqueueAndProcess(t *testing.T) {
	st := newMemStore()
	job := &recordingJob{}
	q := startedQueue(t, st, job, 3)

	id, err := q.Enqueue(context.Background(), "classify_curve", map[string]string{"a": "-13", "b": "4"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	q.processNextMessage()
	require.Len(t, job.payloads, 1)
	assert.JSONEq(t, `{"a":"-13","b":"4"}`, job.payloads[0])

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestEnqueueRejectsUnknownType(t *testing.T) {
	q := startedQueue(t, newMemStore(), &recordingJob{}, 0)
	_, err := q.Enqueue(context.Background(), "other", nil)
	assert.Error(t, err)
}

func TestFailedMessageIsRetriedThenDeadLettered(t *testing.T) {
	st := newMemStore()
	boom := errors.New("boom")
	job := &recordingJob{errs: []error{boom, boom}}
	q := startedQueue(t, st, job, 1)
	now := time.Unix(1000, 0)
	q.now = func() time.Time { return now }

	_, err := q.Enqueue(context.Background(), "classify_curve", "x")
	require.NoError(t, err)

	q.processNextMessage()
	stats, _ := q.Stats(context.Background())
	assert.Equal(t, int64(1), stats.Retry)

	q.promoteDue(context.Background())
	stats, _ = q.Stats(context.Background())
	assert.Equal(t, int64(1), stats.Retry, "not yet due")

	now = now.Add(2 * time.Second)
	q.promoteDue(context.Background())
	q.processNextMessage()

	stats, _ = q.Stats(context.Background())
	assert.Equal(t, Stats{Dead: 1}, stats)

	var dead Message
	require.NoError(t, json.Unmarshal([]byte(st.lists[q.deadLetterKey()][0]), &dead))
	assert.Equal(t, 1, dead.Attempts)
	assert.Equal(t, "boom", dead.LastError)
}

func TestPermanentErrorSkipsRetries(t *testing.T) {
	st := newMemStore()
	job := &recordingJob{errs: []error{Permanent(errors.New("bad curve"))}}
	q := startedQueue(t, st, job, 5)

	_, err := q.Enqueue(context.Background(), "classify_curve", "x")
	require.NoError(t, err)
	q.processNextMessage()

	stats, _ := q.Stats(context.Background())
	assert.Equal(t, Stats{Dead: 1}, stats)
}

func TestStartStopRunsWorkers(t *testing.T) {
	st := newMemStore()
	job := &recordingJob{}
	q := newQueue(nil, &QueueConfig{Workers: 2, PollInterval: 10 * time.Millisecond}, st, ModeProducerConsumer)
	q.RegisterJob(job)
	require.NoError(t, q.Start(context.Background()))

	_, err := q.Enqueue(context.Background(), "classify_curve", 1)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		job.mu.Lock()
		defer job.mu.Unlock()
		return len(job.payloads) == 1
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Stop(ctx))
}

func TestParsePayload(t *testing.T) {
	type req struct {
		A string `json:"a"`
	}
	out, err := ParsePayload[req](json.RawMessage(`{"a":"7"}`))
	require.NoError(t, err)
	assert.Equal(t, "7", out.A)

	_, err = ParsePayload[req](nil)
	assert.Error(t, err)
}
