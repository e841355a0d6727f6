package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"replay_worker/internal/replay/domain"
	"replay_worker/pkg/logger"
	"replay_worker/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pendingEntry struct {
	owner string
	since time.Time
}

// fakeBroker 模擬單一 stream + consumer group 的 pending list
type fakeBroker struct {
	mu        sync.Mutex
	entries   []domain.StreamMessage
	next      int
	pending   map[string]*pendingEntry
	acks      map[string]int
	autoClaim bool
	// 每次 XAUTOCLAIM 最多掃描的 pending 數，0 代表 count*10
	scanWindow int64
}

func newFakeBroker(autoClaim bool) *fakeBroker {
	return &fakeBroker{pending: map[string]*pendingEntry{}, acks: map[string]int{}, autoClaim: autoClaim}
}

func (b *fakeBroker) add(jobID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := fmt.Sprintf("%d-0", len(b.entries)+1)
	b.entries = append(b.entries, domain.StreamMessage{ID: id, Values: map[string]interface{}{
		"jobId": jobID, "jobType": "REPLAY_THUMBNAIL",
	}})
	return id
}

func (b *fakeBroker) pendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *fakeBroker) ackCount(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acks[id]
}

func (b *fakeBroker) repo(consumer string) *fakeStream {
	return &fakeStream{broker: b, consumer: consumer}
}

func seq(id string) int {
	n, _ := strconv.Atoi(strings.SplitN(id, "-", 2)[0])
	return n
}

type fakeStream struct {
	broker   *fakeBroker
	consumer string
}

func (s *fakeStream) EnsureGroup(context.Context) error { return nil }

func (s *fakeStream) SupportsAutoClaim(context.Context) (bool, error) {
	return s.broker.autoClaim, nil
}

func (s *fakeStream) ReadNew(ctx context.Context, count int64, _ time.Duration) ([]domain.StreamMessage, error) {
	b := s.broker
	b.mu.Lock()
	var out []domain.StreamMessage
	for b.next < len(b.entries) && int64(len(out)) < count {
		msg := b.entries[b.next]
		b.pending[msg.ID] = &pendingEntry{owner: s.consumer, since: time.Now()}
		out = append(out, msg)
		b.next++
	}
	b.mu.Unlock()
	if len(out) == 0 {
		sleepCtx(ctx, 5*time.Millisecond)
	}
	return out, nil
}

func (s *fakeStream) ReadOwnPending(_ context.Context, cursor string, count int64) ([]domain.StreamMessage, error) {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.StreamMessage
	for _, msg := range b.entries {
		p, ok := b.pending[msg.ID]
		if !ok || p.owner != s.consumer || seq(msg.ID) <= seq(cursor) {
			continue
		}
		out = append(out, msg)
		if int64(len(out)) == count {
			break
		}
	}
	return out, nil
}

func (s *fakeStream) AutoClaim(_ context.Context, minIdle time.Duration, start string, count int64) ([]domain.StreamMessage, string, error) {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	window := b.scanWindow
	if window <= 0 {
		window = count * 10
	}
	var out []domain.StreamMessage
	scanned := int64(0)
	for _, msg := range b.entries {
		p, ok := b.pending[msg.ID]
		if !ok || seq(msg.ID) < seq(start) {
			continue
		}
		if scanned == window || int64(len(out)) == count {
			return out, msg.ID, nil
		}
		scanned++
		if time.Since(p.since) < minIdle {
			continue
		}
		p.owner = s.consumer
		p.since = time.Now()
		out = append(out, msg)
	}
	return out, "0-0", nil
}

func (s *fakeStream) Ack(_ context.Context, ids ...string) error {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		if _, ok := b.pending[id]; ok {
			delete(b.pending, id)
			b.acks[id]++
		}
	}
	return nil
}

type recordingDispatcher struct {
	mu    sync.Mutex
	jobs  []string
	fail  map[string]error
	inUse map[string]bool
	seen  chan string
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{fail: map[string]error{}, inUse: map[string]bool{}, seen: make(chan string, 16)}
}

func (d *recordingDispatcher) Dispatch(_ context.Context, values map[string]interface{}) error {
	jobID := fmt.Sprint(values["jobId"])
	d.mu.Lock()
	if d.inUse[jobID] {
		d.mu.Unlock()
		panic("job " + jobID + " dispatched concurrently")
	}
	d.inUse[jobID] = true
	d.jobs = append(d.jobs, jobID)
	err := d.fail[jobID]
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.inUse[jobID] = false
		d.mu.Unlock()
		select {
		case d.seen <- jobID:
		default:
		}
	}()
	return err
}

func (d *recordingDispatcher) dispatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.jobs...)
}

func newTestConsumer(stream *fakeStream, d MessageDispatcher, minIdle time.Duration) *Consumer {
	cfg := ConsumerConfig{BlockTimeout: 10 * time.Millisecond, ClaimMinIdle: minIdle, ClaimBatch: 2}
	return NewConsumer(stream, d, cfg, nil, metrics.NewWorkerMetrics(), logger.NewNop())
}

func TestRecoverClaimsCrashedPeerMessage(t *testing.T) {
	ctx := context.Background()
	broker := newFakeBroker(true)
	id := broker.add("job-1")

	// consumer A 讀到訊息後當機，沒有 ack
	msgs, err := broker.repo("A").ReadNew(ctx, 1, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	d := newRecordingDispatcher()
	b := newTestConsumer(broker.repo("B"), d, 0)

	n, err := b.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"job-1"}, d.dispatched())
	assert.Equal(t, 1, broker.ackCount(id))
	assert.Equal(t, 0, broker.pendingCount())

	n, err = b.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, []string{"job-1"}, d.dispatched())
}

func TestRecoverLeavesBusyPeerAlone(t *testing.T) {
	ctx := context.Background()
	broker := newFakeBroker(true)
	broker.add("job-1")
	_, err := broker.repo("A").ReadNew(ctx, 1, time.Millisecond)
	require.NoError(t, err)

	d := newRecordingDispatcher()
	b := newTestConsumer(broker.repo("B"), d, time.Hour)

	n, err := b.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, d.dispatched())
	assert.Equal(t, 1, broker.pendingCount())
}

func TestRecoverScansPastBusyWindow(t *testing.T) {
	ctx := context.Background()
	broker := newFakeBroker(true)
	broker.scanWindow = 2
	for i := 1; i <= 3; i++ {
		broker.add(fmt.Sprintf("job-%d", i))
	}
	_, err := broker.repo("A").ReadNew(ctx, 3, time.Millisecond)
	require.NoError(t, err)

	// job-3 的 consumer 早已當機，前兩筆還在處理中
	broker.mu.Lock()
	broker.pending["3-0"].since = time.Now().Add(-2 * time.Hour)
	broker.mu.Unlock()

	d := newRecordingDispatcher()
	n, err := newTestConsumer(broker.repo("B"), d, time.Hour).Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"job-3"}, d.dispatched())
	assert.Equal(t, 1, broker.ackCount("3-0"))
	assert.Equal(t, 2, broker.pendingCount())
}

func TestRecoverPagesThroughBatches(t *testing.T) {
	ctx := context.Background()
	broker := newFakeBroker(true)
	for i := 1; i <= 5; i++ {
		broker.add(fmt.Sprintf("job-%d", i))
	}
	_, err := broker.repo("A").ReadNew(ctx, 5, time.Millisecond)
	require.NoError(t, err)

	d := newRecordingDispatcher()
	n, err := newTestConsumer(broker.repo("B"), d, 0).Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []string{"job-1", "job-2", "job-3", "job-4", "job-5"}, d.dispatched())
	assert.Equal(t, 0, broker.pendingCount())
}

func TestRecoverOwnPendingFallback(t *testing.T) {
	ctx := context.Background()
	broker := newFakeBroker(false)
	id := broker.add("job-1")
	broker.add("job-2")
	_, err := broker.repo("A").ReadNew(ctx, 1, time.Millisecond)
	require.NoError(t, err)

	// 其他 consumer 不能透過 fallback 拿到 A 的訊息
	other := newRecordingDispatcher()
	n, err := newTestConsumer(broker.repo("B"), other, 0).Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// A 重啟後從頭讀自己的 pending
	d := newRecordingDispatcher()
	a := newTestConsumer(broker.repo("A"), d, 0)
	n, err = a.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"job-1"}, d.dispatched())
	assert.Equal(t, 1, broker.ackCount(id))
	assert.Equal(t, strategyOwnPending, a.recovery.name())
}

func TestHandleKeepsMessagePendingOnDispatchError(t *testing.T) {
	ctx := context.Background()
	broker := newFakeBroker(false)
	id := broker.add("job-1")
	broker.add("job-2")
	_, err := broker.repo("A").ReadNew(ctx, 2, time.Millisecond)
	require.NoError(t, err)

	d := newRecordingDispatcher()
	d.fail["job-1"] = errors.New("result stream unavailable")
	a := newTestConsumer(broker.repo("A"), d, 0)

	n, err := a.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"job-1", "job-2"}, d.dispatched())
	assert.Equal(t, 0, broker.ackCount(id))
	assert.Equal(t, 1, broker.pendingCount())
}

func TestStartProcessesNewMessagesUntilCancelled(t *testing.T) {
	broker := newFakeBroker(true)
	d := newRecordingDispatcher()
	liveness := NewLiveness(10 * time.Millisecond)
	c := NewConsumer(broker.repo("A"), d, ConsumerConfig{BlockTimeout: 10 * time.Millisecond, ClaimMinIdle: time.Hour}, liveness, nil, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	id := broker.add("job-1")
	select {
	case got := <-d.seen:
		assert.Equal(t, "job-1", got)
	case <-time.After(5 * time.Second):
		t.Fatal("message was not dispatched")
	}

	require.Eventually(t, func() bool { return broker.ackCount(id) == 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}

	report := liveness.Report()
	assert.Equal(t, int64(1), report.JobsHandled)
	assert.Equal(t, strategyAutoClaim, report.Recovery)
	assert.False(t, report.LastPoll.IsZero())
}

func TestLivenessReport(t *testing.T) {
	l := NewLiveness(time.Second)
	assert.False(t, l.Report().Healthy)

	l.polled()
	assert.True(t, l.Report().Healthy)

	l.begin()
	r := l.Report()
	assert.True(t, r.Busy)
	assert.True(t, r.Healthy)

	l.end()
	assert.False(t, l.Report().Busy)
	assert.Equal(t, int64(1), l.Report().JobsHandled)
}
