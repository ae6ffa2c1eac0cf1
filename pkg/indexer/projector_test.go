package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alitto/pond/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/research-protocol/researchx/pkg/db/models/events"
	"github.com/research-protocol/researchx/pkg/redis"
	"github.com/research-protocol/researchx/pkg/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeEventStore struct {
	mu        sync.Mutex
	rows      []*events.EventRow
	batches   int
	insertErr error
}

func (f *fakeEventStore) DatabaseName() string { return "research_indexer" }

func (f *fakeEventStore) InsertEvents(_ context.Context, rows []*events.EventRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.batches++
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeEventStore) LastStreamID(context.Context) (string, error) { return "", nil }

func (f *fakeEventStore) QueryRequests(context.Context, string, uint64, int) ([]events.RequestSummary, error) {
	return nil, nil
}

func (f *fakeEventStore) RequestTimeline(context.Context, string) ([]events.EventRow, error) {
	return nil, nil
}

func (f *fakeEventStore) ReportVerifications(context.Context, string) ([]events.EventRow, error) {
	return nil, nil
}

func (f *fakeEventStore) Optimize(context.Context) error { return nil }
func (f *fakeEventStore) Ping(context.Context) error     { return nil }
func (f *fakeEventStore) Close() error                   { return nil }

// fakeStream serves XRange over an in-memory list, honouring "-" and "(<id>" starts.
type fakeStream struct {
	entries []goredis.XMessage
	calls   []string
	err     error
}

func (f *fakeStream) XRange(_ context.Context, _ string, start, _ string, count int64) ([]goredis.XMessage, error) {
	f.calls = append(f.calls, start)
	if f.err != nil {
		return nil, f.err
	}
	from := 0
	if start != "-" {
		for i, e := range f.entries {
			if "("+e.ID == start {
				from = i + 1
				break
			}
		}
	}
	end := min(from+int(count), len(f.entries))
	return f.entries[from:end], nil
}

func entry(t *testing.T, id string, env research.Envelope) goredis.XMessage {
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return goredis.XMessage{ID: id, Values: map[string]interface{}{"event": env.Event, "data": string(data)}}
}

func created(n byte) research.Envelope {
	return research.Envelope{
		Event:     research.EventRequestCreated,
		TxID:      fmt.Sprintf("tx-%d", n),
		Timestamp: 1_700_000_000 + int64(n),
		Payload:   research.RequestCreated{Request: research.Pubkey{n}, Requester: research.Pubkey{0xAA}, Topic: "AI"},
	}
}

func TestHandleMessage(t *testing.T) {
	store := &fakeEventStore{}
	p := NewProjector(store, zaptest.NewLogger(t))
	p.Now = func() time.Time { return time.Unix(42, 0) }

	e := entry(t, "10-0", created(1))
	err := p.HandleMessage(context.Background(), redis.Message{ID: e.ID, Values: e.Values})
	require.NoError(t, err)
	require.Len(t, store.rows, 1)
	assert.Equal(t, "10-0", store.rows[0].StreamID)
	assert.Equal(t, time.Unix(42, 0).UTC(), store.rows[0].IndexedAt)
	assert.Equal(t, map[string]uint64{research.EventRequestCreated: 1}, p.Counts())

	// undecodable entries are skipped without error so the consumer acks them
	err = p.HandleMessage(context.Background(), redis.Message{ID: "11-0", Values: map[string]interface{}{"data": "nope"}})
	require.NoError(t, err)
	assert.Len(t, store.rows, 1)

	store.insertErr = errors.New("clickhouse down")
	err = p.HandleMessage(context.Background(), redis.Message{ID: e.ID, Values: e.Values})
	assert.ErrorIs(t, err, store.insertErr)
}

func TestResync_Pages(t *testing.T) {
	stream := &fakeStream{}
	for i := byte(1); i <= 7; i++ {
		stream.entries = append(stream.entries, entry(t, fmt.Sprintf("%d-0", i), created(i)))
	}
	stream.entries = append(stream.entries, goredis.XMessage{ID: "8-0", Values: map[string]interface{}{"data": "{"}})

	store := &fakeEventStore{}
	p := NewProjector(store, zaptest.NewLogger(t))
	pool := pond.NewPool(4)
	defer pool.StopAndWait()

	n, err := p.Resync(context.Background(), stream, "research:events", pool, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Len(t, store.rows, 7)
	assert.Equal(t, 3, store.batches)
	assert.Equal(t, []string{"-", "(3-0", "(6-0"}, stream.calls)
	assert.Equal(t, uint64(7), p.Counts()[research.EventRequestCreated])
}

func TestResync_Errors(t *testing.T) {
	pool := pond.NewPool(2)
	defer pool.StopAndWait()

	p := NewProjector(&fakeEventStore{}, zaptest.NewLogger(t))
	_, err := p.Resync(context.Background(), &fakeStream{err: errors.New("redis gone")}, "s", pool, 10)
	assert.Error(t, err)

	boom := errors.New("insert failed")
	stream := &fakeStream{entries: []goredis.XMessage{entry(t, "1-0", created(1))}}
	p = NewProjector(&fakeEventStore{insertErr: boom}, zaptest.NewLogger(t))
	_, err = p.Resync(context.Background(), stream, "s", pool, 10)
	assert.ErrorIs(t, err, boom)
}

func TestResync_EmptyStream(t *testing.T) {
	pool := pond.NewPool(1)
	defer pool.StopAndWait()

	n, err := NewProjector(&fakeEventStore{}, zaptest.NewLogger(t)).Resync(context.Background(), &fakeStream{}, "s", pool, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}
