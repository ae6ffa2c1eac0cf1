package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alitto/pond/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/research-protocol/researchx/app/indexer/types"
	"github.com/research-protocol/researchx/pkg/db/models/events"
	"github.com/research-protocol/researchx/pkg/db/models/reports"
	"github.com/research-protocol/researchx/pkg/indexer"
	"github.com/research-protocol/researchx/pkg/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

type requestsCall struct {
	status string
	cursor uint64
	limit  int
}

type fakeEventStore struct {
	mu sync.Mutex

	summaries     []events.RequestSummary
	timeline      []events.EventRow
	verifications []events.EventRow
	inserted      []*events.EventRow
	queryErr      error
	pingErr       error

	requestsCalls []requestsCall
}

func (f *fakeEventStore) DatabaseName() string { return "research_indexer" }

func (f *fakeEventStore) InsertEvents(_ context.Context, rows []*events.EventRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, rows...)
	return nil
}

func (f *fakeEventStore) LastStreamID(context.Context) (string, error) { return "", nil }

func (f *fakeEventStore) QueryRequests(_ context.Context, status string, cursor uint64, limit int) ([]events.RequestSummary, error) {
	f.requestsCalls = append(f.requestsCalls, requestsCall{status, cursor, limit})
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.summaries[:min(limit, len(f.summaries))], nil
}

func (f *fakeEventStore) RequestTimeline(context.Context, string) ([]events.EventRow, error) {
	return f.timeline, f.queryErr
}

func (f *fakeEventStore) ReportVerifications(context.Context, string) ([]events.EventRow, error) {
	return f.verifications, f.queryErr
}

func (f *fakeEventStore) Optimize(context.Context) error { return nil }
func (f *fakeEventStore) Ping(context.Context) error     { return f.pingErr }
func (f *fakeEventStore) Close() error                   { return nil }

type fakeReportsStore struct {
	daily   []reports.ResearchDaily
	summary *reports.VerificationSummary
	err     error
}

func (f *fakeReportsStore) DatabaseName() string { return "research_reports" }
func (f *fakeReportsStore) RebuildDaily(context.Context, string, uint64) error {
	return nil
}
func (f *fakeReportsStore) RebuildVerificationSummary(context.Context, string, uint64) error {
	return nil
}
func (f *fakeReportsStore) GetDaily(_ context.Context, limit int) ([]reports.ResearchDaily, error) {
	return f.daily[:min(limit, len(f.daily))], f.err
}
func (f *fakeReportsStore) GetVerificationSummary(context.Context, string) (*reports.VerificationSummary, error) {
	return f.summary, f.err
}
func (f *fakeReportsStore) Close() error { return nil }

type fakeStream struct {
	entries []goredis.XMessage
}

func (f *fakeStream) XRange(_ context.Context, _ string, start, _ string, count int64) ([]goredis.XMessage, error) {
	if start != "-" {
		return nil, nil
	}
	return f.entries[:min(int(count), len(f.entries))], nil
}

type harness struct {
	events  *fakeEventStore
	reports *fakeReportsStore
	stream  *fakeStream
	ctl     *Controller
	handler http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	h := &harness{events: &fakeEventStore{}, reports: &fakeReportsStore{}, stream: &fakeStream{}}

	pool := pond.NewPool(2)
	t.Cleanup(pool.StopAndWait)

	app := &types.App{
		EventsDB:       h.events,
		ReportsDB:      h.reports,
		Reader:         h.stream,
		Stream:         "research:events",
		Projector:      indexer.NewProjector(h.events, logger),
		ResyncPool:     pool,
		ResyncPageSize: 100,
		Logger:         logger,
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	h.ctl = &Controller{
		App:        app,
		AdminToken: "token-1",
		AuthUser:   "operator",
		Users:      map[string][]byte{"operator": hash},
		JWTSecret:  []byte("session-secret"),
	}
	router, err := h.ctl.NewRouter()
	require.NoError(t, err)
	h.handler = WithCORS(router)
	return h
}

func (h *harness) do(t *testing.T, method, path, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func summaries(n int) []events.RequestSummary {
	out := make([]events.RequestSummary, n)
	for i := range out {
		out[i] = events.RequestSummary{
			Request:  research.Pubkey{byte(i + 1)}.String(),
			Status:   "open",
			Position: uint64(1000 - i),
		}
	}
	return out
}

func TestHandleRequests_Pagination(t *testing.T) {
	h := newHarness(t)
	h.events.summaries = summaries(4)

	rec := h.do(t, http.MethodGet, "/api/requests?limit=3&status=open", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[pagedResponse[events.RequestSummary]](t, rec)
	assert.Len(t, page.Data, 3)
	assert.Equal(t, 3, page.Limit)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, uint64(998), *page.NextCursor)
	assert.Equal(t, requestsCall{status: "open", cursor: 0, limit: 4}, h.events.requestsCalls[0])

	h.events.summaries = summaries(2)
	rec = h.do(t, http.MethodGet, "/api/requests?cursor=998", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[pagedResponse[events.RequestSummary]](t, rec)
	assert.Len(t, page.Data, 2)
	assert.Nil(t, page.NextCursor)
	assert.Equal(t, requestsCall{cursor: 998, limit: defaultLimit + 1}, h.events.requestsCalls[1])
}

func TestHandleRequests_LimitCapped(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/requests?limit=1000", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxLimit+1, h.events.requestsCalls[0].limit)
	assert.JSONEq(t, `{"data":[],"limit":100,"next_cursor":null}`, rec.Body.String())
}

func TestHandleRequests_BadParams(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{
		"/api/requests?limit=0",
		"/api/requests?limit=x",
		"/api/requests?cursor=-1",
		"/api/requests?status=closed",
	} {
		rec := h.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
	assert.Empty(t, h.events.requestsCalls)

	h.events.queryErr = errors.New("boom")
	rec := h.do(t, http.MethodGet, "/api/requests", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleRequestTimeline(t *testing.T) {
	h := newHarness(t)
	addr := research.Pubkey{7}.String()

	rec := h.do(t, http.MethodGet, "/api/requests/"+addr+"/timeline", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/requests/not-hex/timeline", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.events.timeline = []events.EventRow{
		{StreamID: "1-0", Event: research.EventRequestCreated, Request: addr},
		{StreamID: "2-0", Event: research.EventReportVerified, Report: research.Pubkey{9}.String()},
	}
	rec = h.do(t, http.MethodGet, "/api/requests/"+addr+"/timeline", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[TimelineResponse](t, rec)
	assert.Equal(t, addr, body.Request)
	assert.Len(t, body.Data, 2)
}

func TestHandleReportVerifications(t *testing.T) {
	h := newHarness(t)
	addr := research.Pubkey{9}.String()

	rec := h.do(t, http.MethodGet, "/api/reports/"+addr+"/verifications", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[VerificationsResponse](t, rec)
	assert.Empty(t, body.Data)
	assert.Nil(t, body.Summary)

	h.events.verifications = []events.EventRow{{StreamID: "3-0", Event: research.EventReportVerified, Report: addr, IsValid: 1}}
	h.reports.summary = &reports.VerificationSummary{Report: addr, Verifications: 1, Valid: 1}
	rec = h.do(t, http.MethodGet, "/api/reports/"+addr+"/verifications", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[VerificationsResponse](t, rec)
	assert.Len(t, body.Data, 1)
	require.NotNil(t, body.Summary)
	assert.Equal(t, uint64(1), body.Summary.Valid)

	// a failing summary lookup still serves the rows
	h.reports.summary, h.reports.err = nil, errors.New("reports down")
	rec = h.do(t, http.MethodGet, "/api/reports/"+addr+"/verifications", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[VerificationsResponse](t, rec).Data, 1)
}

func TestHandleDailyStats(t *testing.T) {
	h := newHarness(t)
	h.reports.daily = []reports.ResearchDaily{
		{Day: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), RequestsCreated: 3},
		{Day: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), RequestsCreated: 1},
	}

	rec := h.do(t, http.MethodGet, "/api/stats/daily?days=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Data []reports.ResearchDaily `json:"data"`
	}](t, rec)
	require.Len(t, body.Data, 1)
	assert.Equal(t, uint64(3), body.Data[0].RequestsCreated)

	rec = h.do(t, http.MethodGet, "/api/stats/daily?days=zero", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func streamEntry(t *testing.T, id string, env research.Envelope) goredis.XMessage {
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return goredis.XMessage{ID: id, Values: map[string]interface{}{"event": env.Event, "data": string(data)}}
}

func TestHandleResync_Auth(t *testing.T) {
	h := newHarness(t)
	h.stream.entries = []goredis.XMessage{
		streamEntry(t, "1-0", research.Envelope{
			Event:   research.EventRequestCreated,
			Payload: research.RequestCreated{Request: research.Pubkey{1}, Requester: research.Pubkey{2}, Topic: "AI"},
		}),
		streamEntry(t, "2-0", research.Envelope{
			Event:   research.EventReportVerified,
			Payload: research.ReportVerified{Report: research.Pubkey{3}, Verifier: research.Pubkey{4}},
		}),
	}

	rec := h.do(t, http.MethodPost, "/api/resync", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/resync", "", func(r *http.Request) { r.Header.Set("Authorization", "Bearer wrong") })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/resync", "", func(r *http.Request) { r.Header.Set("Authorization", "Bearer token-1") })
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), decode[map[string]any](t, rec)["rows"])
	assert.Len(t, h.events.inserted, 2)
}

func TestHandleResync_Exclusive(t *testing.T) {
	h := newHarness(t)
	h.ctl.resyncing.Store(true)
	rec := h.do(t, http.MethodPost, "/api/resync", "", func(r *http.Request) { r.Header.Set("Authorization", "Bearer token-1") })
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginSessionLogout(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/auth/login", `{"username":"operator","password":"nope"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/auth/login", `{"username":"ghost","password":"s3cret"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/auth/login", `{`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/auth/login", `{"username":"operator","password":"s3cret"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	session := cookies[0]
	assert.Equal(t, sessionCookie, session.Name)
	assert.True(t, session.HttpOnly)

	rec = h.do(t, http.MethodPost, "/api/resync", "", func(r *http.Request) { r.AddCookie(session) })
	assert.Equal(t, http.StatusOK, rec.Code)

	forged := *session
	forged.Value = session.Value + "x"
	rec = h.do(t, http.MethodPost, "/api/resync", "", func(r *http.Request) { r.AddCookie(&forged) })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)
}

func TestHandleHealth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "research_indexer", body.Events)

	h.events.pingErr = errors.New("down")
	rec = h.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodOptions, "/api/requests", "", func(r *http.Request) { r.Header.Set("Origin", "http://ui.local") })
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://ui.local", rec.Header().Get("Access-Control-Allow-Origin"))
}
