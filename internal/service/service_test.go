package service

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/service/journal"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/rpc"
)

type recordingTracker struct {
	mu     sync.Mutex
	keys   []string
	events []any
}

func (r *recordingTracker) Track(key string, event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	r.events = append(r.events, event)
}

type recordingJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
	err     error
}

func (r *recordingJournal) Record(ctx context.Context, e journal.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return r.err
}

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.data))
	m.data = make(map[string]string)
	return n, nil
}

func newTestService(t *testing.T, opts Options) (*Service, *metrics.Metrics) {
	t.Helper()
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}
	return New(opts), opts.Metrics
}

func submit(t *testing.T, s *Service, client int64, path string, freqs map[string]int64) *proto.IndexResponse {
	t.Helper()
	resp, err := s.SubmitIndex(context.Background(), &proto.IndexRequest{
		ClientID:        client,
		DocumentPath:    path,
		WordFrequencies: freqs,
	})
	require.NoError(t, err)
	return resp
}

func TestRegisterAndDeregister(t *testing.T) {
	s, m := newTestService(t, Options{})
	ctx := context.Background()

	first, err := s.Register(ctx, "10.0.0.1:5000")
	require.NoError(t, err)
	second, err := s.Register(ctx, "10.0.0.2:5000")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ClientID)
	assert.Equal(t, int64(2), second.ClientID)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveSessions))

	sessions := s.ListSessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "10.0.0.1:5000", sessions[0].Address)

	ack, err := s.Deregister(ctx, &proto.DeregisterRequest{ClientID: 1})
	require.NoError(t, err)
	assert.Equal(t, "OK", ack.Message)

	ack, err = s.Deregister(ctx, &proto.DeregisterRequest{ClientID: 1})
	require.NoError(t, err)
	assert.Equal(t, "not registered", ack.Message)

	_, err = s.Deregister(ctx, &proto.DeregisterRequest{ClientID: 99})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsRegisteredTotal))

	third, err := s.Register(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), third.ClientID)
}

func TestSubmitIndexAndSearch(t *testing.T) {
	s, m := newTestService(t, Options{})

	resp := submit(t, s, 1, "/data/a.txt", map[string]int64{"distortion": 3, "adaptation": 2})
	assert.Equal(t, 2, resp.IndexedTerms)
	submit(t, s, 2, "/data/b.txt", map[string]int64{"distortion": 5})
	submit(t, s, 2, "/data/c.txt", map[string]int64{"distortion": 1, "adaptation": 1})

	out, err := s.Search(context.Background(), &proto.SearchRequest{Terms: []string{"distortion", "ADAPTATION"}})
	require.NoError(t, err)
	assert.Equal(t, 2, out.TotalResults)
	assert.Equal(t, []proto.SearchResult{
		{ClientID: 1, DocumentPath: "/data/a.txt", Frequency: 5},
		{ClientID: 2, DocumentPath: "/data/c.txt", Frequency: 2},
	}, out.Results)
	assert.GreaterOrEqual(t, out.TimeTaken, 0.0)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.DocsIndexedTotal))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.PostingsAddedTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RegisteredDocuments))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IndexTerms))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("hit")))

	stats := s.Stats()
	assert.Equal(t, int64(2), stats.Terms)
	assert.Equal(t, int64(5), stats.Postings)
	assert.Equal(t, 3, stats.Documents)
}

func TestSamePathFromTwoSessionsIsOneDocument(t *testing.T) {
	s, _ := newTestService(t, Options{})
	submit(t, s, 1, "/shared/doc.txt", map[string]int64{"shared": 2})
	submit(t, s, 2, "/shared/doc.txt", map[string]int64{"shared": 3})

	out, err := s.Search(context.Background(), &proto.SearchRequest{Terms: []string{"shared"}})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, proto.SearchResult{ClientID: 1, DocumentPath: "/shared/doc.txt", Frequency: 5}, out.Results[0])
	assert.Equal(t, 1, s.Stats().Documents)
}

func TestSubmitIndexValidation(t *testing.T) {
	s, _ := newTestService(t, Options{})
	ctx := context.Background()

	_, err := s.SubmitIndex(ctx, &proto.IndexRequest{ClientID: 0, DocumentPath: "/x"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = s.SubmitIndex(ctx, &proto.IndexRequest{ClientID: 1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	resp, err := s.SubmitIndex(ctx, &proto.IndexRequest{ClientID: 1, DocumentPath: "/empty"})
	require.NoError(t, err)
	assert.Zero(t, resp.IndexedTerms)
}

func TestSearchValidationAndEmptyQuery(t *testing.T) {
	s, _ := newTestService(t, Options{})
	ctx := context.Background()

	_, err := s.Search(ctx, &proto.SearchRequest{Terms: []string{"term"}, Limit: -1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	out, err := s.Search(ctx, &proto.SearchRequest{Terms: []string{"  ", ""}})
	require.NoError(t, err)
	assert.Zero(t, out.TotalResults)
	assert.Empty(t, out.Results)
}

func TestSearchLongConjunction(t *testing.T) {
	s, _ := newTestService(t, Options{})
	freqs := make(map[string]int64, 80)
	terms := make([]string, 0, 80)
	for i := 0; i < 80; i++ {
		term := fmt.Sprintf("term%02d", i)
		freqs[term] = 1
		terms = append(terms, term)
	}
	submit(t, s, 1, "/docs/long.txt", freqs)
	submit(t, s, 1, "/docs/short.txt", map[string]int64{"term00": 7})

	out, err := s.Search(context.Background(), &proto.SearchRequest{Terms: terms})
	require.NoError(t, err)
	assert.Equal(t, 1, out.TotalResults)
	require.Len(t, out.Results, 1)
	assert.Equal(t, proto.SearchResult{ClientID: 1, DocumentPath: "/docs/long.txt", Frequency: 80}, out.Results[0])
}

func TestSearchTruncatesToMaxResults(t *testing.T) {
	s, _ := newTestService(t, Options{MaxResults: 10})
	for i := 1; i <= 15; i++ {
		submit(t, s, 1, fmt.Sprintf("/docs/%02d.txt", i), map[string]int64{"common": int64(i)})
	}

	out, err := s.Search(context.Background(), &proto.SearchRequest{Terms: []string{"common"}})
	require.NoError(t, err)
	assert.Equal(t, 15, out.TotalResults)
	require.Len(t, out.Results, 10)
	assert.Equal(t, int64(15), out.Results[0].Frequency)
	assert.Equal(t, int64(6), out.Results[9].Frequency)

	out, err = s.Search(context.Background(), &proto.SearchRequest{Terms: []string{"common"}, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, out.Results, 3)

	out, err = s.Search(context.Background(), &proto.SearchRequest{Terms: []string{"common"}, Limit: 500})
	require.NoError(t, err)
	assert.Len(t, out.Results, 10)
}

func TestSearchDefaultLimit(t *testing.T) {
	s, _ := newTestService(t, Options{MaxResults: 10, DefaultLimit: 4})
	for i := 1; i <= 6; i++ {
		submit(t, s, 1, fmt.Sprintf("/d/%d", i), map[string]int64{"word": 1})
	}
	out, err := s.Search(context.Background(), &proto.SearchRequest{Terms: []string{"word"}})
	require.NoError(t, err)
	assert.Len(t, out.Results, 4)
	assert.Equal(t, 6, out.TotalResults)
}

func TestSearchCacheIsKeyedByIndexVersion(t *testing.T) {
	store := &memStore{data: make(map[string]string)}
	s, m := newTestService(t, Options{Cache: cache.New(store, time.Minute, nil)})
	ctx := context.Background()
	req := &proto.SearchRequest{Terms: []string{"cached"}}

	submit(t, s, 1, "/a", map[string]int64{"cached": 1})
	first, err := s.Search(ctx, req)
	require.NoError(t, err)
	second, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))

	submit(t, s, 1, "/b", map[string]int64{"cached": 4})
	third, err := s.Search(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, third.TotalResults)
	assert.Equal(t, "/b", third.Results[0].DocumentPath)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMissesTotal))

	hits, misses, enabled := s.CacheStats()
	assert.True(t, enabled)
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)

	require.NoError(t, s.InvalidateCache(ctx))
	assert.Empty(t, store.data)
}

func TestEventsAndJournal(t *testing.T) {
	tracker := &recordingTracker{}
	j := &recordingJournal{}
	s, _ := newTestService(t, Options{Tracker: tracker, Journal: j})
	ctx := context.Background()

	reg, err := s.Register(ctx, "peer")
	require.NoError(t, err)
	submit(t, s, reg.ClientID, "/p", map[string]int64{"term": 1})
	_, err = s.Search(ctx, &proto.SearchRequest{Terms: []string{"term"}})
	require.NoError(t, err)
	_, err = s.Deregister(ctx, &proto.DeregisterRequest{ClientID: reg.ClientID})
	require.NoError(t, err)

	assert.Equal(t, []string{"session", "index", "search", "session"}, tracker.keys)
	require.Len(t, j.entries, 2)
	assert.Equal(t, journal.EventRegistered, j.entries[0].Event)
	assert.Equal(t, "peer", j.entries[0].Address)
	assert.Equal(t, journal.EventDeregistered, j.entries[1].Event)
}

func TestJournalFailureDoesNotFailRegister(t *testing.T) {
	j := &recordingJournal{err: fmt.Errorf("db down")}
	s, _ := newTestService(t, Options{Journal: j})
	resp, err := s.Register(context.Background(), "peer")
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.ClientID)
}

func TestShutdownTriggersCallbackOnce(t *testing.T) {
	calls := make(chan string, 2)
	s, _ := newTestService(t, Options{OnShutdown: func(reason string) { calls <- reason }})

	ack, err := s.Shutdown(context.Background(), &proto.ShutdownRequest{Reason: "maintenance"})
	require.NoError(t, err)
	assert.Equal(t, "shutting down", ack.Message)
	_, err = s.Shutdown(context.Background(), &proto.ShutdownRequest{Reason: "again"})
	require.NoError(t, err)

	select {
	case reason := <-calls:
		assert.Equal(t, "maintenance", reason)
	case <-time.After(time.Second):
		t.Fatal("shutdown callback not invoked")
	}
	select {
	case reason := <-calls:
		t.Fatalf("callback invoked twice, second reason %q", reason)
	case <-time.After(50 * time.Millisecond):
	}
}

func startRPC(t *testing.T, s *Service) (*rpc.Server, string) {
	t.Helper()
	srv := rpc.NewServer()
	s.RegisterHandlers(srv)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.ServeListener(ln)
	<-srv.Ready()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv, ln.Addr().String()
}

func TestRemoteOperationsEndToEnd(t *testing.T) {
	shutdown := make(chan string, 1)
	s, m := newTestService(t, Options{OnShutdown: func(reason string) { shutdown <- reason }})
	srv, addr := startRPC(t, s)
	assert.Equal(t, 5, srv.MethodCount())

	ctx := context.Background()
	client, err := rpc.Dial(ctx, addr)
	require.NoError(t, err)
	defer client.Close()

	var reg proto.RegisterResponse
	require.NoError(t, client.Call(ctx, proto.MethodRegister, &proto.RegisterRequest{}, &reg))
	assert.Equal(t, int64(1), reg.ClientID)
	sessions := s.ListSessions()
	require.Len(t, sessions, 1)
	assert.True(t, strings.HasPrefix(sessions[0].Address, "127.0.0.1:"), sessions[0].Address)

	var idx proto.IndexResponse
	require.NoError(t, client.Call(ctx, proto.MethodIndex, &proto.IndexRequest{
		ClientID:        reg.ClientID,
		DocumentPath:    "/corpus/one.txt",
		WordFrequencies: map[string]int64{"distortion": 4, "adaptation": 1},
	}, &idx))
	assert.Equal(t, 2, idx.IndexedTerms)

	var res proto.SearchResponse
	require.NoError(t, client.Call(ctx, proto.MethodSearch, &proto.SearchRequest{Terms: []string{"distortion", "adaptation"}}, &res))
	require.Len(t, res.Results, 1)
	assert.Equal(t, proto.SearchResult{ClientID: 1, DocumentPath: "/corpus/one.txt", Frequency: 5}, res.Results[0])

	err = client.Call(ctx, proto.MethodIndex, &proto.IndexRequest{DocumentPath: "/x"}, &idx)
	var remote *rpc.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	var ack proto.Ack
	require.NoError(t, client.Call(ctx, proto.MethodDeregister, &proto.DeregisterRequest{ClientID: reg.ClientID}, &ack))
	assert.Empty(t, s.ListSessions())

	require.NoError(t, client.Call(ctx, proto.MethodShutdown, &proto.ShutdownRequest{Reason: "test"}, &ack))
	assert.Equal(t, "shutting down", ack.Message)
	select {
	case reason := <-shutdown:
		assert.Equal(t, "test", reason)
	case <-time.After(time.Second):
		t.Fatal("shutdown callback not invoked")
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCCallsTotal.WithLabelValues(proto.MethodRegister, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCCallsTotal.WithLabelValues(proto.MethodIndex, "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RPCCallsInFlight))
}

func TestConcurrentClientsIndexDistinctDocuments(t *testing.T) {
	s, _ := newTestService(t, Options{})
	_, addr := startRPC(t, s)
	ctx := context.Background()

	const clients, docs = 4, 25
	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for c := 0; c < clients; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			cl, err := rpc.Dial(ctx, addr)
			if err != nil {
				errs <- err
				return
			}
			defer cl.Close()
			var reg proto.RegisterResponse
			if err := cl.Call(ctx, proto.MethodRegister, &proto.RegisterRequest{}, &reg); err != nil {
				errs <- err
				return
			}
			for d := 0; d < docs; d++ {
				var resp proto.IndexResponse
				req := &proto.IndexRequest{
					ClientID:        reg.ClientID,
					DocumentPath:    fmt.Sprintf("/client%d/doc%d", c, d),
					WordFrequencies: map[string]int64{"everywhere": 1},
				}
				if err := cl.Call(ctx, proto.MethodIndex, req, &resp); err != nil {
					errs <- err
					return
				}
			}
		}(c)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stats := s.Stats()
	assert.Equal(t, clients*docs, stats.Documents)
	assert.Equal(t, int64(clients*docs), stats.Postings)
	assert.Equal(t, clients, stats.ActiveSessions)

	out, err := s.Search(ctx, &proto.SearchRequest{Terms: []string{"everywhere"}})
	require.NoError(t, err)
	assert.Equal(t, clients*docs, out.TotalResults)
	assert.Len(t, out.Results, 10)
}
