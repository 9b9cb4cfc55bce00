// Package indexer is the client side of the retrieval engine. An Engine
// holds one session with the server, crawls local directories into index
// submissions and runs AND queries against the shared index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/indexer/crawler"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/rpc"
)

// IndexResult reports one IndexFolder run.
type IndexResult struct {
	crawler.Result
	Elapsed time.Duration
}

// Throughput returns megabytes read per second.
func (r IndexResult) Throughput() float64 {
	secs := r.Elapsed.Seconds()
	if secs == 0 {
		return 0
	}
	return float64(r.BytesRead) / (1024 * 1024) / secs
}

type Engine struct {
	cfg      config.ClientConfig
	crawler  *crawler.Crawler
	mu       sync.Mutex
	client   *rpc.Client
	clientID int64
	logger   *slog.Logger
}

func NewEngine(cfg config.ClientConfig) *Engine {
	return &Engine{
		cfg:     cfg,
		crawler: crawler.New(),
		logger:  slog.Default().With("component", "client-engine"),
	}
}

// Connect dials addr (the configured server when empty) and registers a new
// session. An existing session is closed first.
func (e *Engine) Connect(ctx context.Context, addr string) error {
	if addr == "" {
		addr = e.cfg.ServerAddr
	}
	e.Disconnect(ctx)

	dialCtx := ctx
	if e.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, e.cfg.DialTimeout)
		defer cancel()
	}
	client, err := rpc.Dial(dialCtx, addr)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}

	var resp proto.RegisterResponse
	if err := e.call(ctx, client, proto.MethodRegister, &proto.RegisterRequest{}, &resp); err != nil {
		client.Close()
		return fmt.Errorf("registering with %s: %w", addr, err)
	}

	e.mu.Lock()
	e.client = client
	e.clientID = resp.ClientID
	e.mu.Unlock()

	e.logger.Info("connected", "server", addr, "client_id", resp.ClientID)
	return nil
}

// ClientID returns the session id, or 0 when not connected.
func (e *Engine) ClientID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clientID
}

func (e *Engine) Connected() bool {
	return e.ClientID() != 0
}

// IndexFolder crawls root and submits every readable file. The byte count
// covers successfully read files only.
func (e *Engine) IndexFolder(ctx context.Context, root string) (IndexResult, error) {
	if !e.Connected() {
		return IndexResult{}, apperrors.ErrNotConnected
	}
	start := time.Now()
	res, err := e.crawler.Crawl(ctx, root, e)
	out := IndexResult{Result: res, Elapsed: time.Since(start)}
	if err != nil {
		return out, err
	}
	e.logger.Info("folder indexed",
		"root", root,
		"documents", res.Documents,
		"bytes", res.BytesRead,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"elapsed", out.Elapsed,
	)
	return out, nil
}

// Submit sends one document's term frequencies under the current session.
func (e *Engine) Submit(ctx context.Context, path string, freqs tokenizer.Frequencies) error {
	client, id, err := e.session()
	if err != nil {
		return err
	}
	req := &proto.IndexRequest{
		ClientID:        id,
		DocumentPath:    path,
		WordFrequencies: freqs,
	}
	var resp proto.IndexResponse
	if err := e.call(ctx, client, proto.MethodIndex, req, &resp); err != nil {
		return err
	}
	e.logger.Debug("document submitted", "path", path, "indexed_terms", resp.IndexedTerms)
	return nil
}

// Search splits query on AND and asks the server for the ranked matches.
// A query without terms returns an empty response without a remote call.
func (e *Engine) Search(ctx context.Context, query string) (*proto.SearchResponse, error) {
	return e.SearchTerms(ctx, parser.Parse(query).Terms, 0)
}

// SearchTerms queries already-split terms. A zero limit uses the server
// default.
func (e *Engine) SearchTerms(ctx context.Context, terms []string, limit int) (*proto.SearchResponse, error) {
	if len(terms) == 0 {
		return &proto.SearchResponse{Results: []proto.SearchResult{}}, nil
	}
	client, _, err := e.session()
	if err != nil {
		return nil, err
	}
	var resp proto.SearchResponse
	if err := e.call(ctx, client, proto.MethodSearch, &proto.SearchRequest{Terms: terms, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Disconnect deregisters and closes the connection. Failures are logged
// only; the local session is always dropped.
func (e *Engine) Disconnect(ctx context.Context) {
	e.mu.Lock()
	client, id := e.client, e.clientID
	e.client, e.clientID = nil, 0
	e.mu.Unlock()
	if client == nil {
		return
	}

	var ack proto.Ack
	if err := e.call(ctx, client, proto.MethodDeregister, &proto.DeregisterRequest{ClientID: id}, &ack); err != nil {
		e.logger.Warn("deregister failed", "client_id", id, "error", err)
	}
	if err := client.Close(); err != nil {
		e.logger.Debug("closing connection", "error", err)
	}
	e.logger.Info("disconnected", "client_id", id)
}

// ShutdownServer asks the server to tear itself down.
func (e *Engine) ShutdownServer(ctx context.Context, reason string) error {
	client, _, err := e.session()
	if err != nil {
		return err
	}
	var ack proto.Ack
	return e.call(ctx, client, proto.MethodShutdown, &proto.ShutdownRequest{Reason: reason}, &ack)
}

func (e *Engine) session() (*rpc.Client, int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil, 0, apperrors.ErrNotConnected
	}
	return e.client, e.clientID, nil
}

// call runs one remote call under the configured timeout. A failure that
// leaves the connection unusable also ends the session, so the error matches
// ErrNotConnected as well as its cause.
func (e *Engine) call(ctx context.Context, client *rpc.Client, method string, params, result any) error {
	err := resilience.WithTimeout(ctx, e.cfg.CallTimeout, method, func(ctx context.Context) error {
		return client.Call(ctx, method, params, result)
	})
	if err == nil || client.Err() == nil {
		return err
	}
	e.drop(client)
	if errors.Is(err, apperrors.ErrNotConnected) {
		return err
	}
	return fmt.Errorf("%w: connection lost: %w", apperrors.ErrNotConnected, err)
}

// drop forgets client if it still backs the current session.
func (e *Engine) drop(client *rpc.Client) {
	e.mu.Lock()
	current := e.client == client
	id := e.clientID
	if current {
		e.client, e.clientID = nil, 0
	}
	e.mu.Unlock()
	if !current {
		return
	}
	e.logger.Warn("session dropped after transport failure", "client_id", id, "error", client.Err())
	if err := client.Close(); err != nil {
		e.logger.Debug("closing connection", "error", err)
	}
}
