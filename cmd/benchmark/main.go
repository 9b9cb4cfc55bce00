package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/logger"
)

type Config struct {
	Client   config.ClientConfig
	Clients  int
	Datasets []string
	Query    string
	Repeat   int
}

type Stats struct {
	documents atomic.Int64
	bytesRead atomic.Int64
	failed    atomic.Int64
	perClient []indexer.IndexResult

	latencies   []time.Duration
	latenciesMu sync.Mutex
}

func main() {
	serverAddr := flag.String("server", "localhost:12345", "retrieval server address")
	clients := flag.Int("clients", 2, "number of concurrent indexing clients")
	datasetRoot := flag.String("dataset", "datasets/dataset1", "directory holding one subdirectory per client")
	query := flag.String("query", "distortion AND adaptation", "query run after indexing")
	repeat := flag.Int("repeat", 1, "number of times the query is run")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logger.SetupWriter(os.Stderr, *logLevel, "text")

	datasets, err := clientDatasets(*datasetRoot, *clients)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dataset: %v\n", err)
		os.Exit(1)
	}

	cfg := Config{
		Client: config.ClientConfig{
			ServerAddr:  *serverAddr,
			DialTimeout: 5 * time.Second,
			CallTimeout: 30 * time.Second,
		},
		Clients:  *clients,
		Datasets: datasets,
		Query:    *query,
		Repeat:   max(*repeat, 1),
	}

	fmt.Println("=== Retrieval Engine Benchmark ===")
	fmt.Printf("Server:   %s\n", cfg.Client.ServerAddr)
	fmt.Printf("Clients:  %d\n", cfg.Clients)
	fmt.Printf("Query:    %q x%d\n", cfg.Query, cfg.Repeat)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := &Stats{perClient: make([]indexer.IndexResult, cfg.Clients)}
	elapsed, err := runIndexing(ctx, cfg, stats)
	if err != nil {
		fmt.Fprintf(os.Stderr, "indexing failed: %v\n", err)
		os.Exit(1)
	}
	printIndexReport(stats, cfg, elapsed)

	if err := runQueries(ctx, cfg, stats); err != nil {
		fmt.Fprintf(os.Stderr, "search failed: %v\n", err)
		os.Exit(1)
	}
	printLatencyReport(stats)
}

// clientDatasets maps client i to root/client_<i+1>. When root has no such
// subdirectories every client indexes root itself.
func clientDatasets(root string, n int) ([]string, error) {
	if n < 1 {
		return nil, fmt.Errorf("clients must be at least 1, got %d", n)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	dirs := make([]string, n)
	for i := range dirs {
		dir := filepath.Join(root, fmt.Sprintf("client_%d", i+1))
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			dirs[i] = dir
		} else {
			dirs[i] = root
		}
	}
	return dirs, nil
}

// runIndexing connects every client, then indexes all datasets in parallel.
// The returned duration covers the parallel indexing phase only.
func runIndexing(ctx context.Context, cfg Config, stats *Stats) (time.Duration, error) {
	engines := make([]*indexer.Engine, cfg.Clients)
	for i := range engines {
		e := indexer.NewEngine(cfg.Client)
		if err := e.Connect(ctx, ""); err != nil {
			return 0, fmt.Errorf("client %d: %w", i+1, err)
		}
		defer e.Disconnect(context.WithoutCancel(ctx))
		engines[i] = e
	}

	fmt.Print("Indexing")
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i, e := range engines {
		i, e := i, e
		g.Go(func() error {
			res, err := e.IndexFolder(gctx, cfg.Datasets[i])
			if err != nil {
				return fmt.Errorf("client %d (%s): %w", e.ClientID(), cfg.Datasets[i], err)
			}
			stats.perClient[i] = res
			stats.documents.Add(int64(res.Documents))
			stats.bytesRead.Add(res.BytesRead)
			stats.failed.Add(int64(res.Failed))
			fmt.Print(".")
			return nil
		})
	}
	err := g.Wait()
	elapsed := time.Since(start)
	fmt.Println(" done!")
	fmt.Println()
	return elapsed, err
}

func runQueries(ctx context.Context, cfg Config, stats *Stats) error {
	e := indexer.NewEngine(cfg.Client)
	if err := e.Connect(ctx, ""); err != nil {
		return err
	}
	defer e.Disconnect(context.WithoutCancel(ctx))

	for i := 0; i < cfg.Repeat; i++ {
		start := time.Now()
		resp, err := e.Search(ctx, cfg.Query)
		if err != nil {
			return err
		}
		stats.latenciesMu.Lock()
		stats.latencies = append(stats.latencies, time.Since(start))
		stats.latenciesMu.Unlock()

		if i == 0 {
			fmt.Println("=== Search ===")
			fmt.Printf("Server time: %.3fs\n", resp.TimeTaken)
			fmt.Printf("Results (top %d out of %d):\n", len(resp.Results), resp.TotalResults)
			for _, r := range resp.Results {
				fmt.Printf("* Client %d:%s:%d\n", r.ClientID, r.DocumentPath, r.Frequency)
			}
			fmt.Println()
		}
	}
	return nil
}

func printIndexReport(stats *Stats, cfg Config, elapsed time.Duration) {
	bytesRead := stats.bytesRead.Load()

	fmt.Println("=== Indexing ===")
	fmt.Printf("Documents:   %d\n", stats.documents.Load())
	fmt.Printf("Failed:      %d\n", stats.failed.Load())
	fmt.Printf("Bytes:       %d\n", bytesRead)
	fmt.Printf("Elapsed:     %.3fs\n", elapsed.Seconds())
	if secs := elapsed.Seconds(); secs > 0 {
		fmt.Printf("Throughput:  %.2f MB/s\n", float64(bytesRead)/(1024*1024)/secs)
	}
	fmt.Println()
	for i, res := range stats.perClient {
		fmt.Printf("  client %d  %-40s %8d bytes  %.3fs\n",
			i+1, shorten(cfg.Datasets[i], 40), res.BytesRead, res.Elapsed.Seconds())
	}
	fmt.Println()
}

func printLatencyReport(stats *Stats) {
	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) < 2 {
		return
	}
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	fmt.Println("=== Query Latency ===")
	fmt.Printf("Min:    %s\n", latencies[0])
	fmt.Printf("Avg:    %s\n", sum/time.Duration(len(latencies)))
	fmt.Printf("P50:    %s\n", percentile(latencies, 50))
	fmt.Printf("P95:    %s\n", percentile(latencies, 95))
	fmt.Printf("P99:    %s\n", percentile(latencies, 99))
	fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n+3:]
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags]\n\n%s\n\n",
			filepath.Base(os.Args[0]),
			strings.TrimSpace(`
Starts -clients sessions against a running server, indexes one dataset
directory per client in parallel and then runs -query.`))
		flag.PrintDefaults()
	}
}
