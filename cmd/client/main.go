package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/proto"
)

type options struct {
	configPath string
	serverAddr string
	logLevel   string
	cfg        *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "fr-client",
		Short: "Index local folders into a retrieval server and search them.",
		Long: `Crawls local directory trees, submits per-document term frequencies to a
retrieval server and runs AND queries against the shared index.

  fr-client index ./dataset
  fr-client search "distortion AND adaptation"
  fr-client shell`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			logger.SetupWriter(os.Stderr, opts.logLevel, "text")
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.serverAddr != "" {
				cfg.Client.ServerAddr = opts.serverAddr
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/development.yaml", "path to config file")
	cmd.PersistentFlags().StringVarP(&opts.serverAddr, "server", "s", "", "server address (host:port)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newIndexCmd(opts),
		newSearchCmd(opts),
		newShutdownCmd(opts),
		newShellCmd(opts),
	)
	return cmd
}

func newIndexCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "index <dir> [dir...]",
		Short: "Index one or more directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), opts, func(e *indexer.Engine) error {
				for _, dir := range args {
					res, err := e.IndexFolder(cmd.Context(), dir)
					if err != nil {
						return err
					}
					printIndexResult(cmd.OutOrStdout(), res)
				}
				return nil
			})
		},
	}
}

func newSearchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: `Run an AND query, e.g. "alpha AND beta"`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), opts, func(e *indexer.Engine) error {
				resp, err := e.Search(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				printSearchResult(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}
}

func newShutdownCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown [reason]",
		Short: "Ask the server to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			reason := strings.Join(args, " ")
			if reason == "" {
				reason = "requested by client"
			}
			return withEngine(cmd.Context(), opts, func(e *indexer.Engine) error {
				if err := e.ShutdownServer(cmd.Context(), reason); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Server shutdown requested")
				return nil
			})
		},
	}
}

func newShellCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell (connect, get_info, index, search, quit)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := indexer.NewEngine(opts.cfg.Client)
			return runShell(cmd.Context(), e, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// withEngine runs fn inside one session with the configured server.
func withEngine(ctx context.Context, opts *options, fn func(e *indexer.Engine) error) error {
	e := indexer.NewEngine(opts.cfg.Client)
	if err := e.Connect(ctx, ""); err != nil {
		return err
	}
	defer e.Disconnect(context.WithoutCancel(ctx))
	return fn(e)
}

func printIndexResult(w io.Writer, res indexer.IndexResult) {
	fmt.Fprintf(w, "Completed indexing %d bytes of data\n", res.BytesRead)
	fmt.Fprintf(w, "Completed indexing in %.3f seconds (%d documents, %d skipped, %d failed, %.2f MB/s)\n",
		res.Elapsed.Seconds(), res.Documents, res.Skipped, res.Failed, res.Throughput())
}

func printSearchResult(w io.Writer, resp *proto.SearchResponse) {
	fmt.Fprintf(w, "Search completed in %.3f seconds\n", resp.TimeTaken)
	fmt.Fprintf(w, "Search results (top %d out of %d):\n", len(resp.Results), resp.TotalResults)
	for _, r := range resp.Results {
		fmt.Fprintf(w, "* Client %d:%s:%d\n", r.ClientID, r.DocumentPath, r.Frequency)
	}
}
