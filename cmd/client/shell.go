package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/indexer"
)

const shellHelp = `commands:
  connect [host port | host:port]   open a session (configured server by default)
  get_info                          show the session id
  index <dir>                       index a directory
  search <query>                    run an AND query
  quit                              close the session and exit`

// runShell reads commands from in until quit or EOF. Command errors are
// printed and the shell keeps going.
func runShell(ctx context.Context, e *indexer.Engine, in io.Reader, out io.Writer) error {
	defer e.Disconnect(context.WithoutCancel(ctx))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch name {
		case "connect":
			addr, err := shellAddr(rest)
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			if err := e.Connect(ctx, addr); err != nil {
				fmt.Fprintf(out, "Connection failed: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "Connected with client id %d\n", e.ClientID())
		case "get_info":
			if !e.Connected() {
				fmt.Fprintln(out, "Not connected")
				continue
			}
			fmt.Fprintf(out, "Client ID: %d\n", e.ClientID())
		case "index":
			if rest == "" {
				fmt.Fprintln(out, "usage: index <dir>")
				continue
			}
			res, err := e.IndexFolder(ctx, rest)
			if err != nil {
				fmt.Fprintf(out, "Indexing failed: %v\n", err)
				continue
			}
			printIndexResult(out, res)
		case "search":
			resp, err := e.Search(ctx, rest)
			if err != nil {
				fmt.Fprintf(out, "Search failed: %v\n", err)
				continue
			}
			printSearchResult(out, resp)
		case "quit", "exit":
			return nil
		case "help":
			fmt.Fprintln(out, shellHelp)
		default:
			fmt.Fprintf(out, "unrecognized command %q\n%s\n", name, shellHelp)
		}
	}
}

// shellAddr accepts "", "host:port" or "host port".
func shellAddr(args string) (string, error) {
	fields := strings.Fields(args)
	switch len(fields) {
	case 0:
		return "", nil
	case 1:
		return fields[0], nil
	case 2:
		return net.JoinHostPort(fields[0], fields[1]), nil
	default:
		return "", fmt.Errorf("usage: connect [host port | host:port]")
	}
}
