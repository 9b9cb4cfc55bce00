// Package crawler walks a directory tree on the client, extracts the term
// frequencies of every regular file and hands each document to a Submitter.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/errors"
)

// Submitter receives one document's term frequencies.
type Submitter interface {
	Submit(ctx context.Context, path string, freqs tokenizer.Frequencies) error
}

// SubmitFunc adapts a function to the Submitter interface.
type SubmitFunc func(ctx context.Context, path string, freqs tokenizer.Frequencies) error

func (f SubmitFunc) Submit(ctx context.Context, path string, freqs tokenizer.Frequencies) error {
	return f(ctx, path, freqs)
}

// Result summarises one crawl. BytesRead counts only files that were read
// successfully.
type Result struct {
	BytesRead int64
	Documents int
	Skipped   int
	Failed    int
}

type Crawler struct {
	logger *slog.Logger
}

func New() *Crawler {
	return &Crawler{
		logger: slog.Default().With("component", "crawler"),
	}
}

// Crawl walks root recursively. An invalid root fails with
// ErrInvalidDirectory before anything is submitted. Unreadable entries are
// logged and skipped; failed submissions are logged and counted. Context
// cancellation or a submission failing with ErrNotConnected stops the walk
// early.
func (c *Crawler) Crawl(ctx context.Context, root string, sub Submitter) (Result, error) {
	var res Result

	abs, err := filepath.Abs(root)
	if err != nil {
		return res, fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidDirectory, root, err)
	}
	// WalkDir does not descend into a symlinked root
	walkRoot, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return res, fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidDirectory, root, err)
	}
	info, err := os.Stat(walkRoot)
	if err != nil {
		return res, fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidDirectory, root, err)
	}
	if !info.IsDir() {
		return res, fmt.Errorf("%w: %s is not a directory", apperrors.ErrInvalidDirectory, root)
	}

	c.logger.Info("crawl started", "root", abs, "resolved", walkRoot)

	walkErr := filepath.WalkDir(walkRoot, func(walked string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		path := underRoot(abs, walkRoot, walked)
		if err != nil {
			c.logger.Warn("skipping unreadable entry", "path", path, "error", err)
			res.Skipped++
			if d != nil && d.IsDir() && walked != walkRoot {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			// linked files are indexed, linked directories are not followed
			target, err := os.Stat(walked)
			if err != nil {
				c.logger.Warn("skipping dangling link", "path", path, "error", err)
				res.Skipped++
				return nil
			}
			if !target.Mode().IsRegular() {
				c.logger.Debug("not following link", "path", path)
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}

		freqs, size, err := tokenizer.ExtractFile(walked)
		if err != nil {
			c.logger.Warn("skipping file", "path", path, "error", err)
			res.Skipped++
			return nil
		}
		res.BytesRead += size

		if err := sub.Submit(ctx, path, freqs); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			c.logger.Error("submission failed", "path", path, "error", err)
			res.Failed++
			if errors.Is(err, apperrors.ErrNotConnected) {
				return fmt.Errorf("submitting %s: %w", path, err)
			}
			return nil
		}
		res.Documents++
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, fs.SkipDir) {
		c.logger.Warn("crawl aborted", "root", abs, "error", walkErr)
		return res, fmt.Errorf("crawling %s: %w", abs, walkErr)
	}

	c.logger.Info("crawl completed",
		"root", abs,
		"documents", res.Documents,
		"bytes", res.BytesRead,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return res, nil
}

// underRoot reports walked, a path below the resolved root, relative to the
// root the caller asked for.
func underRoot(root, resolved, walked string) string {
	if root == resolved {
		return walked
	}
	rel, err := filepath.Rel(resolved, walked)
	if err != nil {
		return walked
	}
	return filepath.Join(root, rel)
}
