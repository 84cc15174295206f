package transcode_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hbomb79/batchconv/internal/transcode"
	"github.com/hbomb79/batchconv/pkg/logger"
	"gotest.tools/v3/fs"
)

var errStubConversion = errors.New("stub: conversion failed")

func init() {
	logger.SetMinLoggingLevel(logger.WARNING.Level())
}

// stubConverter records how it is used by a Job. If block is non-nil each
// conversion waits for it to be closed (or for its context to be cancelled).
type stubConverter struct {
	checkErr error
	failFor  map[string]bool
	block    chan struct{}
	started  chan string
	delay    time.Duration

	active atomic.Int32
	peak   atomic.Int32
	calls  atomic.Int32
}

func (stub *stubConverter) Check(context.Context) error { return stub.checkErr }

func (stub *stubConverter) Convert(ctx context.Context, req transcode.Request) error {
	n := stub.active.Add(1)
	defer stub.active.Add(-1)
	for {
		peak := stub.peak.Load()
		if n <= peak || stub.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	stub.calls.Add(1)
	if stub.started != nil {
		stub.started <- req.SourcePath
	}

	if stub.block != nil {
		select {
		case <-stub.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if stub.delay > 0 {
		time.Sleep(stub.delay)
	}

	if stub.failFor[filepath.Base(req.SourcePath)] {
		return errStubConversion
	}

	return os.WriteFile(req.DestinationPath, []byte("converted"), 0o644)
}

// sourceTree creates a directory containing n mp3 files spread over
// a few nested directories, along with some files that should be ignored.
func sourceTree(t *testing.T, n int) string {
	discs := make([][]fs.PathOp, 3)
	for i := 0; i < n; i++ {
		discs[i%3] = append(discs[i%3], fs.WithFile(fmt.Sprintf("track-%02d.mp3", i), "audio"))
	}

	ops := []fs.PathOp{fs.WithFile("cover.jpg", ""), fs.WithFile("notes.txt", "")}
	for i, files := range discs {
		ops = append(ops, fs.WithDir(fmt.Sprintf("disc-%d", i), files...))
	}

	return fs.NewDir(t, "source", ops...).Path()
}

func newJob(t *testing.T, config transcode.JobConfig, converter transcode.Converter, opts ...transcode.JobOption) *transcode.Job {
	job, err := transcode.NewJob(config, converter, nil, opts...)
	if err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	return job
}

func countStatus(tasks []transcode.TaskSnapshot, status transcode.TaskStatus) int {
	n := 0
	for _, task := range tasks {
		if task.Status == status {
			n++
		}
	}

	return n
}

func waitForStarts(t *testing.T, started <-chan string, n int) {
	for i := 0; i < n; i++ {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for conversion %d of %d to start", i+1, n)
		}
	}
}
