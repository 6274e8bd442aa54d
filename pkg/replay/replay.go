/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package replay drives an engine from a stream of newline-delimited JSON records. It plays both external roles
// around the engine: the producer, which submits every record and waits for its result, and the consumer, which
// writes every emitted batch as one JSON line and settles the handles of the batch.
package replay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/robfig/cron/v3"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/numaproj/batchq/pkg/completion"
	"github.com/numaproj/batchq/pkg/engine"
	"github.com/numaproj/batchq/pkg/shared/logging"
)

const (
	// maxLineSize bounds a single input record.
	maxLineSize = 1 << 20
	// closeTimeout bounds how long the engine may take to drain once the input ended or the run was cancelled.
	closeTimeout = 10 * time.Second
)

// Config holds the replay settings.
type Config struct {
	// Name of the engine, used in metrics and logs
	Name string
	// BufferSize is the number of records per full batch
	BufferSize int
	// GroupBy is the gjson path of the group key within each record
	GroupBy string
	// FlushSchedule is a cron spec, e.g. "@every 1s", for periodic flushes. Empty disables periodic flushes; the
	// remaining records are flushed when the input ends.
	FlushSchedule string
}

// Summary counts what happened during a replay.
type Summary struct {
	Submitted int
	Skipped   int
	Resolved  int
	Rejected  int
	Batches   int
}

// output is the JSON line written for every batch.
type output struct {
	Group   string            `json:"group"`
	Window  uint64            `json:"window"`
	Trigger string            `json:"trigger"`
	Items   []json.RawMessage `json:"items"`
}

type batch = engine.Batch[string, string, int]

// Runner replays one input stream.
type Runner struct {
	cfg Config
	in  io.Reader
	out io.Writer
}

// NewRunner validates cfg and returns a runner reading records from in and writing batches to out.
func NewRunner(cfg Config, in io.Reader, out io.Writer) (*Runner, error) {
	if cfg.BufferSize < 1 {
		return nil, fmt.Errorf("buffer size must be positive, got %d", cfg.BufferSize)
	}
	if cfg.GroupBy == "" {
		return nil, fmt.Errorf("group-by path is required")
	}
	if cfg.FlushSchedule != "" {
		if _, err := cron.ParseStandard(cfg.FlushSchedule); err != nil {
			return nil, fmt.Errorf("invalid flush schedule %q, %w", cfg.FlushSchedule, err)
		}
	}
	if cfg.Name == "" {
		cfg.Name = engine.DefaultName
	}
	return &Runner{cfg: cfg, in: in, out: out}, nil
}

// Run replays the whole input. It returns once every record was emitted and settled, or on the first error.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	log := logging.FromContext(ctx).Named("replay")
	var summary Summary

	keyFn := func(record string) string {
		return gjson.Get(record, r.cfg.GroupBy).String()
	}
	eng, err := engine.New[string, string, int](ctx, keyFn, r.cfg.BufferSize, engine.WithName(r.cfg.Name))
	if err != nil {
		return summary, err
	}
	// the consumer must be attached before the first submission
	sub := eng.Subscribe()

	scheduler := cron.New()
	if r.cfg.FlushSchedule != "" {
		if _, err := scheduler.AddFunc(r.cfg.FlushSchedule, eng.Flush); err != nil {
			_ = eng.Close(ctx)
			return summary, fmt.Errorf("failed to schedule flushes, %w", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	batches := atomic.NewInt64(0)
	var deferreds []*completion.Deferred[int]

	g, gctx := errgroup.WithContext(ctx)
	lines, scanErr := r.scan(gctx)
	g.Go(func() error {
		return r.consume(sub.C(), batches)
	})
	g.Go(func() error {
		defer func() {
			// ctx may already be cancelled, closing still has to flush and drain
			cctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := eng.Close(cctx); err != nil {
				log.Errorw("Failed to close engine", zap.Error(err))
			}
		}()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case line, ok := <-lines:
				if !ok {
					return *scanErr
				}
				if !gjson.Valid(line) {
					if len(line) > 0 {
						log.Warnw("Skipping invalid JSON record", zap.Int("record", summary.Submitted+summary.Skipped))
					}
					summary.Skipped++
					continue
				}
				deferreds = append(deferreds, eng.Submit(line))
				summary.Submitted++
			}
		}
	})
	if err := g.Wait(); err != nil {
		return summary, err
	}

	for _, d := range deferreds {
		if _, err := d.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Rejected++
			continue
		}
		summary.Resolved++
	}
	summary.Batches = int(batches.Load())
	log.Infow("Replay finished", zap.Int("submitted", summary.Submitted), zap.Int("skipped", summary.Skipped),
		zap.Int("batches", summary.Batches), zap.Int("rejected", summary.Rejected))
	return summary, nil
}

// scan reads lines from the input in its own goroutine, so that a cancelled run does not wait for a blocked read.
// The channel is closed at the end of the input, after which the returned error holds the read error, if any. On
// cancellation the goroutine exits with its next line.
func (r *Runner) scan(ctx context.Context) (<-chan string, *error) {
	lines := make(chan string)
	var err error
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		err = scanner.Err()
	}()
	return lines, &err
}

// consume writes every batch and settles its handles: each item resolves with its position in the batch, or is
// rejected if the batch could not be written.
func (r *Runner) consume(batches <-chan batch, count *atomic.Int64) error {
	enc := json.NewEncoder(r.out)
	var writeErr error
	for b := range batches {
		count.Inc()
		o := output{
			Group:   b.Group,
			Window:  uint64(b.Window),
			Trigger: b.Trigger.String(),
			Items:   make([]json.RawMessage, len(b.Items)),
		}
		for i, h := range b.Items {
			o.Items[i] = json.RawMessage(h.Payload())
		}
		err := writeErr
		if err == nil {
			err = enc.Encode(o)
		}
		for i, h := range b.Items {
			if err != nil {
				_ = h.Reject(fmt.Errorf("failed to write batch, %w", err))
				continue
			}
			_ = h.Resolve(i)
		}
		// keep draining after a write error so that every handle settles
		if err != nil && writeErr == nil {
			writeErr = err
		}
	}
	return writeErr
}
