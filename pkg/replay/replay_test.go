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

package replay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/numaproj/batchq/pkg/shared/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func decode(t *testing.T, out string) []output {
	t.Helper()
	var batches []output
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var o output
		require.NoError(t, json.Unmarshal([]byte(line), &o))
		batches = append(batches, o)
	}
	return batches
}

func TestNewRunner_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "zero_buffer", cfg: Config{BufferSize: 0, GroupBy: "type"}},
		{name: "missing_group_by", cfg: Config{BufferSize: 2}},
		{name: "bad_schedule", cfg: Config{BufferSize: 2, GroupBy: "type", FlushSchedule: "every now and then"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRunner(tt.cfg, strings.NewReader(""), &bytes.Buffer{})
			assert.Error(t, err)
		})
	}

	r, err := NewRunner(Config{BufferSize: 2, GroupBy: "type", FlushSchedule: "@every 1s"}, strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "default", r.cfg.Name)
}

func TestRunner_Run(t *testing.T) {
	in := strings.Join([]string{
		`{"type":"foo","n":1}`,
		`{"type":"bar","n":2}`,
		`{"type":"foo","n":3}`,
		``,
		`not json`,
		`{"type":"foo","n":4}`,
		`{"type":"hugo","n":5}`,
	}, "\n")
	var out bytes.Buffer
	r, err := NewRunner(Config{Name: "replay-run", BufferSize: 2, GroupBy: "type"}, strings.NewReader(in), &out)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	summary, err := r.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, Summary{Submitted: 5, Skipped: 2, Resolved: 5, Rejected: 0, Batches: 4}, summary)

	batches := decode(t, out.String())
	require.Len(t, batches, 4)

	assert.Equal(t, "foo", batches[0].Group)
	assert.Equal(t, "full", batches[0].Trigger)
	assert.Equal(t, uint64(0), batches[0].Window)
	assert.JSONEq(t, `{"type":"foo","n":1}`, string(batches[0].Items[0]))
	assert.JSONEq(t, `{"type":"foo","n":3}`, string(batches[0].Items[1]))

	// the rest is flushed in first-seen group order when the input ends
	var groups []string
	for _, b := range batches[1:] {
		assert.Equal(t, "flush", b.Trigger)
		groups = append(groups, b.Group)
	}
	assert.Equal(t, []string{"foo", "bar", "hugo"}, groups)
}

func TestRunner_Run_NestedGroupPath(t *testing.T) {
	in := `{"meta":{"tenant":"a"}}` + "\n" + `{"meta":{"tenant":"b"}}` + "\n" + `{"meta":{"tenant":"a"}}`
	var out bytes.Buffer
	r, err := NewRunner(Config{BufferSize: 2, GroupBy: "meta.tenant"}, strings.NewReader(in), &out)
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Batches)

	batches := decode(t, out.String())
	require.Len(t, batches, 2)
	assert.Equal(t, "a", batches[0].Group)
	assert.Len(t, batches[0].Items, 2)
	assert.Equal(t, "b", batches[1].Group)
	assert.Len(t, batches[1].Items, 1)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestRunner_Run_WriteError(t *testing.T) {
	in := `{"type":"foo"}` + "\n" + `{"type":"foo"}` + "\n" + `{"type":"bar"}`
	r, err := NewRunner(Config{BufferSize: 2, GroupBy: "type"}, strings.NewReader(in), failingWriter{})
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	assert.ErrorContains(t, err, "disk full")
}

func TestRunner_Run_EmptyInput(t *testing.T) {
	var out bytes.Buffer
	r, err := NewRunner(Config{BufferSize: 3, GroupBy: "type"}, strings.NewReader(""), &out)
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.Empty(t, out.String())
}

// lineWriter hands every written batch line to the test as it is written.
type lineWriter struct {
	lines chan output
}

func (w *lineWriter) Write(p []byte) (int, error) {
	var o output
	if err := json.Unmarshal(p, &o); err != nil {
		return 0, err
	}
	w.lines <- o
	return len(p), nil
}

func nextLine(t *testing.T, w *lineWriter, timeout time.Duration) output {
	t.Helper()
	select {
	case o := <-w.lines:
		return o
	case <-time.After(timeout):
		require.FailNow(t, "timed out waiting for a batch line")
	}
	return output{}
}

func TestRunner_Run_ScheduledFlush(t *testing.T) {
	pr, pw := io.Pipe()
	out := &lineWriter{lines: make(chan output, 10)}
	r, err := NewRunner(Config{Name: "replay-scheduled", BufferSize: 10, GroupBy: "type", FlushSchedule: "@every 1s"}, pr, out)
	require.NoError(t, err)

	type result struct {
		summary Summary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		summary, err := r.Run(context.Background())
		done <- result{summary, err}
	}()

	_, err = io.WriteString(pw, `{"type":"a","n":1}`+"\n")
	require.NoError(t, err)

	// the input is still open, only the schedule can emit this batch
	first := nextLine(t, out, 3*time.Second)
	assert.Equal(t, "flush", first.Trigger)
	assert.Equal(t, uint64(0), first.Window)
	assert.Equal(t, "a", first.Group)
	require.Len(t, first.Items, 1)

	_, err = io.WriteString(pw, `{"type":"a","n":2}`+"\n")
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	second := nextLine(t, out, 3*time.Second)
	assert.Equal(t, "flush", second.Trigger)
	assert.GreaterOrEqual(t, second.Window, uint64(1))
	assert.JSONEq(t, `{"type":"a","n":2}`, string(second.Items[0]))

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, 2, res.summary.Resolved)
		assert.Equal(t, 2, res.summary.Batches)
	case <-time.After(3 * time.Second):
		t.Fatal("replay did not finish after the input ended")
	}
}

func TestRunner_Run_CancelWhileReading(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), zap.New(core).Sugar()))
	defer cancel()

	pr, pw := io.Pipe()
	defer pw.Close()
	var out bytes.Buffer
	r, err := NewRunner(Config{Name: "replay-cancel", BufferSize: 10, GroupBy: "type"}, pr, &out)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(ctx)
		done <- err
	}()

	// the input stays open, the reader blocks after this line
	_, err = io.WriteString(pw, `{"type":"a"}`+"\n")
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not return after cancellation")
	}
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len(), "closing a cancelled replay logged an error")
	// submitted records are still flushed on the way out
	assert.Contains(t, out.String(), `"group":"a"`)
}
