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

package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/numaproj/batchq"
	"github.com/numaproj/batchq/pkg/metrics"
	"github.com/numaproj/batchq/pkg/replay"
	"github.com/numaproj/batchq/pkg/shared/logging"
)

const shutdownTimeout = 10 * time.Second

func NewRunCommand() *cobra.Command {
	var configFile string

	command := &cobra.Command{
		Use:   "run",
		Short: "Batch newline-delimited JSON records read from stdin",
		Long: "Reads one JSON record per line from stdin, groups records by a JSON path, and writes one JSON line " +
			"per batch to stdout. A batch is written when a group collects buffer-size records, and the rest of every " +
			"group is written on each scheduled flush and when the input ends.",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd, configFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration, %w", err)
			}
			cfg := replay.Config{
				Name:          v.GetString("name"),
				BufferSize:    v.GetInt("buffer-size"),
				GroupBy:       v.GetString("group-by"),
				FlushSchedule: v.GetString("flush-schedule"),
			}
			runner, err := replay.NewRunner(cfg, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}

			log := logging.NewLogger().With("queue", cfg.Name)
			version := batchq.GetVersion()
			log.Infow("Starting batchq", "version", version)
			metrics.BuildInfo.WithLabelValues(version.Version, version.Platform).Set(1)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, log)

			var shutdown func(context.Context) error
			if port := v.GetInt("metrics-port"); port > 0 {
				shutdown, err = metrics.NewMetricsServer(
					metrics.WithPort(port),
					metrics.WithHealthCheckExecutor(func() error { return ctx.Err() }),
				).Start(ctx)
				if err != nil {
					return fmt.Errorf("failed to start metrics server, %w", err)
				}
			}

			summary, runErr := runner.Run(ctx)
			if runErr == nil {
				log.Infow("Completed", zap.Int("submitted", summary.Submitted), zap.Int("resolved", summary.Resolved),
					zap.Int("rejected", summary.Rejected), zap.Int("skipped", summary.Skipped), zap.Int("batches", summary.Batches))
			}
			if shutdown != nil {
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				runErr = multierr.Append(runErr, shutdown(sctx))
			}
			return runErr
		},
	}
	command.Flags().StringVar(&configFile, "config", "", "Optional config file, e.g. batchq.yaml, with the same keys as the flags")
	command.Flags().String("name", "batchq", "Queue name, used in logs and metric labels")
	command.Flags().Int("buffer-size", 100, "Number of records per full batch")
	command.Flags().String("group-by", "type", "JSON path of the group key within each record")
	command.Flags().String("flush-schedule", "@every 1s", "Cron schedule of periodic flushes, empty to only flush at the end of the input")
	command.Flags().Int("metrics-port", 0, "Port of the metrics server, 0 disables it")
	return command
}
