package admin

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/cloo-solutions/supportkb/internal/jobs"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// WorkerCmd returns the worker command
func WorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the embedding job workers",
		Long: `Run the embedding job workers without the API server.

Pending jobs are claimed by polling the database. When SUPPORTKB_KAFKA_BROKERS
is set, jobs announced on the topic are also processed as they arrive.`,
		RunE: runWorker,
	}

	cmd.Flags().Bool("once", false, "Process a single batch of pending jobs and exit")

	return cmd
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if once, _ := cmd.Flags().GetBool("once"); once {
		return a.worker.ProcessJobs(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	a.startWorkers(gctx, g)
	return g.Wait()
}

// startWorkers runs the polling loop and, when configured, the Kafka consumer
// until ctx is done.
func (a *app) startWorkers(ctx context.Context, g *errgroup.Group) {
	poller := jobs.NewWorker(a.worker, a.cfg.PollingInterval, a.logger)
	g.Go(func() error {
		poller.Start(ctx)
		return nil
	})

	if a.cfg.HasKafka() {
		consumer := jobs.NewKafkaConsumer(a.kafkaConfig(), a.worker, a.logger)
		g.Go(func() error {
			return consumer.Run(ctx)
		})
	}
}
