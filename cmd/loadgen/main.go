package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/lead-pipeline-core/internal/config"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/jetstream"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/model"
	"gitlab.com/timkado/api/lead-pipeline-core/internal/observer"
	"gitlab.com/timkado/api/lead-pipeline-core/pkg/logger"
)

const defaultBatchSize = 50

type options struct {
	natsURL        string
	owners         []string
	rate           int
	duration       time.Duration
	concurrency    int
	batchSize      int
	duplicateRatio float64
	phonePool      int
	metricsPort    int
	logLevel       string
}

// batchTask is one unit of work for the publishing pool.
type batchTask struct {
	Messages []outboundMessage
	Client   jetstream.ClientInterface
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Publish synthetic inbound WhatsApp messages to NATS",
		Long: `Publishes fake inbound messages on v1.inbound.whatsapp.<owner> at a
target rate. A share of messages repeat a recent messageId and senders are
drawn from a bounded phone pool, so both the replay path and lead matching
get traffic.

Example:
  loadgen --owners owner-1,owner-2 --rate 200 --duration 5m --duplicate-ratio 0.1`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	defaultOwners := []string{}
	if cfg.Ingestion.OwnerID != "" {
		defaultOwners = append(defaultOwners, cfg.Ingestion.OwnerID)
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.natsURL, "url", cfg.NATS.URL, "NATS server URL")
	flags.StringSliceVar(&opts.owners, "owners", defaultOwners, "Owner ids to publish for, round robin")
	flags.IntVar(&opts.rate, "rate", 100, "Target messages per second (total)")
	flags.DurationVar(&opts.duration, "duration", time.Minute, "Load test duration")
	flags.IntVar(&opts.concurrency, "concurrency", 10, "Number of concurrent publishers")
	flags.IntVar(&opts.batchSize, "batch-size", defaultBatchSize, "Messages handed to a publisher at once")
	flags.Float64Var(&opts.duplicateRatio, "duplicate-ratio", 0.05, "Share of messages that repeat a recent messageId")
	flags.IntVar(&opts.phonePool, "phone-pool", 1000, "Distinct sender phones, 0 for unbounded")
	flags.IntVar(&opts.metricsPort, "metrics-port", 9091, "Port for the Prometheus metrics endpoint")
	flags.StringVar(&opts.logLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	return cmd
}

func (o *options) validate() error {
	if o.natsURL == "" {
		return errors.New("--url is required")
	}
	if len(o.owners) == 0 {
		return errors.New("at least one owner is required")
	}
	if o.rate <= 0 {
		return errors.New("--rate must be positive")
	}
	if o.concurrency <= 0 {
		return errors.New("--concurrency must be positive")
	}
	if o.batchSize <= 0 {
		o.batchSize = defaultBatchSize
	}
	return nil
}

func run(parent context.Context, opts *options) error {
	if err := opts.validate(); err != nil {
		return err
	}

	if err := logger.Initialize(opts.logLevel); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	observer.InitMetrics(true)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metricsServer := startMetricsServer(opts.metricsPort)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Metrics server shutdown error", zap.Error(err))
		}
	}()

	logger.Log.Info("Starting inbound load generator",
		zap.String("nats_url", opts.natsURL),
		zap.Strings("owners", opts.owners),
		zap.Int("rate_per_sec", opts.rate),
		zap.Duration("duration", opts.duration),
		zap.Int("concurrency", opts.concurrency),
		zap.Int("batch_size", opts.batchSize),
		zap.Float64("duplicate_ratio", opts.duplicateRatio),
		zap.Int("phone_pool", opts.phonePool),
	)

	client, err := jetstream.NewClient(opts.natsURL, "lead-pipeline-loadgen")
	if err != nil {
		return err
	}
	defer client.Close()

	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(opts.concurrency, func(data interface{}) {
		publishBatch(data.(batchTask), &wg)
	})
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	gen := newGenerator(opts.phonePool, opts.duplicateRatio, time.Now().UnixNano())
	runLoadLoop(ctx, opts, gen, client, pool, &wg)

	logger.Log.Info("Waiting for publishers to finish")
	wg.Wait()
	logger.Log.Info("Load generator finished")
	return nil
}

func startMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("Metrics server failed", zap.Error(err))
		}
	}()
	logger.Log.Info("Metrics endpoint enabled", zap.Int("port", port))
	return server
}

// runLoadLoop ticks at the target rate and hands full batches to the pool.
// It returns when ctx is done or the duration elapses, after submitting the
// final partial batch.
func runLoadLoop(ctx context.Context, opts *options, gen *generator, client jetstream.ClientInterface, pool *ants.PoolWithFunc, wg *sync.WaitGroup) {
	ticker := time.NewTicker(time.Second / time.Duration(opts.rate))
	defer ticker.Stop()

	durationTimer := time.NewTimer(opts.duration)
	defer durationTimer.Stop()

	counter := 0
	batch := make([]outboundMessage, 0, opts.batchSize)

	submit := func() {
		if len(batch) == 0 {
			return
		}
		wg.Add(len(batch))
		if err := pool.Invoke(batchTask{Messages: batch, Client: client}); err != nil {
			logger.Log.Warn("Failed to invoke worker pool", zap.Int("batch_size", len(batch)), zap.Error(err))
			wg.Add(-len(batch))
			for _, msg := range batch {
				observer.IncLoadgenPublishErrors(model.V1InboundWhatsApp.Subject(msg.OwnerID))
			}
		}
		batch = make([]outboundMessage, 0, opts.batchSize)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("Load loop cancelled, submitting final batch")
			submit()
			return
		case <-durationTimer.C:
			logger.Log.Info("Load duration elapsed, submitting final batch")
			submit()
			return
		case <-ticker.C:
			owner := opts.owners[counter%len(opts.owners)]
			counter++

			msg := gen.next(owner)
			observer.IncLoadgenMessagesAttempted(model.V1InboundWhatsApp.Subject(owner), msg.Kind)
			batch = append(batch, msg)
			if len(batch) >= opts.batchSize {
				submit()
			}
		}
	}
}

func publishBatch(task batchTask, wg *sync.WaitGroup) {
	for _, msg := range task.Messages {
		func() {
			defer wg.Done()
			subject := model.V1InboundWhatsApp.Subject(msg.OwnerID)
			headers := map[string]string{jetstream.HeaderMsgID: msg.MsgID}
			if err := task.Client.Publish(subject, msg.Body, headers); err != nil {
				logger.Log.Error("Failed to publish message", zap.String("subject", subject), zap.Error(err))
				observer.IncLoadgenPublishErrors(subject)
				return
			}
			observer.IncLoadgenMessagesPublished(subject, msg.Kind)
		}()
	}
}
