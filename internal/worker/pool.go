package worker

import (
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"

	"github.com/hseguard/syncd/internal/queue"
)

// queueSpec fixes a queue's concurrency and rate ceiling. The dalux rate
// mirrors the vendor's own API limit; images run narrow because transforms
// are CPU and memory heavy.
type queueSpec struct {
	name        string
	concurrency int
	limiter     *rate.Limiter
}

func queueSpecs() []queueSpec {
	// Burst stays at 1: a refilled bucket on top of a burst would let a
	// backlog exceed the per-window ceiling right after an idle period.
	return []queueSpec{
		{queue.QueueSync, 5, rate.NewLimiter(rate.Every(time.Minute/50), 1)},
		{queue.QueueDalux, 10, rate.NewLimiter(rate.Every(time.Second/10), 1)},
		{queue.QueueImages, 2, nil},
		{queue.QueueFiles, 5, nil},
	}
}

// Handlers bundles the per-queue consumers.
type Handlers struct {
	Sync  *SyncWorker
	Image *ImageWorker
	File  *FileWorker
}

type queueServer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	name   string
}

// Pool runs one asynq server per queue so each queue gets its own
// concurrency bound; jobs across queues run fully in parallel.
type Pool struct {
	servers []queueServer
	logger  *slog.Logger
}

// NewPool builds the servers and wires each queue's handlers.
func NewPool(redisOpt asynq.RedisClientOpt, h *Handlers, logger *slog.Logger, logLevel string) *Pool {
	p := &Pool{logger: logger}

	for _, spec := range queueSpecs() {
		spec := spec
		srv := asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: spec.concurrency,
			Queues:      map[string]int{spec.name: 1},
			RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
				return queue.RetryDelay(n)
			},
			LogLevel: asynqLogLevel(logLevel),
		})

		mux := asynq.NewServeMux()
		mux.Use(func(next asynq.Handler) asynq.Handler {
			return logged(logger, rateLimited(spec.limiter, next))
		})
		registerHandlers(mux, spec.name, h)

		p.servers = append(p.servers, queueServer{server: srv, mux: mux, name: spec.name})
	}

	return p
}

func registerHandlers(mux *asynq.ServeMux, queueName string, h *Handlers) {
	switch queueName {
	case queue.QueueSync:
		mux.HandleFunc(queue.TaskSyncDeviation, h.Sync.HandleSyncDeviation)
		mux.HandleFunc(queue.TaskSyncSJA, h.Sync.HandleSyncSJA)
	case queue.QueueDalux:
		mux.HandleFunc(queue.TaskUploadImage, h.Sync.HandleUploadImage)
	case queue.QueueImages:
		mux.HandleFunc(queue.TaskImageTransform, h.Image.HandleTransform)
	case queue.QueueFiles:
		mux.HandleFunc(queue.TaskFileProcess, h.File.HandleFileJob)
	}
}

// Start launches all queue consumers without blocking.
func (p *Pool) Start() error {
	for _, qs := range p.servers {
		if err := qs.server.Start(qs.mux); err != nil {
			return err
		}
		p.logger.Info("queue consumer started", "queue", qs.name)
	}
	return nil
}

// Shutdown stops all consumers, waiting for in-flight jobs to finish.
func (p *Pool) Shutdown() {
	for _, qs := range p.servers {
		qs.server.Shutdown()
		p.logger.Info("queue consumer stopped", "queue", qs.name)
	}
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return asynq.DebugLevel
	case "warn", "warning":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}
