package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kirillkom/contract-orchestrator/internal/config"
	"github.com/kirillkom/contract-orchestrator/internal/core/ports"
	"github.com/kirillkom/contract-orchestrator/internal/core/usecase"
	"github.com/kirillkom/contract-orchestrator/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/contract-orchestrator/internal/infrastructure/extractor"
	"github.com/kirillkom/contract-orchestrator/internal/infrastructure/extractor/html"
	"github.com/kirillkom/contract-orchestrator/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/contract-orchestrator/internal/infrastructure/extractor/plaintext"
	redisidempotency "github.com/kirillkom/contract-orchestrator/internal/infrastructure/idempotency/redis"
	"github.com/kirillkom/contract-orchestrator/internal/infrastructure/ledger/httpledger"
	"github.com/kirillkom/contract-orchestrator/internal/infrastructure/llm/ollama"
	natsqueue "github.com/kirillkom/contract-orchestrator/internal/infrastructure/queue/nats"
	"github.com/kirillkom/contract-orchestrator/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/contract-orchestrator/internal/infrastructure/resilience"
	"github.com/kirillkom/contract-orchestrator/internal/infrastructure/storage/localfs"
	minioarchive "github.com/kirillkom/contract-orchestrator/internal/infrastructure/storage/minio"
)

type App struct {
	Config config.Config

	Queue       *natsqueue.Queue
	Store       ports.ContractStore
	Idempotency ports.IdempotencyStore

	Pipeline  *usecase.Pipeline
	Approvals *usecase.ApprovalService
	Audit     *usecase.AuditRecorder
	Contracts *usecase.ContractService
	Chat      *usecase.ChatService
	Attestor  *usecase.Attestor

	closeFns []func()
}

// Options carries process-specific hooks.
type Options struct {
	OnRetry resilience.RetryObserver
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(func() { _ = db.Close() })

	store := postgres.NewContractStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	users := postgres.NewUserDirectory(db)
	app.Store = store

	executor := resilience.NewExecutor(resilienceConfig(cfg))
	if opts.OnRetry != nil {
		executor.WithRetryObserver(opts.OnRetry)
	}

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubjectPrefix, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	app.Queue = queue
	app.onClose(queue.Close)

	archive, err := newArchive(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init document archive: %w", err)
	}
	if closer, ok := archive.(io.Closer); ok {
		app.onClose(func() { _ = closer.Close() })
	}

	if strings.TrimSpace(cfg.RedisAddr) != "" {
		idem, err := redisidempotency.New(cfg.RedisAddr, cfg.RedisPassword, "", cfg.IdempotencyTTL)
		if err != nil {
			return nil, fmt.Errorf("init idempotency store: %w", err)
		}
		app.Idempotency = idem
		app.onClose(func() { _ = idem.Close() })
	}

	analyzer, err := ollama.New(ollama.Config{
		BaseURL: cfg.OllamaURL,
		Model:   cfg.OllamaModel,
		Timeout: cfg.OllamaTimeout,
	}, executor)
	if err != nil {
		return nil, fmt.Errorf("init analysis client: %w", err)
	}

	var ledger ports.Ledger
	if cfg.Ledger.Enabled() {
		ledger = httpledger.New(httpledger.Config{
			Endpoint:        cfg.Ledger.Endpoint,
			Credential:      cfg.Ledger.Credential,
			RegistryAddress: cfg.Ledger.RegistryAddress,
			MaxRetries:      cfg.Ledger.MaxRetries,
			RetryDelay:      cfg.Ledger.RetryDelay,
			Timeout:         cfg.Ledger.Timeout,
		}, executor)
	} else {
		slog.Info("ledger_disabled", "feature_flag", cfg.Ledger.FeatureEnabled)
	}

	textExtractor := extractor.NewRouter(plaintext.NewExtractor()).
		Register(pdf.NewExtractor(), ".pdf").
		Register(html.NewExtractor(), ".html", ".htm")

	app.Audit = usecase.NewAuditRecorder(store, xlsx.NewExporter())
	app.Attestor = usecase.NewAttestor(store, ledger, queue, usecase.AttestationSettings{
		Enabled:         cfg.Ledger.Enabled(),
		Network:         cfg.Ledger.Network,
		ExplorerBaseURL: cfg.Ledger.ExplorerBaseURL,
		SubmitTimeout:   cfg.Ledger.FinalizeTimeout,
		MaxAttempts:     cfg.Ledger.ReconcileAttempts,
	})
	app.Pipeline = usecase.NewPipeline(textExtractor, analyzer, store, app.Audit, queue)
	app.Approvals = usecase.NewApprovalService(store, users, app.Audit, app.Attestor, archive, queue)
	app.Contracts = usecase.NewContractService(store)
	app.Chat = usecase.NewChatService(store, analyzer, cfg.OllamaTimeout)

	ok = true
	return app, nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.Retry.MaxAttempts = cfg.RetryMaxAttempts
	out.Retry.InitialBackoff = cfg.RetryInitialBackoff
	out.Retry.MaxBackoff = cfg.RetryMaxBackoff
	out.Breaker.Enabled = cfg.BreakerEnabled
	return out
}

func newArchive(ctx context.Context, cfg config.Config) (ports.DocumentArchive, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.ArchiveBackend)) {
	case "minio":
		archive, err := minioarchive.New(minioarchive.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			Region:    cfg.MinIO.Region,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return archive, nil
	case "", "localfs":
		return localfs.New(cfg.StoragePath)
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.ArchiveBackend)
	}
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
