package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
	"github.com/kirillkom/contract-orchestrator/internal/infrastructure/resilience"
)

const (
	lifecycleSubject   = "lifecycle"
	attestationSubject = "attestation.pending"
	attestationGroup   = "attestation-workers"

	contractIDHeader = "Contract-Id"
	eventKindHeader  = "Event-Kind"
)

// Queue publishes lifecycle notices and carries attestation retries between
// the API and the worker. All subjects share one configurable prefix.
type Queue struct {
	conn     *nats.Conn
	prefix   string
	executor *resilience.Executor
	publish  func(msg *nats.Msg) error
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func (o Options) connectOptions() []nats.Option {
	retryConnect := o.RetryOnFailedConnect == nil || *o.RetryOnFailedConnect
	return []nats.Option{
		nats.Name("contract-orchestrator"),
		nats.Timeout(positiveOr(o.ConnectTimeout, 2*time.Second)),
		nats.ReconnectWait(positiveOr(o.ReconnectWait, 2*time.Second)),
		nats.MaxReconnects(positiveOr(o.MaxReconnects, 60)),
		nats.RetryOnFailedConnect(retryConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	}
}

func positiveOr[T time.Duration | int](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}

func New(url, prefix string) (*Queue, error) {
	return NewWithOptions(url, prefix, Options{})
}

func NewWithOptions(url, prefix string, options Options) (*Queue, error) {
	conn, err := nats.Connect(url, options.connectOptions()...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	q := newQueue(prefix, options.ResilienceExecutor, conn.PublishMsg)
	q.conn = conn
	return q, nil
}

func newQueue(prefix string, executor *resilience.Executor, publish func(*nats.Msg) error) *Queue {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "contracts"
	}
	return &Queue{prefix: prefix, executor: executor, publish: publish}
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) subject(parts ...string) string {
	return q.prefix + "." + strings.Join(parts, ".")
}

// PublishLifecycle sends the notice as JSON on <prefix>.lifecycle.<event_type>.
// Headers repeat the contract id and kind so consumers can route without
// decoding the body.
func (q *Queue) PublishLifecycle(ctx context.Context, notice domain.LifecycleNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal lifecycle notice: %w", err)
	}
	msg := nats.NewMsg(q.subject(lifecycleSubject, string(notice.Kind)))
	msg.Data = payload
	msg.Header.Set(contractIDHeader, notice.ContractID)
	msg.Header.Set(eventKindHeader, string(notice.Kind))
	return q.send(ctx, msg)
}

// PublishAttestationPending hands a contract to the worker for ledger
// submission. The body is the bare contract id.
func (q *Queue) PublishAttestationPending(ctx context.Context, contractID string) error {
	msg := nats.NewMsg(q.subject(attestationSubject))
	msg.Data = []byte(contractID)
	msg.Header.Set(contractIDHeader, contractID)
	return q.send(ctx, msg)
}

func (q *Queue) send(ctx context.Context, msg *nats.Msg) error {
	publishOnce := func(context.Context) error {
		return q.publish(msg)
	}
	var err error
	if q.executor == nil {
		err = publishOnce(ctx)
	} else {
		err = q.executor.Execute(ctx, "nats_publish", publishOnce, classifyPublishError)
	}
	return publishError(msg.Subject, err)
}

// SubscribeAttestationPending delivers pending contract ids to handler until
// ctx is cancelled. Workers share a queue group so each id is handled once.
func (q *Queue) SubscribeAttestationPending(ctx context.Context, handler func(context.Context, string) error) error {
	if q.conn == nil {
		return errors.New("nats subscribe: queue is not connected")
	}

	sub, err := q.conn.QueueSubscribe(q.subject(attestationSubject), attestationGroup, func(msg *nats.Msg) {
		contractID := pendingContractID(msg)
		if contractID == "" || ctx.Err() != nil {
			return
		}
		if err := handler(ctx, contractID); err != nil {
			slog.Warn("attestation_pending_handler_failed", "contract_id", contractID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	return q.conn.FlushTimeout(5 * time.Second)
}

// pendingContractID prefers the header and falls back to the body for
// publishers that send plain payloads.
func pendingContractID(msg *nats.Msg) string {
	if msg.Header != nil {
		if id := strings.TrimSpace(msg.Header.Get(contractIDHeader)); id != "" {
			return id
		}
	}
	return strings.TrimSpace(string(msg.Data))
}
