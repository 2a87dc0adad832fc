// Package orchestrator drives a single QR payment end to end: open session,
// create charge, monitor the transaction until terminal, close session.
// It is the one place that decides recovery versus propagation; every failure
// is normalized into a terminal RunResult and no error ever escapes Run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourorg/qr-payment-adapter/internal/gateway"
	"github.com/yourorg/qr-payment-adapter/internal/metrics"
	"github.com/yourorg/qr-payment-adapter/internal/reporting"
)

// Outcome categorizes how a run ended. User-visible failure reporting keys
// off this, never off raw error text.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCanceled  Outcome = "canceled"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPollAttempts = 60
	closeTimeout        = 10 * time.Second
)

// EventSink receives the lifecycle events of a run. Events are delivered
// sequentially from the run itself: ChargeReady at most once, StatusChanged
// only on value changes, Complete exactly once per accepted run.
type EventSink interface {
	ChargeReady(hash, amount string)
	StatusChanged(status gateway.Status)
	Complete(success bool)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) ChargeReady(string, string)   {}
func (NopSink) StatusChanged(gateway.Status) {}
func (NopSink) Complete(bool)                {}

// Config carries the per-terminal settings of the orchestrator.
type Config struct {
	Device       gateway.Device
	GroupID      string
	PollInterval time.Duration // defaults to 2s
	PollAttempts int           // defaults to 60
}

// RunRequest is one payment to process.
type RunRequest struct {
	TransactionType string
	AmountMinor     int64
	Currency        string
	OrderID         string
}

// RunResult is the terminal result of a run.
type RunResult struct {
	RunID         string
	Outcome       Outcome
	Status        gateway.Status
	Success       bool
	TransactionID string
	Hash          string
	ErrorMessage  string

	errorCode string
}

// Orchestrator sequences gateway calls for one payment at a time.
// It is not reentrant: a second Run while one is active is rejected without
// touching the gateway.
type Orchestrator struct {
	client  gateway.Client
	cfg     Config
	sink    EventSink
	journal *reporting.Journal

	inFlight atomic.Bool
}

// New creates an Orchestrator. The journal may be nil; a nil sink falls back
// to NopSink.
func New(client gateway.Client, cfg Config, sink EventSink, journal *reporting.Journal) *Orchestrator {
	if client == nil {
		panic("gateway client cannot be nil")
	}
	if sink == nil {
		sink = NopSink{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = defaultPollAttempts
	}
	return &Orchestrator{
		client:  client,
		cfg:     cfg,
		sink:    sink,
		journal: journal,
	}
}

// Run processes one payment and always returns a terminal result; it never
// returns an error and never panics past its own boundary. Cancellation of
// ctx interrupts the monitoring loop within one poll interval and still
// closes the session.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) RunResult {
	if !o.inFlight.CompareAndSwap(false, true) {
		return RunResult{
			Outcome:      OutcomeFailed,
			Status:       gateway.StatusError,
			ErrorMessage: "another payment run is already in progress",
		}
	}
	defer o.inFlight.Store(false)

	res := o.execute(ctx, req)

	o.sink.Complete(res.Success)
	metrics.IncRun(string(res.Outcome))
	if o.journal != nil {
		o.journal.Append(reporting.Entry{
			Timestamp:    time.Now(),
			OrderID:      req.OrderID,
			Outcome:      string(res.Outcome),
			Status:       string(res.Status),
			Amount:       req.AmountMinor,
			Currency:     req.Currency,
			ErrorCode:    res.errorCode,
			ErrorMessage: res.ErrorMessage,
		})
	}
	log.Printf("orchestrator: run %s finished outcome=%s status=%s", res.RunID, res.Outcome, res.Status)
	return res
}

func (o *Orchestrator) execute(ctx context.Context, req RunRequest) (res RunResult) {
	tracer := otel.Tracer("orchestrator")
	ctx, span := tracer.Start(ctx, "Orchestrator.Run", trace.WithAttributes(
		attribute.String("payment.order_id", req.OrderID),
		attribute.Int64("payment.amount_minor", req.AmountMinor),
		attribute.String("payment.currency", req.Currency),
	))
	defer span.End()

	res = RunResult{
		RunID:   uuid.NewString(),
		Outcome: OutcomeFailed,
		Status:  gateway.StatusError,
	}
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeFailed
			res.Status = gateway.StatusError
			res.Success = false
			res.ErrorMessage = fmt.Sprintf("internal fault: %v", r)
			log.Printf("orchestrator: recovered from panic in run %s: %v", res.RunID, r)
		}
	}()

	session, err := step(ctx, tracer, "gateway.OpenSession", func(c context.Context) (gateway.Session, error) {
		return o.client.OpenSession(c, o.cfg.Device, o.cfg.GroupID)
	})
	if err != nil {
		// Nothing to close: no session exists.
		res.fail(ctx, err)
		return res
	}
	defer func() {
		// Mandatory cleanup on every exit path, detached from the run's
		// (possibly canceled) context.
		cctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if cerr := o.client.CloseSession(cctx, session); cerr != nil {
			log.Printf("orchestrator: closing session failed (non-fatal): %v", cerr)
		}
	}()

	charge, err := step(ctx, tracer, "gateway.CreateCharge", func(c context.Context) (gateway.Charge, error) {
		return o.client.CreateCharge(c, session, gateway.ChargeRequest{
			AmountMinor: req.AmountMinor,
			Currency:    req.Currency,
			OrderID:     req.OrderID,
			Description: gateway.ChargeDescription(req.TransactionType, req.OrderID),
		})
	})
	if err != nil {
		res.fail(ctx, err)
		return res
	}
	res.TransactionID = charge.TransactionID
	res.Hash = charge.Hash

	o.sink.ChargeReady(charge.Hash, gateway.MinorAmount(req.AmountMinor).String())

	status := o.monitor(ctx, session, charge.TransactionID)
	res.Status = status
	res.Success = status == gateway.StatusCompleted
	switch status {
	case gateway.StatusCompleted:
		res.Outcome = OutcomeCompleted
	case gateway.StatusTimeout:
		res.Outcome = OutcomeTimeout
		res.ErrorMessage = fmt.Sprintf("transaction still pending after %d poll attempts", o.cfg.PollAttempts)
	case gateway.StatusCanceled:
		res.Outcome = OutcomeCanceled
		res.ErrorMessage = "payment canceled"
	default:
		res.Outcome = OutcomeFailed
		res.ErrorMessage = fmt.Sprintf("transaction ended in status %s", status)
	}
	return res
}

// monitor polls the transaction until a terminal status, the attempt budget
// runs out (TIMEOUT) or ctx is canceled (CANCELED). The initial PENDING is
// emitted once; afterwards only value changes are emitted.
func (o *Orchestrator) monitor(ctx context.Context, session gateway.Session, transactionID string) gateway.Status {
	last := gateway.StatusPending
	o.sink.StatusChanged(last)

	attempts := 0
	defer func() { metrics.ObservePollAttempts(attempts) }()

	for attempts < o.cfg.PollAttempts {
		select {
		case <-ctx.Done():
			o.sink.StatusChanged(gateway.StatusCanceled)
			return gateway.StatusCanceled
		case <-time.After(o.cfg.PollInterval):
		}

		attempts++
		status, err := o.client.PollStatus(ctx, session, transactionID)
		if err != nil {
			// Only cancellation surfaces as an error from PollStatus.
			o.sink.StatusChanged(gateway.StatusCanceled)
			return gateway.StatusCanceled
		}
		if status != last {
			last = status
			o.sink.StatusChanged(status)
		}
		if status.Terminal() {
			return status
		}
	}

	o.sink.StatusChanged(gateway.StatusTimeout)
	return gateway.StatusTimeout
}

// step runs one gateway call inside its own span.
func step[T any](ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()
	v, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
	}
	return v, err
}

// fail classifies an error from the session/charge steps into the result.
func (r *RunResult) fail(ctx context.Context, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		r.Outcome = OutcomeCanceled
		r.Status = gateway.StatusCanceled
		r.ErrorMessage = "payment canceled"
		return
	}
	r.Outcome = OutcomeFailed
	r.Status = gateway.StatusError
	r.ErrorMessage = err.Error()
	r.errorCode = gateway.ErrorCode(err)
}
