// Package orchestrator связывает preview pipeline, supervisor и анкоринг
// в один шлюз допуска ордеров.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kirillm/verigate/internal/anchor"
	"github.com/kirillm/verigate/internal/domain"
	"github.com/kirillm/verigate/internal/metrics"
	"github.com/kirillm/verigate/internal/notify"
	"github.com/kirillm/verigate/internal/supervisor"
	"github.com/kirillm/verigate/pkg/utils"
)

// Previewer двойная верификация ордера
type Previewer interface {
	Preview(ctx context.Context, action domain.OrderAction, currentQty float64) (*domain.Preview, error)
}

// AuditStore хранилище аудита (может быть nil)
type AuditStore interface {
	domain.AdmissionRepository
	domain.AnchorRepository
}

// Admission результат допуска ордера
type Admission struct {
	TraceID    string             `json:"trace_id"`
	PreviewID  string             `json:"preview_id,omitempty"`
	Decision   domain.Decision    `json:"decision"`
	Degraded   bool               `json:"degraded"`
	Action     domain.OrderAction `json:"action"`
	CurrentQty float64            `json:"current_qty"`
	Preview    *domain.Preview    `json:"preview,omitempty"`
}

// Config конфигурация шлюза
type Config struct {
	QueueSize int // емкость очереди анкоринга
}

type anchorJob struct {
	kind    string
	refID   string
	traceID string
	run     func(ctx context.Context) domain.AnchorReceipt
}

// Gate шлюз допуска. Анкоринг выполняется одной горутиной в порядке постановки.
type Gate struct {
	positions domain.PositionRepository
	pipeline  Previewer
	worker    *anchor.Worker
	store     AuditStore
	notifier  notify.Notifier
	logger    *utils.Logger

	queue chan anchorJob

	lifecycle sync.Mutex // сериализует Start и Stop целиком
	mu        sync.Mutex
	running   bool
	stopChan  chan struct{}
	wg        sync.WaitGroup // consumer очереди
	alerts    sync.WaitGroup // фоновые алерты
}

// New создает шлюз. positions, store и notifier опциональны.
func New(
	positions domain.PositionRepository,
	pipeline Previewer,
	worker *anchor.Worker,
	store AuditStore,
	notifier notify.Notifier,
	config Config,
	logger *utils.Logger,
) *Gate {
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Gate{
		positions: positions,
		pipeline:  pipeline,
		worker:    worker,
		store:     store,
		notifier:  notifier,
		logger:    logger,
		queue:     make(chan anchorJob, config.QueueSize),
	}
}

// Start запускает consumer очереди анкоринга и worker
func (g *Gate) Start(ctx context.Context) error {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return fmt.Errorf("gate already running")
	}

	g.running = true
	g.stopChan = make(chan struct{})
	if g.worker != nil {
		g.worker.Start()
	}

	g.wg.Add(1)
	go g.consume(ctx, g.stopChan)

	g.logger.Info("🚀 Admission gate started (anchor queue: %d)", cap(g.queue))
	return nil
}

// Stop останавливает worker и дожидается завершения текущего задания.
// Необработанные задания остаются в очереди до следующего Start.
func (g *Gate) Stop() {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	close(g.stopChan)
	g.mu.Unlock()

	if g.worker != nil {
		g.worker.Stop()
	}
	g.wg.Wait()
	g.alerts.Wait()

	g.logger.Info("✅ Admission gate stopped")
}

// IsRunning проверяет запущен ли шлюз
func (g *Gate) IsRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Admit решает судьбу ордера.
//
// Обе верификации прошли: APPROVE, preview ставится в очередь анкоринга.
// Отказ верификации возвращается как *domain.PolicyRejectedError.
// Safe mode: APPROVE_REDUCTION_ONLY для ордеров, уменьшающих позицию,
// иначе возвращается *domain.SafeModeError.
func (g *Gate) Admit(ctx context.Context, action domain.OrderAction) (*Admission, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}

	// позиция читается один раз и используется и pipeline, и supervisor
	currentQty, err := g.currentQty(ctx, action.Symbol)
	if err != nil {
		return nil, err
	}

	traceID := uuid.NewString()
	order := supervisor.Order{Side: action.Side, Quantity: action.Quantity}

	preview, err := g.pipeline.Preview(ctx, action, currentQty)
	if err == nil {
		decision := supervisor.Decide(supervisor.Checks{ACEOk: true, VaROk: true}, order, currentQty)
		admission := &Admission{
			TraceID:    traceID,
			PreviewID:  uuid.NewString(),
			Decision:   decision,
			Action:     action,
			CurrentQty: currentQty,
			Preview:    preview,
		}
		g.record(ctx, admission, preview.Policy.VerdictID, preview.Proof.ProofID, preview.Policy.Reasons)
		g.enqueuePreview(admission)
		return admission, nil
	}

	var rejected *domain.PolicyRejectedError
	if errors.As(err, &rejected) {
		decision := supervisor.Decide(supervisor.Checks{ACEOk: rejected.PolicyAllow, VaROk: rejected.RiskOK}, order, currentQty)
		g.record(ctx, &Admission{
			TraceID:    traceID,
			Decision:   decision,
			Action:     action,
			CurrentQty: currentQty,
		}, rejected.VerdictID, rejected.ProofID, rejected.Reasons)
		return nil, err
	}

	var safeMode *domain.SafeModeError
	if errors.As(err, &safeMode) {
		decision := supervisor.Decide(supervisor.Checks{Degraded: true}, order, currentQty)
		admission := &Admission{
			TraceID:    traceID,
			Decision:   decision,
			Degraded:   true,
			Action:     action,
			CurrentQty: currentQty,
		}
		g.record(ctx, admission, "", "", nil)
		g.alert(notify.FormatSafeMode(safeMode, decision, traceID))

		if decision == domain.DecisionApproveReductionOnly {
			g.logger.Warn("⚠️ safe mode: reduction-only admission %s %s %.4f (current %.4f)",
				action.Side, action.Symbol, action.Quantity, currentQty)
			return admission, nil
		}
		return nil, err
	}

	// отмена вызывающим кодом или некорректный ввод
	return nil, err
}

// RecordFill ставит исполнение в очередь анкоринга.
// Для одного ордера preview попадает в очередь раньше fill, если fill записан после Admit.
func (g *Gate) RecordFill(ctx context.Context, fill domain.Fill) error {
	if fill.OrderID == "" {
		return fmt.Errorf("%w: order_id is required", domain.ErrInvalidInput)
	}
	if fill.FillCID == "" {
		return fmt.Errorf("%w: fill_cid is required", domain.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if fill.TraceID == "" {
		fill.TraceID = uuid.NewString()
	}

	g.enqueue(anchorJob{
		kind:    domain.AnchorKindFill,
		refID:   fill.OrderID,
		traceID: fill.TraceID,
		run: func(ctx context.Context) domain.AnchorReceipt {
			return g.worker.AnchorFill(ctx, fill.OrderID, fill.FillCID, fill.DeltaNotional, fill.SlippageBps, fill.TraceID)
		},
	})
	return nil
}

func (g *Gate) currentQty(ctx context.Context, symbol string) (float64, error) {
	if g.positions == nil {
		return 0, nil
	}
	qty, err := g.positions.GetPositionQty(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to read position %s: %w", symbol, err)
	}
	return qty, nil
}

func (g *Gate) enqueuePreview(a *Admission) {
	proofCID := a.Preview.Proof.Hash
	if proofCID == "" {
		proofCID = a.Preview.Proof.ProofID
	}
	verdictCID := a.Preview.Policy.VerdictID

	g.enqueue(anchorJob{
		kind:    domain.AnchorKindPreview,
		refID:   a.PreviewID,
		traceID: a.TraceID,
		run: func(ctx context.Context) domain.AnchorReceipt {
			return g.worker.AnchorPreview(ctx, a.PreviewID, proofCID, verdictCID, a.TraceID)
		},
	})
}

// enqueue никогда не блокирует: при полной очереди задание отбрасывается
func (g *Gate) enqueue(job anchorJob) {
	if g.worker == nil || !g.IsRunning() {
		g.logger.Debug("anchor %s %s skipped: gate not running", job.kind, job.refID)
		metrics.IncAnchor(job.kind, "skipped")
		return
	}

	select {
	case g.queue <- job:
	default:
		metrics.IncAnchorDropped()
		g.logger.Warn("⚠️ anchor queue full, dropping %s %s (trace %s)", job.kind, job.refID, job.traceID)
	}
}

func (g *Gate) consume(ctx context.Context, stop <-chan struct{}) {
	defer g.wg.Done()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case job := <-g.queue:
			g.runJob(ctx, job)
		}
	}
}

func (g *Gate) runJob(ctx context.Context, job anchorJob) {
	attempted := g.worker.IsRunning()
	receipt := job.run(ctx)

	if g.store != nil {
		record := &domain.AnchorRecord{
			Kind:    job.kind,
			RefID:   job.refID,
			TraceID: job.traceID,
			TxHash:  receipt.TxHash,
		}
		if err := g.store.SaveAnchorReceipt(ctx, record); err != nil {
			g.logger.Error("Failed to save anchor receipt %s %s: %v", job.kind, job.refID, err)
		}
	}

	if attempted && !receipt.Anchored() {
		// consumer уже фоновый, алерт отправляется синхронно
		g.notifier.Notify(context.WithoutCancel(ctx), notify.FormatAnchorFailure(job.kind, job.refID, job.traceID))
	}
}

// record сохраняет аудит и учитывает метку; ошибки хранилища не влияют на решение
func (g *Gate) record(ctx context.Context, a *Admission, verdictID, proofID string, reasons []string) {
	metrics.IncDecision(string(a.Decision))
	g.logger.Info("📝 admission %s: %s %s %.4f -> %s (degraded=%t)",
		a.TraceID, a.Action.Side, a.Action.Symbol, a.Action.Quantity, a.Decision, a.Degraded)

	if g.store == nil {
		return
	}
	record := &domain.AdmissionRecord{
		TraceID:    a.TraceID,
		Symbol:     a.Action.Symbol,
		Side:       string(a.Action.Side),
		Quantity:   a.Action.Quantity,
		CurrentQty: a.CurrentQty,
		Decision:   string(a.Decision),
		Degraded:   a.Degraded,
		VerdictID:  verdictID,
		ProofID:    proofID,
		Reasons:    reasons,
	}
	if err := g.store.SaveAdmission(context.WithoutCancel(ctx), record); err != nil {
		g.logger.Error("Failed to save admission %s: %v", a.TraceID, err)
	}
}

// alert отправляет алерт в фоне. Пока шлюз запущен, Stop дожидается отправки;
// Add выполняется под g.mu, поэтому не пересекается с alerts.Wait в Stop.
func (g *Gate) alert(text string) {
	g.mu.Lock()
	tracked := g.running
	if tracked {
		g.alerts.Add(1)
	}
	g.mu.Unlock()

	go func() {
		if tracked {
			defer g.alerts.Done()
		}
		g.notifier.Notify(context.Background(), text)
	}()
}
