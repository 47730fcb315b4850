package anchor

import (
	"context"
	"sync/atomic"

	"github.com/kirillm/verigate/internal/domain"
	"github.com/kirillm/verigate/internal/metrics"
	"github.com/kirillm/verigate/pkg/utils"
)

// Anchorer операции анкоринга (реализуется Client)
type Anchorer interface {
	AnchorPreview(ctx context.Context, previewID, proofCID, verdictCID, traceID string) domain.AnchorReceipt
	AnchorFill(ctx context.Context, orderID, fillCID string, deltaNotional, slippageBps int64, traceID string) domain.AnchorReceipt
}

// Worker включает и выключает анкоринг без изменения мест вызова.
// Пока worker остановлен, леджер не вызывается.
type Worker struct {
	client  Anchorer
	running atomic.Bool
	logger  *utils.Logger
}

// NewWorker создает остановленный worker вокруг одного клиента
func NewWorker(client Anchorer, logger *utils.Logger) *Worker {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Worker{
		client: client,
		logger: logger,
	}
}

// Start запускает worker (идемпотентно)
func (w *Worker) Start() {
	if w.running.CompareAndSwap(false, true) {
		w.logger.Info("anchor worker started")
	}
	metrics.SetAnchorWorkerRunning(true)
}

// Stop останавливает worker (идемпотентно)
func (w *Worker) Stop() {
	if w.running.CompareAndSwap(true, false) {
		w.logger.Info("anchor worker stopped")
	}
	metrics.SetAnchorWorkerRunning(false)
}

// IsRunning проверяет запущен ли worker
func (w *Worker) IsRunning() bool {
	return w.running.Load()
}

// AnchorPreview проксирует вызов клиенту если worker запущен
func (w *Worker) AnchorPreview(ctx context.Context, previewID, proofCID, verdictCID, traceID string) domain.AnchorReceipt {
	if !w.running.Load() {
		metrics.IncAnchor(domain.AnchorKindPreview, "skipped")
		return domain.AnchorReceipt{}
	}
	return w.client.AnchorPreview(ctx, previewID, proofCID, verdictCID, traceID)
}

// AnchorFill проксирует вызов клиенту если worker запущен
func (w *Worker) AnchorFill(ctx context.Context, orderID, fillCID string, deltaNotional, slippageBps int64, traceID string) domain.AnchorReceipt {
	if !w.running.Load() {
		metrics.IncAnchor(domain.AnchorKindFill, "skipped")
		return domain.AnchorReceipt{}
	}
	return w.client.AnchorFill(ctx, orderID, fillCID, deltaNotional, slippageBps, traceID)
}
