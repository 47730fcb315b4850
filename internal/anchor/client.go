// Package anchor записывает хеши preview и fill во внешний леджер.
//
// Анкоринг это аудит, а не условие корректности: любая ошибка или таймаут
// превращается в пустой domain.AnchorReceipt и никогда не возвращается вызывающему.
package anchor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/kirillm/verigate/internal/domain"
	"github.com/kirillm/verigate/internal/metrics"
	"github.com/kirillm/verigate/pkg/utils"
)

// Client отправляет транзакции анкоринга с ограничением по времени
type Client struct {
	ledger  Ledger
	timeout time.Duration
	logger  *utils.Logger
}

// NewClient создает клиент. timeout применяется отдельно к отправке и к ожиданию подтверждения.
func NewClient(ledger Ledger, timeout time.Duration, logger *utils.Logger) *Client {
	if timeout <= 0 {
		timeout = domain.DefaultAnchorTimeoutMs * time.Millisecond
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Client{
		ledger:  ledger,
		timeout: timeout,
		logger:  logger,
	}
}

// AnchorPreview записывает preview. Пустой TxHash означает что записи нет.
func (c *Client) AnchorPreview(ctx context.Context, previewID, proofCID, verdictCID, traceID string) domain.AnchorReceipt {
	return c.anchor(ctx, domain.AnchorKindPreview, previewID, func(stageCtx context.Context) (*types.Transaction, error) {
		return c.ledger.SubmitPreview(stageCtx,
			ToBytes32(previewID), ToBytes32(proofCID), ToBytes32(verdictCID), ToBytes32(traceID))
	})
}

// AnchorFill записывает исполнение. deltaNotional и slippageBps передаются без изменений.
func (c *Client) AnchorFill(ctx context.Context, orderID, fillCID string, deltaNotional, slippageBps int64, traceID string) domain.AnchorReceipt {
	return c.anchor(ctx, domain.AnchorKindFill, orderID, func(stageCtx context.Context) (*types.Transaction, error) {
		return c.ledger.SubmitFill(stageCtx,
			ToBytes32(orderID), ToBytes32(fillCID), big.NewInt(deltaNotional), big.NewInt(slippageBps), ToBytes32(traceID))
	})
}

func (c *Client) anchor(ctx context.Context, kind, ref string, submit func(context.Context) (*types.Transaction, error)) (receipt domain.AnchorReceipt) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("anchor %s %s: recovered panic: %v", kind, ref, r)
			metrics.IncAnchor(kind, "absent")
			receipt = domain.AnchorReceipt{}
		}
	}()

	tx, err := withTimeout(ctx, c.timeout, submit)
	if err != nil {
		c.logger.Warn("anchor %s %s: submit failed: %v", kind, ref, err)
		metrics.IncAnchor(kind, "absent")
		return domain.AnchorReceipt{}
	}
	if tx == nil {
		c.logger.Warn("anchor %s %s: ledger returned no transaction", kind, ref)
		metrics.IncAnchor(kind, "absent")
		return domain.AnchorReceipt{}
	}

	hash, err := withTimeout(ctx, c.timeout, func(stageCtx context.Context) (common.Hash, error) {
		return c.ledger.WaitConfirmed(stageCtx, tx)
	})
	if err != nil {
		c.logger.Warn("anchor %s %s: confirmation failed for %s: %v", kind, ref, tx.Hash().Hex(), err)
		metrics.IncAnchor(kind, "absent")
		return domain.AnchorReceipt{}
	}

	c.logger.Info("⚓ anchored %s %s: %s", kind, ref, hash.Hex())
	metrics.IncAnchor(kind, "anchored")
	return domain.AnchorReceipt{TxHash: hash.Hex()}
}

type stageResult[T any] struct {
	value T
	err   error
}

// withTimeout выполняет стадию в горутине: даже транспорт, игнорирующий
// контекст, не задержит вызывающего дольше timeout.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan stageResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- stageResult[T]{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(stageCtx)
		ch <- stageResult[T]{value: v, err: err}
	}()

	select {
	case res := <-ch:
		return res.value, res.err
	case <-stageCtx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %v", domain.ErrAnchorTimeout, stageCtx.Err())
	}
}
