package anchor

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Ledger контракт-подобный неизменяемый журнал с двумя методами записи
type Ledger interface {
	SubmitPreview(ctx context.Context, previewID, proofCID, verdictCID, traceID [32]byte) (*types.Transaction, error)
	SubmitFill(ctx context.Context, orderID, fillCID [32]byte, deltaNotional, slippageBps *big.Int, traceID [32]byte) (*types.Transaction, error)
	WaitConfirmed(ctx context.Context, tx *types.Transaction) (common.Hash, error)
}
