package anchor

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/kirillm/verigate/internal/config"
	"github.com/kirillm/verigate/internal/domain"
)

// anchorRegistryABI минимальный ABI контракта-реестра
const anchorRegistryABI = `[
  {"type":"function","name":"anchorPreview","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"name":"previewId","type":"bytes32"},
    {"name":"proofCid","type":"bytes32"},
    {"name":"verdictCid","type":"bytes32"},
    {"name":"traceId","type":"bytes32"}]},
  {"type":"function","name":"anchorFill","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"name":"orderId","type":"bytes32"},
    {"name":"fillCid","type":"bytes32"},
    {"name":"deltaNotional","type":"int256"},
    {"name":"slippageBps","type":"int256"},
    {"name":"traceId","type":"bytes32"}]}
]`

// EthLedger реализация Ledger поверх EVM-контракта
type EthLedger struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey

	mu   sync.Mutex // сериализует отправку: nonce берется из pending state
	auth *bind.TransactOpts
}

// NewEthLedger проверяет конфигурацию и готовит клиента.
// Отсутствующие или неверные настройки дают *domain.ConfigurationError сразу,
// а не при первом анкоринге. Сеть при создании не трогается.
func NewEthLedger(ctx context.Context, cfg config.AnchorConfig) (*EthLedger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, &domain.ConfigurationError{Key: "ANCHOR_CONTRACT_ADDRESS", Reason: "is not a valid address"}
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		return nil, &domain.ConfigurationError{Key: "ANCHOR_PRIVATE_KEY", Reason: "is not a valid secp256k1 key"}
	}

	parsed, err := abi.JSON(strings.NewReader(anchorRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse anchor ABI: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, &domain.ConfigurationError{Key: "ANCHOR_RPC_URL", Reason: fmt.Sprintf("cannot be dialed: %v", err)}
	}

	address := common.HexToAddress(cfg.ContractAddress)
	return &EthLedger{
		client:   client,
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		key:      key,
	}, nil
}

// Sender адрес, которым подписываются транзакции
func (l *EthLedger) Sender() common.Address {
	return crypto.PubkeyToAddress(l.key.PublicKey)
}

// SubmitPreview вызывает anchorPreview(bytes32,bytes32,bytes32,bytes32)
func (l *EthLedger) SubmitPreview(ctx context.Context, previewID, proofCID, verdictCID, traceID [32]byte) (*types.Transaction, error) {
	return l.transact(ctx, "anchorPreview", previewID, proofCID, verdictCID, traceID)
}

// SubmitFill вызывает anchorFill(bytes32,bytes32,int256,int256,bytes32)
func (l *EthLedger) SubmitFill(ctx context.Context, orderID, fillCID [32]byte, deltaNotional, slippageBps *big.Int, traceID [32]byte) (*types.Transaction, error) {
	return l.transact(ctx, "anchorFill", orderID, fillCID, deltaNotional, slippageBps, traceID)
}

func (l *EthLedger) transact(ctx context.Context, method string, params ...interface{}) (*types.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.auth == nil {
		chainID, err := l.client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get chain id: %w", err)
		}
		auth, err := bind.NewKeyedTransactorWithChainID(l.key, chainID)
		if err != nil {
			return nil, fmt.Errorf("failed to create transactor: %w", err)
		}
		l.auth = auth
	}

	opts := *l.auth
	opts.Context = ctx

	tx, err := l.contract.Transact(&opts, method, params...)
	if err != nil {
		return nil, fmt.Errorf("%s transact failed: %w", method, err)
	}
	return tx, nil
}

// WaitConfirmed ждет включения транзакции в блок. Откат транзакции считается ошибкой.
func (l *EthLedger) WaitConfirmed(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	receipt, err := bind.WaitMined(ctx, l.client, tx)
	if err != nil {
		return common.Hash{}, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Hash{}, fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	return receipt.TxHash, nil
}

// Close закрывает RPC соединение
func (l *EthLedger) Close() {
	l.client.Close()
}
