package chain

import (
	"context"
	"fmt"

	"github.com/p2ramp/settlement_service/pkg/logger"
)

// Escrow wraps the RPC client with the escrow contract's address and the
// operator account the node signs transactions for.
type Escrow struct {
	client          *Client
	contractAddress string
	operatorAddress string
	log             *logger.Logger
}

// NewEscrow creates an escrow contract writer
func NewEscrow(client *Client, contractAddress, operatorAddress string, log *logger.Logger) *Escrow {
	return &Escrow{
		client:          client,
		contractAddress: contractAddress,
		operatorAddress: operatorAddress,
		log:             log,
	}
}

// CompleteTrade submits completeTrade(tradeId) and returns the transaction
// hash. Fire-and-forget from the caller's perspective: the receipt is not
// awaited.
func (e *Escrow) CompleteTrade(ctx context.Context, tradeID int64) (string, error) {
	data := EncodeCompleteTrade(tradeID)

	txHash, err := e.client.SendTransaction(ctx, e.operatorAddress, e.contractAddress, data)
	if err != nil {
		return "", fmt.Errorf("complete trade %d: %w", tradeID, err)
	}

	e.log.Info("Submitted trade completion", "trade_id", tradeID, "tx_hash", txHash)
	return txHash, nil
}
