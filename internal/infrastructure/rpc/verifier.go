package rpc

import (
	"context"

	"github.com/nexbit/dvs/internal/domain"
)

// TransferEventTopic is the keccak256 hash of Transfer(address,address,uint256),
// shared by ERC20 and TRC20 token contracts.
const TransferEventTopic = "ddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// IChainVerifier checks a transaction hash against the platform's receiving
// address on one chain. Expected failure conditions come back inside the
// verdict; an error return means the gateway response could not be decoded.
type IChainVerifier interface {
	Network() domain.Network
	Verify(ctx context.Context, txHash string) (domain.Verdict, error)
}
