package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/nexbit/dvs/internal/domain"
	"github.com/nexbit/dvs/pkg/config"
	"github.com/nexbit/dvs/pkg/currency"
)

// EthereumClient verifies ERC20 deposits over standard JSON-RPC.
type EthereumClient struct {
	rpcURL           string
	wallet           common.Address
	contract         common.Address
	tokenDecimals    int32
	minConfirmations int64
	httpClient       *http.Client
	logger           zerolog.Logger
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type ethReceipt struct {
	Status      string   `json:"status"`
	BlockNumber string   `json:"blockNumber"`
	From        string   `json:"from"`
	Logs        []ethLog `json:"logs"`
}

type ethLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

type ethBlock struct {
	Timestamp string `json:"timestamp"`
}

func NewEthereumClient(cfg config.ChainConfig, logger zerolog.Logger) *EthereumClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &EthereumClient{
		rpcURL:           cfg.APIURL,
		wallet:           common.HexToAddress(cfg.WalletAddress),
		contract:         common.HexToAddress(cfg.TokenContract),
		tokenDecimals:    cfg.TokenDecimals,
		minConfirmations: cfg.MinConfirmations,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
}

func (c *EthereumClient) Network() domain.Network {
	return domain.NetworkEthereum
}

func (c *EthereumClient) Verify(ctx context.Context, txHash string) (domain.Verdict, error) {
	// Nodes reject DATA params without the 0x prefix, which bare Tron-style
	// hashes lack when the cross-chain fallback lands here.
	if !strings.HasPrefix(txHash, "0x") {
		txHash = "0x" + txHash
	}

	raw, err := c.call(ctx, "eth_getTransactionReceipt", []any{txHash})
	if err != nil {
		return c.transportVerdict(txHash, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return domain.Verdict{Error: domain.VerifyErrNotFound}, nil
	}

	var receipt ethReceipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return domain.Verdict{}, &responseDecodeError{gateway: "ethereum", err: err}
	}

	if receipt.Status != "" && receipt.Status != "0x1" {
		return domain.Verdict{Error: domain.VerifyErrTxFailed, Detail: "execution reverted"}, nil
	}

	verdict, matched, err := c.scanTransferLogs(receipt)
	if err != nil {
		return domain.Verdict{}, err
	}
	if !matched {
		return verdict, nil
	}

	headRaw, err := c.call(ctx, "eth_blockNumber", []any{})
	if err != nil {
		return c.transportVerdict(txHash, err)
	}
	head, err := decodeQuantity(headRaw)
	if err != nil {
		return domain.Verdict{}, &responseDecodeError{gateway: "ethereum", err: err}
	}

	verdict.Confirmations = head - verdict.BlockNumber

	blockRaw, err := c.call(ctx, "eth_getBlockByNumber", []any{hexutil.EncodeUint64(uint64(verdict.BlockNumber)), false})
	if err != nil {
		return c.transportVerdict(txHash, err)
	}
	var block ethBlock
	if err := json.Unmarshal(blockRaw, &block); err != nil {
		return domain.Verdict{}, &responseDecodeError{gateway: "ethereum", err: err}
	}
	if ts, err := hexutil.DecodeUint64(block.Timestamp); err == nil {
		verdict.BlockTimestamp = time.Unix(int64(ts), 0)
	}

	if verdict.Confirmations < c.minConfirmations {
		verdict.Valid = false
		verdict.Error = domain.VerifyErrInsufficientConfirmations
		verdict.Detail = fmt.Sprintf("%d of %d confirmations", verdict.Confirmations, c.minConfirmations)
		return verdict, nil
	}

	verdict.Valid = true
	verdict.Error = domain.VerifyErrNone
	c.logger.Info().
		Str("tx_hash", txHash).
		Str("amount", verdict.Amount.String()).
		Int64("confirmations", verdict.Confirmations).
		Msg("Ethereum transfer verified")
	return verdict, nil
}

func (c *EthereumClient) scanTransferLogs(receipt ethReceipt) (domain.Verdict, bool, error) {
	blockNumber, err := decodeQuantity([]byte(`"` + receipt.BlockNumber + `"`))
	if err != nil {
		return domain.Verdict{}, false, &responseDecodeError{gateway: "ethereum", err: err}
	}

	sawTransfer := false
	var failure domain.Verdict

	for _, lg := range receipt.Logs {
		if common.HexToAddress(lg.Address) != c.contract {
			continue
		}
		if len(lg.Topics) < 3 || !strings.EqualFold(strings.TrimPrefix(lg.Topics[0], "0x"), TransferEventTopic) {
			continue
		}
		sawTransfer = true

		from := common.BytesToAddress(common.HexToHash(lg.Topics[1]).Bytes()[12:])
		to := common.BytesToAddress(common.HexToHash(lg.Topics[2]).Bytes()[12:])
		rawAmount, ok := new(big.Int).SetString(strings.TrimPrefix(lg.Data, "0x"), 16)
		if !ok {
			failure = domain.Verdict{
				BlockNumber: blockNumber,
				Error:       domain.VerifyErrNoTransferFound,
				Detail:      "unparsable transfer amount",
			}
			continue
		}
		amount := currency.FromBaseUnits(rawAmount, c.tokenDecimals)

		if to == c.wallet {
			return domain.Verdict{
				Amount:      amount,
				From:        from.Hex(),
				To:          to.Hex(),
				BlockNumber: blockNumber,
			}, true, nil
		}

		failure = domain.Verdict{
			Amount:      amount,
			From:        from.Hex(),
			To:          to.Hex(),
			BlockNumber: blockNumber,
			Error:       domain.VerifyErrRecipientMismatch,
		}
	}

	if !sawTransfer {
		return domain.Verdict{Error: domain.VerifyErrNoTransferFound}, false, nil
	}
	return failure, false, nil
}

func (c *EthereumClient) transportVerdict(txHash string, err error) (domain.Verdict, error) {
	if decodeErr, ok := err.(*responseDecodeError); ok {
		return domain.Verdict{}, decodeErr
	}
	c.logger.Warn().Str("tx_hash", txHash).Err(err).Msg("Ethereum gateway request failed")
	return domain.Verdict{Error: domain.VerifyErrRPC, Detail: err.Error()}, nil
}

func (c *EthereumClient) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach Ethereum node: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.Error().
			Str("method", method).
			Int("status_code", resp.StatusCode).
			Str("response_body", string(respBody)).
			Msg("Ethereum RPC request failed")
		return nil, fmt.Errorf("Ethereum RPC request failed with status %s", resp.Status)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, &responseDecodeError{gateway: "ethereum", err: err}
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("Ethereum RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func decodeQuantity(raw json.RawMessage) (int64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	v, err := hexutil.DecodeUint64(s)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}
