package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/rs/zerolog"

	"github.com/nexbit/dvs/internal/domain"
	"github.com/nexbit/dvs/pkg/config"
	"github.com/nexbit/dvs/pkg/currency"
)

// TronClient verifies TRC20 deposits against a Tron full node's HTTP API.
type TronClient struct {
	baseURL          string
	apiKey           string
	walletHex        string
	contractHex      string
	tokenDecimals    int32
	minConfirmations int64
	httpClient       *http.Client
	logger           zerolog.Logger
}

type tronTxInfo struct {
	ID             string `json:"id"`
	BlockNumber    int64  `json:"blockNumber"`
	BlockTimeStamp int64  `json:"blockTimeStamp"`
	Receipt        struct {
		Result string `json:"result"`
	} `json:"receipt"`
	Log []tronLog `json:"log"`
}

type tronLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

type tronBlock struct {
	BlockHeader struct {
		RawData struct {
			Number int64 `json:"number"`
		} `json:"raw_data"`
	} `json:"block_header"`
}

func NewTronClient(cfg config.ChainConfig, logger zerolog.Logger) (*TronClient, error) {
	walletHex, err := tronAddressHex(cfg.WalletAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid Tron wallet address %s: %w", cfg.WalletAddress, err)
	}
	contractHex, err := tronAddressHex(cfg.TokenContract)
	if err != nil {
		return nil, fmt.Errorf("invalid Tron token contract %s: %w", cfg.TokenContract, err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &TronClient{
		baseURL:          strings.TrimRight(cfg.APIURL, "/"),
		apiKey:           cfg.APIKey,
		walletHex:        walletHex,
		contractHex:      contractHex,
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
	}, nil
}

func (c *TronClient) Network() domain.Network {
	return domain.NetworkTron
}

func (c *TronClient) Verify(ctx context.Context, txHash string) (domain.Verdict, error) {
	// The gateway wants a bare hex id; the cross-chain fallback may hand us
	// an EVM-style 0x-prefixed hash.
	txHash = strings.TrimPrefix(txHash, "0x")

	var info tronTxInfo
	if err := c.post(ctx, "/wallet/gettransactioninfobyid", map[string]string{"value": txHash}, &info); err != nil {
		if decodeErr, ok := err.(*responseDecodeError); ok {
			return domain.Verdict{}, decodeErr
		}
		c.logger.Warn().Str("tx_hash", txHash).Err(err).Msg("Tron gateway request failed")
		return domain.Verdict{Error: domain.VerifyErrRPC, Detail: err.Error()}, nil
	}

	// The node answers an empty object for unknown or not-yet-indexed ids.
	if info.ID == "" {
		return domain.Verdict{Error: domain.VerifyErrNotFound}, nil
	}

	if info.Receipt.Result != "" && info.Receipt.Result != "SUCCESS" {
		return domain.Verdict{
			Error:  domain.VerifyErrTxFailed,
			Detail: fmt.Sprintf("contract result %s", info.Receipt.Result),
		}, nil
	}

	verdict, matched := c.scanTransferLogs(info)
	if !matched {
		return verdict, nil
	}

	var head tronBlock
	if err := c.post(ctx, "/wallet/getnowblock", map[string]string{}, &head); err != nil {
		if decodeErr, ok := err.(*responseDecodeError); ok {
			return domain.Verdict{}, decodeErr
		}
		return domain.Verdict{Error: domain.VerifyErrRPC, Detail: err.Error()}, nil
	}

	verdict.Confirmations = head.BlockHeader.RawData.Number - info.BlockNumber
	verdict.BlockTimestamp = time.UnixMilli(info.BlockTimeStamp)

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
		Msg("Tron transfer verified")
	return verdict, nil
}

// scanTransferLogs looks for a Transfer event of the configured token
// contract. The second return value reports whether a transfer to the
// platform wallet was found; otherwise the verdict already carries the
// permanent failure classification.
func (c *TronClient) scanTransferLogs(info tronTxInfo) (domain.Verdict, bool) {
	sawTransfer := false
	var failure domain.Verdict

	for _, lg := range info.Log {
		if !strings.EqualFold(lg.Address, c.contractHex) {
			continue
		}
		if len(lg.Topics) < 3 || !strings.EqualFold(lg.Topics[0], TransferEventTopic) {
			continue
		}
		sawTransfer = true

		from := lastTwentyBytesHex(lg.Topics[1])
		to := lastTwentyBytesHex(lg.Topics[2])
		raw, ok := new(big.Int).SetString(strings.TrimPrefix(lg.Data, "0x"), 16)
		if !ok {
			failure = domain.Verdict{
				BlockNumber: info.BlockNumber,
				Error:       domain.VerifyErrNoTransferFound,
				Detail:      "unparsable transfer amount",
			}
			continue
		}
		amount := currency.FromBaseUnits(raw, c.tokenDecimals)

		if strings.EqualFold(to, c.walletHex) {
			return domain.Verdict{
				Amount:      amount,
				From:        tronHexToBase58(from),
				To:          tronHexToBase58(to),
				BlockNumber: info.BlockNumber,
			}, true
		}

		failure = domain.Verdict{
			Amount:      amount,
			From:        tronHexToBase58(from),
			To:          tronHexToBase58(to),
			BlockNumber: info.BlockNumber,
			Error:       domain.VerifyErrRecipientMismatch,
		}
	}

	if !sawTransfer {
		return domain.Verdict{Error: domain.VerifyErrNoTransferFound}, false
	}
	return failure, false
}

func (c *TronClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach Tron node: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.Error().
			Str("path", path).
			Int("status_code", resp.StatusCode).
			Str("response_body", string(respBody)).
			Msg("Tron API request failed")
		return fmt.Errorf("Tron API request failed with status %s", resp.Status)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &responseDecodeError{gateway: "tron", err: err}
	}
	return nil
}

// tronAddressHex decodes a base58check Tron address into its canonical
// 20-byte form, hex encoded, for comparison with event log fields.
func tronAddressHex(base58 string) (string, error) {
	addr, err := address.Base58ToAddress(base58)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(addr.Bytes()[1:]), nil
}

func tronHexToBase58(hexAddr string) string {
	raw, err := hex.DecodeString(hexAddr)
	if err != nil || len(raw) != 20 {
		return hexAddr
	}
	return address.Address(append([]byte{address.TronBytePrefix}, raw...)).String()
}

func lastTwentyBytesHex(topic string) string {
	topic = strings.TrimPrefix(strings.ToLower(topic), "0x")
	if len(topic) < 40 {
		return topic
	}
	return topic[len(topic)-40:]
}

// responseDecodeError marks a malformed gateway body. It propagates as a
// real error so the scheduler logs it at the tick boundary instead of
// classifying the attempt.
type responseDecodeError struct {
	gateway string
	err     error
}

func (e *responseDecodeError) Error() string {
	return fmt.Sprintf("failed to parse %s gateway response: %v", e.gateway, e.err)
}

func (e *responseDecodeError) Unwrap() error {
	return e.err
}
