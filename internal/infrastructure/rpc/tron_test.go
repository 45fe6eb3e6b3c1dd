package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexbit/dvs/internal/domain"
	"github.com/nexbit/dvs/pkg/config"
)

const (
	testTronWallet   = "TNPeeaaFB7K9cmo4uQpcU32zGK8G1NYqeL"
	testTronContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	testTronSender   = "TJRabPrwbZy45sbavfcjinPJC18kjpRTv8"
	testTronTxID     = "7c2d8a5f3b1e9c4d6a8f0b2e5c7d9a1f3b5e7c9d1a3f5b7e9c1d3a5f7b9e1c3d"
)

func tronChainConfig(url string) config.ChainConfig {
	return config.ChainConfig{
		APIURL:           url,
		WalletAddress:    testTronWallet,
		TokenContract:    testTronContract,
		TokenDecimals:    6,
		MinConfirmations: 19,
		Timeout:          5 * time.Second,
	}
}

func padTopic(addrHex string) string {
	return strings.Repeat("0", 24) + addrHex
}

func tronTransferLog(t *testing.T, from, to string, baseUnits int64) tronLog {
	t.Helper()
	contractHex, err := tronAddressHex(testTronContract)
	require.NoError(t, err)
	fromHex, err := tronAddressHex(from)
	require.NoError(t, err)
	toHex, err := tronAddressHex(to)
	require.NoError(t, err)

	return tronLog{
		Address: contractHex,
		Topics:  []string{TransferEventTopic, padTopic(fromHex), padTopic(toHex)},
		Data:    fmt.Sprintf("%064x", baseUnits),
	}
}

func newTronServer(t *testing.T, txInfo any, headBlock int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wallet/gettransactioninfobyid":
			require.NoError(t, json.NewEncoder(w).Encode(txInfo))
		case "/wallet/getnowblock":
			var head tronBlock
			head.BlockHeader.RawData.Number = headBlock
			require.NoError(t, json.NewEncoder(w).Encode(head))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestTronVerifyValidTransfer(t *testing.T) {
	txInfo := tronTxInfo{
		ID:             testTronTxID,
		BlockNumber:    1000,
		BlockTimeStamp: 1756700000000,
		Log:            []tronLog{tronTransferLog(t, testTronSender, testTronWallet, 150_000_000)},
	}
	txInfo.Receipt.Result = "SUCCESS"

	srv := newTronServer(t, txInfo, 1019)
	defer srv.Close()

	client, err := NewTronClient(tronChainConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)

	verdict, err := client.Verify(context.Background(), testTronTxID)
	require.NoError(t, err)

	assert.True(t, verdict.Valid)
	assert.True(t, verdict.Amount.Equal(decimal.NewFromInt(150)), "6 decimals scaled to whole USDT")
	assert.Equal(t, testTronSender, verdict.From, "sender comes back in base58")
	assert.Equal(t, testTronWallet, verdict.To)
	assert.Equal(t, int64(1000), verdict.BlockNumber)
	assert.Equal(t, int64(19), verdict.Confirmations)
	assert.Equal(t, time.UnixMilli(1756700000000), verdict.BlockTimestamp)
}

func TestTronVerifyAcceptsPrefixedHash(t *testing.T) {
	// EVM-claimed deposits fall back to this verifier with a 0x-prefixed
	// hash; the gateway only understands the bare id.
	txInfo := tronTxInfo{
		ID:          testTronTxID,
		BlockNumber: 1000,
		Log:         []tronLog{tronTransferLog(t, testTronSender, testTronWallet, 150_000_000)},
	}
	txInfo.Receipt.Result = "SUCCESS"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wallet/gettransactioninfobyid":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, testTronTxID, body["value"], "gateway must receive the bare hash")
			require.NoError(t, json.NewEncoder(w).Encode(txInfo))
		case "/wallet/getnowblock":
			var head tronBlock
			head.BlockHeader.RawData.Number = 1019
			require.NoError(t, json.NewEncoder(w).Encode(head))
		}
	}))
	defer srv.Close()

	client, err := NewTronClient(tronChainConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)

	verdict, err := client.Verify(context.Background(), "0x"+testTronTxID)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.True(t, verdict.Amount.Equal(decimal.NewFromInt(150)))
}

func TestTronVerifyUnparsableAmount(t *testing.T) {
	lg := tronTransferLog(t, testTronSender, testTronWallet, 150_000_000)
	lg.Data = "nothex"
	txInfo := tronTxInfo{ID: testTronTxID, BlockNumber: 1000, Log: []tronLog{lg}}
	txInfo.Receipt.Result = "SUCCESS"

	srv := newTronServer(t, txInfo, 1019)
	defer srv.Close()

	client, err := NewTronClient(tronChainConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)

	verdict, err := client.Verify(context.Background(), testTronTxID)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.Equal(t, domain.VerifyErrNoTransferFound, verdict.Error)
	assert.Equal(t, "unparsable transfer amount", verdict.Detail, "the escalation reason must not be empty")
}

func TestTronVerifyNotFound(t *testing.T) {
	// Unknown ids answer an empty object rather than an error.
	srv := newTronServer(t, map[string]any{}, 1019)
	defer srv.Close()

	client, err := NewTronClient(tronChainConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)

	verdict, err := client.Verify(context.Background(), testTronTxID)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.Equal(t, domain.VerifyErrNotFound, verdict.Error)
	assert.True(t, verdict.Error.Retryable())
}

func TestTronVerifyRevertedTransaction(t *testing.T) {
	txInfo := tronTxInfo{ID: testTronTxID, BlockNumber: 1000}
	txInfo.Receipt.Result = "REVERT"

	srv := newTronServer(t, txInfo, 1019)
	defer srv.Close()

	client, err := NewTronClient(tronChainConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)

	verdict, err := client.Verify(context.Background(), testTronTxID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerifyErrTxFailed, verdict.Error)
	assert.False(t, verdict.Error.Retryable())
}

func TestTronVerifyRecipientMismatch(t *testing.T) {
	txInfo := tronTxInfo{
		ID:          testTronTxID,
		BlockNumber: 1000,
		Log:         []tronLog{tronTransferLog(t, testTronWallet, testTronSender, 25_000_000)},
	}
	txInfo.Receipt.Result = "SUCCESS"

	srv := newTronServer(t, txInfo, 1019)
	defer srv.Close()

	client, err := NewTronClient(tronChainConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)

	verdict, err := client.Verify(context.Background(), testTronTxID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerifyErrRecipientMismatch, verdict.Error)
	assert.Equal(t, testTronSender, verdict.To, "the actual recipient is reported for review")
	assert.False(t, verdict.Error.Retryable())
}

func TestTronVerifyNoTransferEvent(t *testing.T) {
	lg := tronTransferLog(t, testTronSender, testTronWallet, 150_000_000)
	lg.Topics[0] = strings.Repeat("ab", 32)
	txInfo := tronTxInfo{ID: testTronTxID, BlockNumber: 1000, Log: []tronLog{lg}}
	txInfo.Receipt.Result = "SUCCESS"

	srv := newTronServer(t, txInfo, 1019)
	defer srv.Close()

	client, err := NewTronClient(tronChainConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)

	verdict, err := client.Verify(context.Background(), testTronTxID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerifyErrNoTransferFound, verdict.Error)
}

func TestTronVerifyInsufficientConfirmations(t *testing.T) {
	txInfo := tronTxInfo{
		ID:          testTronTxID,
		BlockNumber: 1000,
		Log:         []tronLog{tronTransferLog(t, testTronSender, testTronWallet, 150_000_000)},
	}
	txInfo.Receipt.Result = "SUCCESS"

	srv := newTronServer(t, txInfo, 1005)
	defer srv.Close()

	client, err := NewTronClient(tronChainConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)

	verdict, err := client.Verify(context.Background(), testTronTxID)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.Equal(t, domain.VerifyErrInsufficientConfirmations, verdict.Error)
	assert.Equal(t, int64(5), verdict.Confirmations)
	assert.True(t, verdict.Error.Retryable())
}

func TestTronVerifyGatewayFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewTronClient(tronChainConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)

	verdict, err := client.Verify(context.Background(), testTronTxID)
	require.NoError(t, err, "transport failures are verdict data, not errors")
	assert.Equal(t, domain.VerifyErrRPC, verdict.Error)
	assert.True(t, verdict.Error.Retryable())
}

func TestTronVerifyMalformedResponseIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer srv.Close()

	client, err := NewTronClient(tronChainConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)

	_, err = client.Verify(context.Background(), testTronTxID)
	require.Error(t, err)
	var decodeErr *responseDecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestNewTronClientRejectsInvalidAddresses(t *testing.T) {
	cfg := tronChainConfig("http://localhost")
	cfg.WalletAddress = "not-a-tron-address"
	_, err := NewTronClient(cfg, zerolog.Nop())
	assert.Error(t, err)

	cfg = tronChainConfig("http://localhost")
	cfg.TokenContract = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	_, err = NewTronClient(cfg, zerolog.Nop())
	assert.Error(t, err, "EVM-style contract address is not valid on Tron")
}
