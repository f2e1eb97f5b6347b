package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"

	"github.com/p2ramp/settlement_service/internal/domain/entities"
)

const tradeCreatedSignature = "TradeCreated(uint256,address,uint256,uint256,string,string,string,uint256,uint256)"

// TradeCreatedTopic is the topic0 hash identifying TradeCreated logs
var TradeCreatedTopic = eventTopic(tradeCreatedSignature)

func eventTopic(signature string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// DecodeTradeCreated decodes an ABI-encoded TradeCreated log into a domain
// event. All parameters are non-indexed, so everything lives in the data
// segment: six static words, three dynamic strings addressed by offset.
func DecodeTradeCreated(log Log) (*entities.TradeCreatedEvent, error) {
	data, err := decodeHexData(log.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid log data: %w", err)
	}
	if len(data) < 9*32 {
		return nil, fmt.Errorf("log data too short: %d bytes", len(data))
	}

	tradeID, err := wordInt64(data, 0)
	if err != nil {
		return nil, fmt.Errorf("tradeId: %w", err)
	}
	buyer := wordAddress(data, 1)
	merchantID, err := wordInt64(data, 2)
	if err != nil {
		return nil, fmt.Errorf("merchantId: %w", err)
	}
	adID, err := wordInt64(data, 3)
	if err != nil {
		return nil, fmt.Errorf("adId: %w", err)
	}

	accountName, err := wordString(data, 4)
	if err != nil {
		return nil, fmt.Errorf("accountName: %w", err)
	}
	accountNumber, err := wordString(data, 5)
	if err != nil {
		return nil, fmt.Errorf("accountNumber: %w", err)
	}
	bankCode, err := wordString(data, 6)
	if err != nil {
		return nil, fmt.Errorf("bankCode: %w", err)
	}

	amount := wordBig(data, 7)
	tsSeconds, err := wordInt64(data, 8)
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}

	blockNumber, err := ParseHexUint64(log.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("blockNumber: %w", err)
	}
	logIndex, err := ParseHexUint64(log.LogIndex)
	if err != nil {
		return nil, fmt.Errorf("logIndex: %w", err)
	}

	return &entities.TradeCreatedEvent{
		TradeID:       tradeID,
		BuyerAddress:  buyer,
		MerchantID:    merchantID,
		AdID:          adID,
		AccountName:   accountName,
		AccountNumber: accountNumber,
		BankCode:      bankCode,
		Amount:        decimal.NewFromBigInt(amount, 0),
		Timestamp:     time.Unix(tsSeconds, 0).UTC(),
		TxHash:        log.TxHash,
		BlockNumber:   blockNumber,
		LogIndex:      uint(logIndex),
	}, nil
}

// EncodeCompleteTrade builds the calldata for completeTrade(uint256)
func EncodeCompleteTrade(tradeID int64) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("completeTrade(uint256)"))
	selector := h.Sum(nil)[:4]

	arg := make([]byte, 32)
	big.NewInt(tradeID).FillBytes(arg)

	return "0x" + hex.EncodeToString(selector) + hex.EncodeToString(arg)
}

func decodeHexData(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func word(data []byte, index int) []byte {
	return data[index*32 : (index+1)*32]
}

func wordBig(data []byte, index int) *big.Int {
	return new(big.Int).SetBytes(word(data, index))
}

func wordInt64(data []byte, index int) (int64, error) {
	v := wordBig(data, index)
	if !v.IsInt64() {
		return 0, fmt.Errorf("value overflows int64")
	}
	return v.Int64(), nil
}

func wordAddress(data []byte, index int) string {
	// addresses are the last 20 bytes of the word
	return "0x" + hex.EncodeToString(word(data, index)[12:])
}

// wordString resolves a dynamic string parameter: the head word at index is
// a byte offset into data, pointing at a length word followed by the bytes.
func wordString(data []byte, index int) (string, error) {
	// compare before any arithmetic: offsets and lengths come off the wire
	// and values near MaxInt64 would wrap an additive bounds check
	offset := wordBig(data, index)
	if !offset.IsInt64() || offset.Int64() > int64(len(data))-32 {
		return "", fmt.Errorf("string offset out of range")
	}
	start := int(offset.Int64())

	length := new(big.Int).SetBytes(data[start : start+32])
	if !length.IsInt64() || length.Int64() > int64(len(data)-start-32) {
		return "", fmt.Errorf("string length out of range")
	}
	n := int(length.Int64())

	return string(data[start+32 : start+32+n]), nil
}
