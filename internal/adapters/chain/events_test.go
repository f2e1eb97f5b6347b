package chain

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// encodeTradeCreatedData builds the ABI data segment for a TradeCreated log:
// nine head words with the three strings in the tail.
func encodeTradeCreatedData(tradeID int64, buyer string, merchantID, adID int64, accountName, accountNumber, bankCode string, amount *big.Int, timestamp int64) string {
	head := make([]byte, 0, 9*32)
	tail := make([]byte, 0)

	appendWord := func(v *big.Int) {
		w := make([]byte, 32)
		v.FillBytes(w)
		head = append(head, w...)
	}
	appendAddress := func(addr string) {
		raw, _ := hex.DecodeString(strings.TrimPrefix(addr, "0x"))
		w := make([]byte, 32)
		copy(w[32-len(raw):], raw)
		head = append(head, w...)
	}
	appendString := func(s string) {
		offset := int64(9*32 + len(tail))
		appendWord(big.NewInt(offset))

		length := make([]byte, 32)
		big.NewInt(int64(len(s))).FillBytes(length)
		tail = append(tail, length...)

		padded := make([]byte, (len(s)+31)/32*32)
		copy(padded, s)
		tail = append(tail, padded...)
	}

	appendWord(big.NewInt(tradeID))
	appendAddress(buyer)
	appendWord(big.NewInt(merchantID))
	appendWord(big.NewInt(adID))
	appendString(accountName)
	appendString(accountNumber)
	appendString(bankCode)
	appendWord(amount)
	appendWord(big.NewInt(timestamp))

	return "0x" + hex.EncodeToString(append(head, tail...))
}

func TestDecodeTradeCreated(t *testing.T) {
	amount := new(big.Int)
	amount.SetString("100000000", 10) // 100 tokens at 6 decimals

	log := Log{
		Address:     "0xescrow",
		Topics:      []string{TradeCreatedTopic},
		Data:        encodeTradeCreatedData(1, "0x1111111111111111111111111111111111111111", 10, 5, "Ada Lovelace", "0123456789", "058", amount, 1756600000),
		BlockNumber: "0x1f4",
		TxHash:      "0xabc123",
		LogIndex:    "0x2",
	}

	event, err := DecodeTradeCreated(log)

	assert.NoError(t, err)
	assert.Equal(t, int64(1), event.TradeID)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", event.BuyerAddress)
	assert.Equal(t, int64(10), event.MerchantID)
	assert.Equal(t, int64(5), event.AdID)
	assert.Equal(t, "Ada Lovelace", event.AccountName)
	assert.Equal(t, "0123456789", event.AccountNumber)
	assert.Equal(t, "058", event.BankCode)
	assert.True(t, event.Amount.Equal(decimal.RequireFromString("100000000")))
	assert.Equal(t, int64(1756600000), event.Timestamp.Unix())
	assert.Equal(t, uint64(500), event.BlockNumber)
	assert.Equal(t, uint(2), event.LogIndex)
	assert.Equal(t, "0xabc123", event.TxHash)
}

func TestDecodeTradeCreatedLargeAmount(t *testing.T) {
	amount := new(big.Int)
	amount.SetString("123456789012345678901234567890", 10)

	log := Log{
		Data:        encodeTradeCreatedData(7, "0x2222222222222222222222222222222222222222", 3, 9, "A", "1", "0", amount, 0),
		BlockNumber: "0x1",
		TxHash:      "0xdef",
		LogIndex:    "0x0",
	}

	event, err := DecodeTradeCreated(log)

	assert.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", event.Amount.String())
}

func TestDecodeTradeCreatedTruncatedData(t *testing.T) {
	log := Log{Data: "0x" + strings.Repeat("00", 64), BlockNumber: "0x1", LogIndex: "0x0"}

	_, err := DecodeTradeCreated(log)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "too short")
}

func TestDecodeTradeCreatedBadStringOffset(t *testing.T) {
	// nine zero head words: the string offset words point at offset 0, whose
	// "length" word (tradeId) is 0, so decoding succeeds with empty strings;
	// an offset past the data must fail instead
	data := make([]byte, 9*32)
	// accountName offset points past the end of the buffer
	big.NewInt(int64(len(data) + 64)).FillBytes(data[4*32 : 5*32])

	log := Log{Data: "0x" + hex.EncodeToString(data), BlockNumber: "0x1", LogIndex: "0x0"}

	_, err := DecodeTradeCreated(log)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accountName")
}

func TestDecodeTradeCreatedHostileOffsetAndLength(t *testing.T) {
	// values just under MaxInt64 pass IsInt64 but would wrap an additive
	// bounds check negative and panic on the slice
	maxInt64 := new(big.Int).SetInt64(1<<63 - 1)

	hostileOffset := make([]byte, 9*32)
	maxInt64.FillBytes(hostileOffset[4*32 : 5*32])

	_, err := DecodeTradeCreated(Log{Data: "0x" + hex.EncodeToString(hostileOffset), BlockNumber: "0x1", LogIndex: "0x0"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accountName")

	// valid offset to a tail word carrying a hostile length
	hostileLength := make([]byte, 10*32)
	big.NewInt(9*32).FillBytes(hostileLength[4*32 : 5*32])
	maxInt64.FillBytes(hostileLength[9*32 : 10*32])

	_, err = DecodeTradeCreated(Log{Data: "0x" + hex.EncodeToString(hostileLength), BlockNumber: "0x1", LogIndex: "0x0"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accountName")
}

func TestDecodeTradeCreatedInvalidHex(t *testing.T) {
	log := Log{Data: "0xzz", BlockNumber: "0x1", LogIndex: "0x0"}

	_, err := DecodeTradeCreated(log)

	assert.Error(t, err)
}

func TestTradeCreatedTopic(t *testing.T) {
	assert.True(t, strings.HasPrefix(TradeCreatedTopic, "0x"))
	assert.Len(t, TradeCreatedTopic, 66)
}

func TestEncodeCompleteTrade(t *testing.T) {
	calldata := EncodeCompleteTrade(42)

	assert.True(t, strings.HasPrefix(calldata, "0x"))
	// 4-byte selector plus one 32-byte argument
	assert.Len(t, calldata, 2+8+64)
	assert.True(t, strings.HasSuffix(calldata, "2a"))

	// deterministic for the same trade id
	assert.Equal(t, calldata, EncodeCompleteTrade(42))
	assert.NotEqual(t, calldata, EncodeCompleteTrade(43))
}

func TestParseHexUint64(t *testing.T) {
	cases := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"0x0", 0, false},
		{"0x1f4", 500, false},
		{"0xffffffffffffffff", ^uint64(0), false},
		{"1f4", 500, false},
		{"0x", 0, true},
		{"0xzz", 0, true},
	}

	for _, tc := range cases {
		got, err := ParseHexUint64(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
		} else {
			assert.NoError(t, err, tc.in)
			assert.Equal(t, tc.want, got, tc.in)
		}
	}
}
