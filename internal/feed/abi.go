package feed

import (
	"fmt"
	"math/big"
)

const wordSize = 32

// Function selectors of the aggregator interface.
var (
	decimalsSelector        = []byte{0x31, 0x3c, 0xe5, 0x67} // decimals()
	latestRoundDataSelector = []byte{0xfe, 0xaf, 0x96, 0x8c} // latestRoundData()
)

// maxDecimals bounds the scale a feed may report.
const maxDecimals = 36

// RoundData is the decoded latestRoundData() tuple.
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       *big.Int
	UpdatedAt       *big.Int
	AnsweredInRound *big.Int
}

var twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)

func decodeUint256(word []byte) *big.Int {
	return new(big.Int).SetBytes(word)
}

// decodeInt256 reads a two's complement signed word.
func decodeInt256(word []byte) *big.Int {
	v := new(big.Int).SetBytes(word)
	if len(word) > 0 && word[0]&0x80 != 0 {
		v.Sub(v, twoTo256)
	}
	return v
}

func decodeDecimals(data []byte) (uint8, error) {
	if len(data) < wordSize {
		return 0, fmt.Errorf("decimals: short result of %d bytes", len(data))
	}
	v := decodeUint256(data[:wordSize])
	if !v.IsUint64() || v.Uint64() > maxDecimals {
		return 0, fmt.Errorf("decimals: value %s out of range", v)
	}
	return uint8(v.Uint64()), nil
}

func decodeRoundData(data []byte) (RoundData, error) {
	if len(data) < 5*wordSize {
		return RoundData{}, fmt.Errorf("latestRoundData: short result of %d bytes", len(data))
	}
	word := func(i int) []byte { return data[i*wordSize : (i+1)*wordSize] }
	return RoundData{
		RoundID:         decodeUint256(word(0)),
		Answer:          decodeInt256(word(1)),
		StartedAt:       decodeUint256(word(2)),
		UpdatedAt:       decodeUint256(word(3)),
		AnsweredInRound: decodeUint256(word(4)),
	}, nil
}
