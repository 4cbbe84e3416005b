package escrow

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ExecutionData mirrors the escrow contract's executionData tuple.
// It is immutable once committed on-chain; the hashlock is the unique
// correlation key for one swap across both chains.
type ExecutionData struct {
	OrderHash        [32]byte
	Hashlock         [32]byte
	Asker            ethcommon.Address
	Fullfiller       ethcommon.Address
	SrcToken         ethcommon.Address
	DstToken         ethcommon.Address
	SrcChainId       *big.Int
	DstChainId       *big.Int
	AskerAmount      *big.Int
	FullfillerAmount *big.Int
	PlatformFee      *big.Int
	FeeCollector     ethcommon.Address
	Timelocks        *big.Int
	Parameters       []byte
}

// HashlockHex returns the lower-case 0x-prefixed hashlock, the canonical
// registry key form.
func (e *ExecutionData) HashlockHex() string {
	return strings.ToLower(hexutil.Encode(e.Hashlock[:]))
}

func (e *ExecutionData) HashlockHash() ethcommon.Hash {
	return ethcommon.Hash(e.Hashlock)
}

// Wire form used on the HTTP boundary: hashes/addresses as hex strings,
// uint256 fields as decimal strings (JS clients cannot carry them as
// numbers without precision loss).
type executionDataJSON struct {
	OrderHash        string `json:"orderHash"`
	Hashlock         string `json:"hashlock"`
	Asker            string `json:"asker"`
	Fullfiller       string `json:"fullfiller"`
	SrcToken         string `json:"srcToken"`
	DstToken         string `json:"dstToken"`
	SrcChainId       string `json:"srcChainId"`
	DstChainId       string `json:"dstChainId"`
	AskerAmount      string `json:"askerAmount"`
	FullfillerAmount string `json:"fullfillerAmount"`
	PlatformFee      string `json:"platformFee"`
	FeeCollector     string `json:"feeCollector"`
	Timelocks        string `json:"timelocks"`
	Parameters       string `json:"parameters"`
}

func (e ExecutionData) MarshalJSON() ([]byte, error) {
	return json.Marshal(executionDataJSON{
		OrderHash:        hexutil.Encode(e.OrderHash[:]),
		Hashlock:         hexutil.Encode(e.Hashlock[:]),
		Asker:            e.Asker.Hex(),
		Fullfiller:       e.Fullfiller.Hex(),
		SrcToken:         e.SrcToken.Hex(),
		DstToken:         e.DstToken.Hex(),
		SrcChainId:       decimalString(e.SrcChainId),
		DstChainId:       decimalString(e.DstChainId),
		AskerAmount:      decimalString(e.AskerAmount),
		FullfillerAmount: decimalString(e.FullfillerAmount),
		PlatformFee:      decimalString(e.PlatformFee),
		FeeCollector:     e.FeeCollector.Hex(),
		Timelocks:        decimalString(e.Timelocks),
		Parameters:       hexutil.Encode(e.Parameters),
	})
}

func (e *ExecutionData) UnmarshalJSON(data []byte) error {
	var raw executionDataJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	orderHash, err := hexBytes32(raw.OrderHash, "orderHash")
	if err != nil {
		return err
	}
	hashlock, err := hexBytes32(raw.Hashlock, "hashlock")
	if err != nil {
		return err
	}

	srcChainId, err := decimalBig(raw.SrcChainId, "srcChainId")
	if err != nil {
		return err
	}
	dstChainId, err := decimalBig(raw.DstChainId, "dstChainId")
	if err != nil {
		return err
	}
	askerAmount, err := decimalBig(raw.AskerAmount, "askerAmount")
	if err != nil {
		return err
	}
	fullfillerAmount, err := decimalBig(raw.FullfillerAmount, "fullfillerAmount")
	if err != nil {
		return err
	}
	platformFee, err := decimalBig(raw.PlatformFee, "platformFee")
	if err != nil {
		return err
	}
	timelocks, err := decimalBig(raw.Timelocks, "timelocks")
	if err != nil {
		return err
	}

	parameters := []byte{}
	if raw.Parameters != "" && raw.Parameters != "0x" {
		parameters, err = hexutil.Decode(raw.Parameters)
		if err != nil {
			return fmt.Errorf("parameters: %w", err)
		}
	}

	*e = ExecutionData{
		OrderHash:        orderHash,
		Hashlock:         hashlock,
		Asker:            ethcommon.HexToAddress(raw.Asker),
		Fullfiller:       ethcommon.HexToAddress(raw.Fullfiller),
		SrcToken:         ethcommon.HexToAddress(raw.SrcToken),
		DstToken:         ethcommon.HexToAddress(raw.DstToken),
		SrcChainId:       srcChainId,
		DstChainId:       dstChainId,
		AskerAmount:      askerAmount,
		FullfillerAmount: fullfillerAmount,
		PlatformFee:      platformFee,
		FeeCollector:     ethcommon.HexToAddress(raw.FeeCollector),
		Timelocks:        timelocks,
		Parameters:       parameters,
	}
	return nil
}

func decimalString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func decimalBig(s, field string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s: not a decimal string: %q", field, s)
	}
	return v, nil
}

func hexBytes32(s, field string) ([32]byte, error) {
	var out [32]byte
	if s == "" {
		return out, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return out, fmt.Errorf("%s: %w", field, err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("%s: expect 32 bytes, got %d", field, len(b))
	}
	copy(out[:], b)
	return out, nil
}
