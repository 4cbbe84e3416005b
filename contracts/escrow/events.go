package escrow

import (
	"errors"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrUnknownEvent marks a log whose topic0 matches none of the escrow
// event signatures. Callers skip such logs; arbitrary unrelated contract
// logs can show up in the same block range.
var ErrUnknownEvent = errors.New("unknown event")

// Event is one decoded escrow/factory log.
type Event interface {
	EventName() string
}

type SrcEscrowCreatedEvent struct {
	ExecutionData ExecutionData
}

func (e *SrcEscrowCreatedEvent) EventName() string { return "SrcEscrowCreated" }

type DstEscrowCreatedEvent struct {
	Escrow   ethcommon.Address
	Hashlock [32]byte
	Asker    ethcommon.Address
}

func (e *DstEscrowCreatedEvent) EventName() string { return "DstEscrowCreated" }

type FulfillerSetEvent struct {
	SrcEscrowAddress ethcommon.Address
	FulfillerAddress ethcommon.Address
}

func (e *FulfillerSetEvent) EventName() string { return "FulfillerSet" }

type DstSecretRevealedEvent struct {
	Secret   [32]byte
	Hashlock [32]byte
}

func (e *DstSecretRevealedEvent) EventName() string { return "DstSecretRevealed" }

// DecodeLog classifies a raw log by topic0 and ABI-decodes it into a typed
// event. Returns ErrUnknownEvent when topic0 matches no known signature.
func DecodeLog(vlog types.Log) (Event, error) {
	if len(vlog.Topics) == 0 {
		return nil, ErrUnknownEvent
	}

	switch vlog.Topics[0] {
	case SrcEscrowCreatedSignatureHash:
		var out struct {
			SrcExecutionData ExecutionData
		}
		if err := FactoryABI.UnpackIntoInterface(&out, "SrcEscrowCreated", vlog.Data); err != nil {
			return nil, err
		}
		return &SrcEscrowCreatedEvent{ExecutionData: out.SrcExecutionData}, nil

	case DstEscrowCreatedSignatureHash:
		ev := new(DstEscrowCreatedEvent)
		if err := FactoryABI.UnpackIntoInterface(ev, "DstEscrowCreated", vlog.Data); err != nil {
			return nil, err
		}
		return ev, nil

	case FulfillerSetSignatureHash:
		// Both arguments indexed, nothing lives in the data segment.
		if len(vlog.Topics) < 3 {
			return nil, errors.New("FulfillerSet: missing indexed topics")
		}
		return &FulfillerSetEvent{
			SrcEscrowAddress: ethcommon.BytesToAddress(vlog.Topics[1].Bytes()),
			FulfillerAddress: ethcommon.BytesToAddress(vlog.Topics[2].Bytes()),
		}, nil

	case DstSecretRevealedSignatureHash:
		ev := new(DstSecretRevealedEvent)
		if err := EscrowABI.UnpackIntoInterface(ev, "DstSecretRevealed", vlog.Data); err != nil {
			return nil, err
		}
		return ev, nil

	default:
		return nil, ErrUnknownEvent
	}
}
