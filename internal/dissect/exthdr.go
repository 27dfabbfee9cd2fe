package dissect

import (
	"encoding/binary"
	"math"
)

// IPv6 extension header numbers.
const (
	extHopByHop    uint8 = 0
	extRouting     uint8 = 43
	extFragment    uint8 = 44
	extESP         uint8 = 50
	extAH          uint8 = 51
	extDestOptions uint8 = 60
	extNoNext      uint8 = 59
)

// fragmentExtension is a decoded IPv6 Fragment extension header.
type fragmentExtension struct {
	nextHeader     uint8 // protocol of the fragmented payload
	more           bool
	offset         uint16 // 13-bit, in 8-byte units
	identification uint32
}

// extChain is the outcome of a walk over an IPv6 extension header chain.
type extChain struct {
	transport uint8  // next-header value where the walk stopped
	extLen    uint32 // total extension bytes traversed, fragment header included
	frag      *fragmentExtension
}

type extStep int

const (
	stepAdvanced extStep = iota
	stepFoundFragment
	stepStop
	stepMalformed
)

// walkExtensionChain traverses the extension chain of a full IPv6 packet
// (base header included in pkt). Hop-by-Hop, Routing and Destination
// Options are stepped over using the (extLen+1)*8 size formula; the walk
// stops at the Fragment header, at ESP/AH (whose contents are opaque), at
// No-Next, or at the first non-extension value. When stopAtFragment is set
// the caller wants the Fragment header decoded; ESP/AH then fail the walk
// since a Fragment header is not allowed behind them.
func walkExtensionChain(pkt []byte, next uint8, stopAtFragment bool) (extChain, bool) {
	chain := extChain{transport: next}
	off := ipv6MinLen
	if len(pkt) < off {
		return chain, false
	}
	remain := len(pkt) - off
	for {
		step, size := stepExtension(pkt[off:], chain.transport, remain, stopAtFragment, &chain)
		switch step {
		case stepAdvanced:
			off += size
			remain -= size
		case stepFoundFragment:
			chain.extLen += uint32(size)
			return chain, true
		case stepStop:
			if stopAtFragment && chain.frag == nil {
				return chain, false
			}
			return chain, true
		case stepMalformed:
			return chain, false
		}
	}
}

// stepExtension classifies and measures a single link of the chain.
// On stepAdvanced it updates chain.transport and chain.extLen and returns
// the bytes to skip.
func stepExtension(data []byte, next uint8, remain int, stopAtFragment bool, chain *extChain) (extStep, int) {
	switch next {
	case extFragment:
		if remain < 8 {
			return stepMalformed, 0
		}
		frag := &fragmentExtension{nextHeader: data[0]}
		offFlags := binary.BigEndian.Uint16(data[2:4])
		frag.offset = offFlags >> 3
		frag.more = offFlags&0x0001 != 0
		frag.identification = binary.BigEndian.Uint32(data[4:8])
		chain.frag = frag
		return stepFoundFragment, 8
	case extHopByHop, extRouting, extDestOptions:
		if remain < 2 {
			return stepMalformed, 0
		}
		extLen := data[1]
		if uint32(extLen) > math.MaxUint32/8-1 {
			return stepMalformed, 0
		}
		size := (int(extLen) + 1) * 8
		if remain < size {
			return stepMalformed, 0
		}
		chain.transport = data[0]
		chain.extLen += uint32(size)
		return stepAdvanced, size
	case extESP, extAH:
		// Length cannot be determined without the SA; a Fragment header
		// never legally follows, so the chain beyond is opaque.
		if stopAtFragment {
			return stepMalformed, 0
		}
		return stepStop, 0
	default:
		// extNoNext or a transport protocol.
		return stepStop, 0
	}
}

// findFragmentExtension re-walks the chain of a full IPv6 packet looking
// for the Fragment header. Returns the decoded fragment extension and the
// total header length (base plus every extension up to and including the
// fragment header), or ok=false when the packet is not a fragment.
func findFragmentExtension(pkt []byte, next uint8) (*fragmentExtension, uint32, bool) {
	chain, ok := walkExtensionChain(pkt, next, true)
	if !ok || chain.frag == nil {
		return nil, 0, false
	}
	return chain.frag, uint32(ipv6MinLen) + chain.extLen, true
}
