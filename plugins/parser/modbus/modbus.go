// Package modbus implements a Modbus-TCP parser: MBAP framing with
// pipelined PDU consumption.
package modbus

import (
	"encoding/binary"
	"sync"
	"time"

	"firestige.xyz/dissect/internal/dissect"
)

// ProtocolID identifies this parser in the engine registry.
const ProtocolID uint32 = 2

// DefaultPort is the well-known Modbus-TCP port.
const DefaultPort uint16 = 502

const mbapHeaderLen = 7

// MBAPHeader is the Modbus Application Protocol header.
type MBAPHeader struct {
	TransactionID uint16
	ProtocolID    uint16 // always 0 for Modbus
	Length        uint16 // unit id + PDU bytes
	UnitID        uint8
}

// PDU is one decoded Modbus protocol data unit.
type PDU struct {
	MBAP         MBAPHeader
	FunctionCode uint8 // exception bit stripped
	IsException  bool
	IsResponse   bool // heuristic: source port is a Modbus port
	Data         []byte
}

// Callback observes each decoded PDU.
type Callback func(now time.Time, totalLen uint32, transport dissect.Header, pdu PDU)

// Parser dissects Modbus-TCP traffic. Safe for concurrent use.
type Parser struct {
	ports map[uint16]bool

	cbMu sync.Mutex
	cb   Callback
}

// NewParser creates a Modbus-TCP parser listening on the given ports
// (port 502 when none are given).
func NewParser(ports ...uint16) *Parser {
	if len(ports) == 0 {
		ports = []uint16{DefaultPort}
	}
	set := make(map[uint16]bool, len(ports))
	for _, port := range ports {
		set[port] = true
	}
	return &Parser{ports: set}
}

func (p *Parser) Protocol() uint32 { return ProtocolID }

// SetCallback installs the PDU observer.
func (p *Parser) SetCallback(cb Callback) {
	p.cbMu.Lock()
	p.cb = cb
	p.cbMu.Unlock()
}

// Parse implements dissect.ProtocolParser.
func (p *Parser) Parse(now time.Time, totalLen uint32, transport dissect.Header, payload []byte) (dissect.ParseResult, uint32) {
	tcpHeader, ok := transport.(*dissect.TCPHeader)
	if !ok {
		return dissect.ParseFailure, 0
	}
	if !p.ports[tcpHeader.SrcPort] && !p.ports[tcpHeader.DstPort] {
		return dissect.ParseFailure, 0
	}
	if len(payload) < mbapHeaderLen {
		// Likely split by TCP segmentation; wait for the rest.
		return dissect.ParseContinue, 0
	}
	mbap := MBAPHeader{
		TransactionID: binary.BigEndian.Uint16(payload[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(payload[2:4]),
		Length:        binary.BigEndian.Uint16(payload[4:6]),
		UnitID:        payload[6],
	}
	if mbap.ProtocolID != 0 {
		return dissect.ParseFailure, 0
	}
	// Length counts the unit id plus the PDU; a PDU is at least the
	// function code.
	if mbap.Length < 2 {
		return dissect.ParseFailure, 0
	}
	fullFrameLen := uint32(6 + mbap.Length)
	if uint32(len(payload)) < fullFrameLen {
		return dissect.ParseContinue, 0
	}
	pduBytes := payload[mbapHeaderLen:fullFrameLen]
	rawFuncCode := pduBytes[0]
	isException := rawFuncCode&0x80 != 0
	funcCode := rawFuncCode & 0x7f
	if !validFunctionCode(funcCode) {
		return dissect.ParseFailure, 0
	}
	if isException && len(pduBytes) < 2 {
		// An exception response must carry the exception code.
		return dissect.ParseFailure, 0
	}

	pdu := PDU{
		MBAP:         mbap,
		FunctionCode: funcCode,
		IsException:  isException,
		IsResponse:   p.ports[tcpHeader.SrcPort],
		Data:         pduBytes[1:],
	}
	p.cbMu.Lock()
	cb := p.cb
	p.cbMu.Unlock()
	if cb != nil {
		cb(now, totalLen, tcpHeader, pdu)
	}
	return dissect.ParseSuccess, fullFrameLen
}

// validFunctionCode covers the public function codes in common use.
func validFunctionCode(code uint8) bool {
	switch code {
	case 1, 2, 3, 4, 5, 6, 7, 8, 11, 12, 15, 16, 17, 20, 21, 22, 23, 24, 43:
		return true
	}
	return false
}
