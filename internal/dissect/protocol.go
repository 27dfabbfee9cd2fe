// Package dissect implements layered decoding of live network traffic:
// Ethernet II down to the transport layer, IPv4/IPv6 fragment reassembly,
// and dispatch to pluggable application-layer parsers.
package dissect

import "fmt"

// Network-layer protocol numbers as they appear in the Ethernet type field.
const (
	ProtoIPv4 uint32 = 0x0800
	ProtoARP  uint32 = 0x0806
	ProtoIPv6 uint32 = 0x86dd
)

// Transport-layer protocol numbers as they appear in the IP next-protocol
// field. ICMP/ICMPv6 formally belong to the network layer but are decoded
// in the second pass, so they are grouped here.
const (
	ProtoICMP   uint32 = 1
	ProtoTCP    uint32 = 6
	ProtoUDP    uint32 = 17
	ProtoICMPv6 uint32 = 58
)

// Minimum header lengths in bytes.
const (
	ethernetIIMinLen = 14
	ipv4MinLen       = 20
	arpMinLen        = 28
	ipv6MinLen       = 40
	tcpMinLen        = 20
	udpMinLen        = 8
	icmpMinLen       = 8
	icmpv6MinLen     = 8
)

// Header is a decoded protocol header. Concrete types are the *Header
// structs in this package; the tag returned by Protocol distinguishes them.
// The parent link points at the header of the enclosing layer and is only
// valid for the duration of the dispatch that produced it. Callbacks that
// want a header beyond that must copy the struct.
type Header interface {
	// Protocol returns the wire-level protocol tag (Proto* constants).
	// The Ethernet layer returns 0.
	Protocol() uint32

	// Parent returns the header of the enclosing layer, or nil.
	Parent() Header

	setParent(Header)
}

type headerBase struct {
	parent Header
}

func (h *headerBase) Parent() Header     { return h.parent }
func (h *headerBase) setParent(p Header) { h.parent = p }

// EthernetIIHeader is an Ethernet II frame header.
type EthernetIIHeader struct {
	headerBase
	HeaderLen    uint8
	DstMAC       [6]byte
	SrcMAC       [6]byte
	NextProtocol uint16
}

func (h *EthernetIIHeader) Protocol() uint32 { return 0 }

// DstMACString returns the destination MAC as "xx:xx:xx:xx:xx:xx".
func (h *EthernetIIHeader) DstMACString() string { return macString(h.DstMAC) }

// SrcMACString returns the source MAC as "xx:xx:xx:xx:xx:xx".
func (h *EthernetIIHeader) SrcMACString() string { return macString(h.SrcMAC) }

// IPv4Header is an IPv4 header, options included in HeaderLen.
type IPv4Header struct {
	headerBase
	Version        uint8
	HeaderLen      uint8 // IHL * 4
	TOS            uint8
	TotalLen       uint16
	Identification uint16
	FlagReserved   bool
	FlagDont       bool
	FlagMore       bool
	FragOffset     uint16 // in 8-byte units
	TTL            uint8
	NextProtocol   uint8
	Checksum       uint16
	SrcAddr        [4]byte
	DstAddr        [4]byte
}

func (h *IPv4Header) Protocol() uint32 { return ProtoIPv4 }

// SrcAddrString returns the source address in dotted-quad form.
func (h *IPv4Header) SrcAddrString() string { return ipv4String(h.SrcAddr) }

// DstAddrString returns the destination address in dotted-quad form.
func (h *IPv4Header) DstAddrString() string { return ipv4String(h.DstAddr) }

// ARPHeader is an ARP header for IPv4 over Ethernet.
type ARPHeader struct {
	headerBase
	HeaderLen    uint8
	HardwareType uint16
	ProtocolType uint16
	HardwareSize uint8
	ProtocolSize uint8
	Opcode       uint16 // 1=request, 2=reply
	SenderMAC    [6]byte
	SenderIP     [4]byte
	TargetMAC    [6]byte
	TargetIP     [4]byte
}

func (h *ARPHeader) Protocol() uint32 { return ProtoARP }

func (h *ARPHeader) SenderMACString() string { return macString(h.SenderMAC) }
func (h *ARPHeader) TargetMACString() string { return macString(h.TargetMAC) }
func (h *ARPHeader) SenderIPString() string  { return ipv4String(h.SenderIP) }
func (h *ARPHeader) TargetIPString() string  { return ipv4String(h.TargetIP) }

// HopByHopOptions is the IPv6 hop-by-hop options extension, when present
// as the first extension header.
type HopByHopOptions struct {
	NextHeader uint8
	Length     uint8 // header length in 8-byte units, not counting the first 8 bytes
	Options    []byte
}

// IPv6Header is the IPv6 base header. HeaderLen covers the base header
// plus every traversed extension header.
type IPv6Header struct {
	headerBase
	Version      uint8
	HeaderLen    uint16 // 40 + extension chain
	TrafficClass uint8
	FlowLabel    uint32 // 20 bits
	PayloadLen   uint16
	NextHeader   uint8
	HopLimit     uint8
	SrcAddr      [8]uint16
	DstAddr      [8]uint16
	HopByHop     *HopByHopOptions
}

func (h *IPv6Header) Protocol() uint32 { return ProtoIPv6 }

// SrcAddrString returns the source address as colon-separated hex groups.
func (h *IPv6Header) SrcAddrString() string { return ipv6String(h.SrcAddr) }

// DstAddrString returns the destination address as colon-separated hex groups.
func (h *IPv6Header) DstAddrString() string { return ipv6String(h.DstAddr) }

// TCPHeader is a TCP header, options included in HeaderLen.
type TCPHeader struct {
	headerBase
	SrcPort   uint16
	DstPort   uint16
	Seq       uint32
	Ack       uint32
	HeaderLen uint8 // data offset * 4
	FlagRsrvd uint8 // 3 reserved bits
	FlagNonce bool
	FlagCwr   bool
	FlagEce   bool
	FlagUrg   bool
	FlagAck   bool
	FlagPsh   bool
	FlagRst   bool
	FlagSyn   bool
	FlagFin   bool
	Window    uint16
	Checksum  uint16
	UrgPtr    uint16
}

func (h *TCPHeader) Protocol() uint32 { return ProtoTCP }

// UDPHeader is a UDP header.
type UDPHeader struct {
	headerBase
	HeaderLen uint8
	SrcPort   uint16
	DstPort   uint16
	TotalLen  uint16
	Checksum  uint16
}

func (h *UDPHeader) Protocol() uint32 { return ProtoUDP }

// ICMPHeader is the fixed leading part of an ICMP message.
type ICMPHeader struct {
	headerBase
	HeaderLen uint8
	Type      uint8
	Code      uint8
	Checksum  uint16
}

func (h *ICMPHeader) Protocol() uint32 { return ProtoICMP }

// ICMPv6Header is the fixed leading part of an ICMPv6 message.
type ICMPv6Header struct {
	headerBase
	HeaderLen uint8
	Type      uint8
	Code      uint8
	Checksum  uint16
}

func (h *ICMPv6Header) Protocol() uint32 { return ProtoICMPv6 }

const hexDigits = "0123456789abcdef"

func macString(mac [6]byte) string {
	buf := make([]byte, 0, 17)
	for i, b := range mac {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, hexDigits[b>>4], hexDigits[b&0xf])
	}
	return string(buf)
}

func ipv4String(addr [4]byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", addr[0], addr[1], addr[2], addr[3])
}

func ipv6String(addr [8]uint16) string {
	buf := make([]byte, 0, 39)
	for i, g := range addr {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, hexDigits[g>>12&0xf], hexDigits[g>>8&0xf], hexDigits[g>>4&0xf], hexDigits[g&0xf])
	}
	return string(buf)
}
