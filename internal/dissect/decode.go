package dissect

import "encoding/binary"

// Header decoders. Each takes the raw bytes of its layer and returns the
// decoded header plus the number of bytes the header occupies, or ok=false
// when the input is shorter than the minimum length or the encoded header
// length is self-inconsistent. All multi-byte fields are network byte order.

func decodeEthernetII(data []byte) (*EthernetIIHeader, uint32, bool) {
	if len(data) < ethernetIIMinLen {
		return nil, 0, false
	}
	h := &EthernetIIHeader{HeaderLen: ethernetIIMinLen}
	copy(h.DstMAC[:], data[0:6])
	copy(h.SrcMAC[:], data[6:12])
	h.NextProtocol = binary.BigEndian.Uint16(data[12:14])
	return h, ethernetIIMinLen, true
}

func decodeIPv4(data []byte) (*IPv4Header, uint32, bool) {
	if len(data) < ipv4MinLen {
		return nil, 0, false
	}
	ihl := data[0] & 0x0f
	headerLen := uint32(ihl) * 4
	if ihl < 5 || uint32(len(data)) < headerLen {
		return nil, 0, false
	}
	h := &IPv4Header{
		Version:        data[0] >> 4,
		HeaderLen:      uint8(headerLen),
		TOS:            data[1],
		TotalLen:       binary.BigEndian.Uint16(data[2:4]),
		Identification: binary.BigEndian.Uint16(data[4:6]),
		TTL:            data[8],
		NextProtocol:   data[9],
		Checksum:       binary.BigEndian.Uint16(data[10:12]),
	}
	// Bit 15 reserved, bit 14 DF, bit 13 MF, bits 12..0 offset in 8-byte units.
	fragField := binary.BigEndian.Uint16(data[6:8])
	h.FlagReserved = fragField&0x8000 != 0
	h.FlagDont = fragField&0x4000 != 0
	h.FlagMore = fragField&0x2000 != 0
	h.FragOffset = fragField & 0x1fff
	copy(h.SrcAddr[:], data[12:16])
	copy(h.DstAddr[:], data[16:20])
	return h, headerLen, true
}

func decodeARP(data []byte) (*ARPHeader, uint32, bool) {
	if len(data) < arpMinLen {
		return nil, 0, false
	}
	h := &ARPHeader{
		HeaderLen:    arpMinLen,
		HardwareType: binary.BigEndian.Uint16(data[0:2]),
		ProtocolType: binary.BigEndian.Uint16(data[2:4]),
		HardwareSize: data[4],
		ProtocolSize: data[5],
		Opcode:       binary.BigEndian.Uint16(data[6:8]),
	}
	copy(h.SenderMAC[:], data[8:14])
	copy(h.SenderIP[:], data[14:18])
	copy(h.TargetMAC[:], data[18:24])
	copy(h.TargetIP[:], data[24:28])
	return h, arpMinLen, true
}

// decodeIPv6 decodes the base header and walks the extension chain to find
// the transport protocol. The returned header length covers the base header
// plus every traversed extension. nextProto is the next-header value where
// the walk stopped; for a fragmented packet that is the Fragment header
// number itself, which the fragment check intercepts before the transport
// decoder ever sees it.
func decodeIPv6(data []byte) (*IPv6Header, uint32, uint32, bool) {
	if len(data) < ipv6MinLen {
		return nil, 0, 0, false
	}
	verFlow := binary.BigEndian.Uint32(data[0:4])
	h := &IPv6Header{
		Version:      uint8(verFlow >> 28),
		HeaderLen:    ipv6MinLen,
		TrafficClass: uint8(verFlow >> 20),
		FlowLabel:    verFlow & 0xfffff,
		PayloadLen:   binary.BigEndian.Uint16(data[4:6]),
		NextHeader:   data[6],
		HopLimit:     data[7],
	}
	for i := 0; i < 8; i++ {
		h.SrcAddr[i] = binary.BigEndian.Uint16(data[8+i*2 : 10+i*2])
		h.DstAddr[i] = binary.BigEndian.Uint16(data[24+i*2 : 26+i*2])
	}
	chain, ok := walkExtensionChain(data, h.NextHeader, false)
	if !ok {
		return nil, 0, 0, false
	}
	if h.NextHeader == extHopByHop && len(data) >= ipv6MinLen+8 {
		optLen := data[ipv6MinLen+1]
		hbh := &HopByHopOptions{
			NextHeader: data[ipv6MinLen],
			Length:     optLen,
		}
		end := ipv6MinLen + (int(optLen)+1)*8
		if end <= len(data) {
			hbh.Options = data[ipv6MinLen+2 : end]
		}
		h.HopByHop = hbh
	}
	headerLen := uint32(ipv6MinLen) + chain.extLen
	h.HeaderLen = uint16(headerLen)
	return h, headerLen, uint32(chain.transport), true
}

func decodeTCP(data []byte) (*TCPHeader, uint32, bool) {
	if len(data) < tcpMinLen {
		return nil, 0, false
	}
	dataOffset := data[12] >> 4
	headerLen := uint32(dataOffset) * 4
	if dataOffset < 5 || uint32(len(data)) < headerLen {
		return nil, 0, false
	}
	frame := binary.BigEndian.Uint16(data[12:14])
	h := &TCPHeader{
		SrcPort:   binary.BigEndian.Uint16(data[0:2]),
		DstPort:   binary.BigEndian.Uint16(data[2:4]),
		Seq:       binary.BigEndian.Uint32(data[4:8]),
		Ack:       binary.BigEndian.Uint32(data[8:12]),
		HeaderLen: uint8(headerLen),
		FlagRsrvd: uint8(frame >> 9 & 0x7),
		FlagNonce: frame&0x100 != 0,
		FlagCwr:   frame&0x080 != 0,
		FlagEce:   frame&0x040 != 0,
		FlagUrg:   frame&0x020 != 0,
		FlagAck:   frame&0x010 != 0,
		FlagPsh:   frame&0x008 != 0,
		FlagRst:   frame&0x004 != 0,
		FlagSyn:   frame&0x002 != 0,
		FlagFin:   frame&0x001 != 0,
		Window:    binary.BigEndian.Uint16(data[14:16]),
		Checksum:  binary.BigEndian.Uint16(data[16:18]),
		UrgPtr:    binary.BigEndian.Uint16(data[18:20]),
	}
	return h, headerLen, true
}

func decodeUDP(data []byte) (*UDPHeader, uint32, bool) {
	if len(data) < udpMinLen {
		return nil, 0, false
	}
	h := &UDPHeader{
		HeaderLen: udpMinLen,
		SrcPort:   binary.BigEndian.Uint16(data[0:2]),
		DstPort:   binary.BigEndian.Uint16(data[2:4]),
		TotalLen:  binary.BigEndian.Uint16(data[4:6]),
		Checksum:  binary.BigEndian.Uint16(data[6:8]),
	}
	return h, udpMinLen, true
}

func decodeICMP(data []byte) (*ICMPHeader, uint32, bool) {
	if len(data) < icmpMinLen {
		return nil, 0, false
	}
	h := &ICMPHeader{
		HeaderLen: icmpMinLen,
		Type:      data[0],
		Code:      data[1],
		Checksum:  binary.BigEndian.Uint16(data[2:4]),
	}
	return h, icmpMinLen, true
}

func decodeICMPv6(data []byte) (*ICMPv6Header, uint32, bool) {
	if len(data) < icmpv6MinLen {
		return nil, 0, false
	}
	h := &ICMPv6Header{
		HeaderLen: icmpv6MinLen,
		Type:      data[0],
		Code:      data[1],
		Checksum:  binary.BigEndian.Uint16(data[2:4]),
	}
	return h, icmpv6MinLen, true
}
