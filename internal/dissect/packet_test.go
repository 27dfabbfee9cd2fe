package dissect

import "encoding/binary"

// Byte-level packet builders shared by the package tests.

func buildEthernet(ethType uint16, payload []byte) []byte {
	pkt := make([]byte, ethernetIIMinLen+len(payload))
	copy(pkt[0:6], []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	copy(pkt[6:12], []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55})
	binary.BigEndian.PutUint16(pkt[12:14], ethType)
	copy(pkt[ethernetIIMinLen:], payload)
	return pkt
}

// buildIPv4 constructs a raw IPv4 packet. fragOffset is in 8-byte units.
func buildIPv4(src, dst [4]byte, proto uint8, id uint16, fragOffset uint16, moreFragments bool, payload []byte) []byte {
	totalLen := ipv4MinLen + len(payload)
	pkt := make([]byte, totalLen)
	pkt[0] = 0x45
	binary.BigEndian.PutUint16(pkt[2:4], uint16(totalLen))
	binary.BigEndian.PutUint16(pkt[4:6], id)
	var fragField uint16
	if moreFragments {
		fragField |= 0x2000
	}
	fragField |= fragOffset & 0x1fff
	binary.BigEndian.PutUint16(pkt[6:8], fragField)
	pkt[8] = 64
	pkt[9] = proto
	copy(pkt[12:16], src[:])
	copy(pkt[16:20], dst[:])
	copy(pkt[ipv4MinLen:], payload)
	return pkt
}

func buildUDP(srcPort, dstPort uint16, payload []byte) []byte {
	pkt := make([]byte, udpMinLen+len(payload))
	binary.BigEndian.PutUint16(pkt[0:2], srcPort)
	binary.BigEndian.PutUint16(pkt[2:4], dstPort)
	binary.BigEndian.PutUint16(pkt[4:6], uint16(udpMinLen+len(payload)))
	copy(pkt[udpMinLen:], payload)
	return pkt
}

func buildTCP(srcPort, dstPort uint16, payload []byte) []byte {
	pkt := make([]byte, tcpMinLen+len(payload))
	binary.BigEndian.PutUint16(pkt[0:2], srcPort)
	binary.BigEndian.PutUint16(pkt[2:4], dstPort)
	binary.BigEndian.PutUint32(pkt[4:8], 1000)
	binary.BigEndian.PutUint32(pkt[8:12], 2000)
	pkt[12] = 5 << 4 // data offset: 20 bytes
	pkt[13] = 0x18   // PSH+ACK
	binary.BigEndian.PutUint16(pkt[14:16], 512)
	copy(pkt[tcpMinLen:], payload)
	return pkt
}

// buildIPv6 constructs a raw IPv6 packet: base header, any pre-built
// extension headers, then the payload. next is the base next-header value.
func buildIPv6(src, dst [16]byte, next uint8, extensions []byte, payload []byte) []byte {
	pkt := make([]byte, ipv6MinLen+len(extensions)+len(payload))
	pkt[0] = 6 << 4
	binary.BigEndian.PutUint16(pkt[4:6], uint16(len(extensions)+len(payload)))
	pkt[6] = next
	pkt[7] = 64
	copy(pkt[8:24], src[:])
	copy(pkt[24:40], dst[:])
	copy(pkt[ipv6MinLen:], extensions)
	copy(pkt[ipv6MinLen+len(extensions):], payload)
	return pkt
}

// buildHopByHop builds a minimal 8-byte hop-by-hop extension with PadN
// options.
func buildHopByHop(next uint8) []byte {
	ext := make([]byte, 8)
	ext[0] = next
	ext[1] = 0
	ext[2] = 1 // PadN
	ext[3] = 4 // 4 bytes of padding follow
	return ext
}

// buildFragmentExt builds an IPv6 Fragment extension header. offset is in
// 8-byte units.
func buildFragmentExt(next uint8, offset uint16, moreFragments bool, id uint32) []byte {
	ext := make([]byte, 8)
	ext[0] = next
	offFlags := offset << 3
	if moreFragments {
		offFlags |= 0x0001
	}
	binary.BigEndian.PutUint16(ext[2:4], offFlags)
	binary.BigEndian.PutUint32(ext[4:8], id)
	return ext
}

func patternBytes(n int, seed byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = seed + byte(i%251)
	}
	return buf
}

var (
	testSrcV4 = [4]byte{10, 0, 0, 1}
	testDstV4 = [4]byte{10, 0, 0, 2}
	testSrcV6 = [16]byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	testDstV6 = [16]byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2}
)
