package dissect

import (
	"encoding/binary"
	"testing"
)

func TestDecodeEthernetII(t *testing.T) {
	pkt := buildEthernet(0x0800, []byte{0x45, 0x00})
	h, headerLen, ok := decodeEthernetII(pkt)
	if !ok {
		t.Fatal("decode failed")
	}
	if headerLen != 14 {
		t.Fatalf("expected header length 14, got %d", headerLen)
	}
	if h.DstMACString() != "ff:ff:ff:ff:ff:ff" {
		t.Errorf("unexpected dst MAC %s", h.DstMACString())
	}
	if h.SrcMACString() != "00:11:22:33:44:55" {
		t.Errorf("unexpected src MAC %s", h.SrcMACString())
	}
	if h.NextProtocol != 0x0800 {
		t.Errorf("expected next protocol 0x0800, got 0x%04x", h.NextProtocol)
	}
}

func TestDecodeEthernetIITooShort(t *testing.T) {
	for n := 0; n < ethernetIIMinLen; n++ {
		if _, _, ok := decodeEthernetII(make([]byte, n)); ok {
			t.Fatalf("decode succeeded on %d bytes", n)
		}
	}
}

func TestDecodeIPv4(t *testing.T) {
	payload := []byte("data")
	pkt := buildIPv4(testSrcV4, testDstV4, 17, 0x1234, 0, false, payload)
	h, headerLen, ok := decodeIPv4(pkt)
	if !ok {
		t.Fatal("decode failed")
	}
	if headerLen != 20 {
		t.Fatalf("expected header length 20, got %d", headerLen)
	}
	if h.Version != 4 {
		t.Errorf("expected version 4, got %d", h.Version)
	}
	if h.SrcAddrString() != "10.0.0.1" || h.DstAddrString() != "10.0.0.2" {
		t.Errorf("unexpected addresses %s -> %s", h.SrcAddrString(), h.DstAddrString())
	}
	if h.NextProtocol != 17 {
		t.Errorf("expected protocol 17, got %d", h.NextProtocol)
	}
	if h.Identification != 0x1234 {
		t.Errorf("expected identification 0x1234, got 0x%04x", h.Identification)
	}
	if h.TotalLen != uint16(20+len(payload)) {
		t.Errorf("expected total length %d, got %d", 20+len(payload), h.TotalLen)
	}
	if h.FlagMore || h.FragOffset != 0 {
		t.Error("expected non-fragment flags")
	}
}

func TestDecodeIPv4FragmentFlags(t *testing.T) {
	pkt := buildIPv4(testSrcV4, testDstV4, 17, 1, 125, true, make([]byte, 8))
	h, _, ok := decodeIPv4(pkt)
	if !ok {
		t.Fatal("decode failed")
	}
	if !h.FlagMore {
		t.Error("expected MF set")
	}
	if h.FragOffset != 125 {
		t.Errorf("expected offset 125, got %d", h.FragOffset)
	}
}

func TestDecodeIPv4BadIHL(t *testing.T) {
	pkt := buildIPv4(testSrcV4, testDstV4, 17, 1, 0, false, nil)
	pkt[0] = 0x44 // IHL 4 < 5
	if _, _, ok := decodeIPv4(pkt); ok {
		t.Fatal("decode succeeded with IHL < 5")
	}
	if _, _, ok := decodeIPv4(pkt[:19]); ok {
		t.Fatal("decode succeeded on 19 bytes")
	}
}

func TestDecodeARP(t *testing.T) {
	pkt := make([]byte, arpMinLen)
	binary.BigEndian.PutUint16(pkt[0:2], 1)      // Ethernet
	binary.BigEndian.PutUint16(pkt[2:4], 0x0800) // IPv4
	pkt[4] = 6
	pkt[5] = 4
	binary.BigEndian.PutUint16(pkt[6:8], 2) // reply
	copy(pkt[8:14], []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff})
	copy(pkt[14:18], []byte{192, 168, 1, 1})
	copy(pkt[18:24], []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66})
	copy(pkt[24:28], []byte{192, 168, 1, 2})

	h, headerLen, ok := decodeARP(pkt)
	if !ok {
		t.Fatal("decode failed")
	}
	if headerLen != 28 {
		t.Fatalf("expected header length 28, got %d", headerLen)
	}
	if h.Opcode != 2 {
		t.Errorf("expected opcode 2, got %d", h.Opcode)
	}
	if h.SenderMACString() != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("unexpected sender MAC %s", h.SenderMACString())
	}
	if h.SenderIPString() != "192.168.1.1" || h.TargetIPString() != "192.168.1.2" {
		t.Errorf("unexpected addresses %s -> %s", h.SenderIPString(), h.TargetIPString())
	}
	if _, _, ok := decodeARP(pkt[:27]); ok {
		t.Fatal("decode succeeded on 27 bytes")
	}
}

func TestDecodeIPv6(t *testing.T) {
	payload := buildTCP(80, 12345, nil)
	pkt := buildIPv6(testSrcV6, testDstV6, 6, nil, payload)
	pkt[0] = 0x60 | 0x0a                              // traffic class high nibble
	pkt[1] = 0xbd                                     // traffic class low nibble + flow label high
	binary.BigEndian.PutUint16(pkt[2:4], 0xeef0)      // flow label rest
	h, headerLen, nextProto, ok := decodeIPv6(pkt)
	if !ok {
		t.Fatal("decode failed")
	}
	if headerLen != 40 {
		t.Fatalf("expected header length 40, got %d", headerLen)
	}
	if h.Version != 6 {
		t.Errorf("expected version 6, got %d", h.Version)
	}
	if h.TrafficClass != 0xab {
		t.Errorf("expected traffic class 0xab, got 0x%02x", h.TrafficClass)
	}
	if h.FlowLabel != 0xdeef0 {
		t.Errorf("expected flow label 0xdeef0, got 0x%05x", h.FlowLabel)
	}
	if nextProto != ProtoTCP {
		t.Errorf("expected next protocol TCP, got %d", nextProto)
	}
	if h.SrcAddrString() != "2001:0db8:0000:0000:0000:0000:0000:0001" {
		t.Errorf("unexpected src %s", h.SrcAddrString())
	}
}

func TestDecodeIPv6WithHopByHop(t *testing.T) {
	ext := buildHopByHop(6)
	payload := buildTCP(80, 12345, nil)
	pkt := buildIPv6(testSrcV6, testDstV6, 0, ext, payload)
	h, headerLen, nextProto, ok := decodeIPv6(pkt)
	if !ok {
		t.Fatal("decode failed")
	}
	if headerLen != 48 {
		t.Fatalf("expected header length 48, got %d", headerLen)
	}
	if nextProto != ProtoTCP {
		t.Errorf("expected next protocol TCP, got %d", nextProto)
	}
	if h.HopByHop == nil {
		t.Fatal("expected hop-by-hop options")
	}
	if h.HopByHop.NextHeader != 6 {
		t.Errorf("expected hop-by-hop next header 6, got %d", h.HopByHop.NextHeader)
	}
}

func TestDecodeTCP(t *testing.T) {
	pkt := buildTCP(5000, 80, []byte("GET"))
	h, headerLen, ok := decodeTCP(pkt)
	if !ok {
		t.Fatal("decode failed")
	}
	if headerLen != 20 {
		t.Fatalf("expected header length 20, got %d", headerLen)
	}
	if h.SrcPort != 5000 || h.DstPort != 80 {
		t.Errorf("unexpected ports %d -> %d", h.SrcPort, h.DstPort)
	}
	if h.Seq != 1000 || h.Ack != 2000 {
		t.Errorf("unexpected seq/ack %d/%d", h.Seq, h.Ack)
	}
	if !h.FlagPsh || !h.FlagAck || h.FlagSyn {
		t.Error("unexpected flags")
	}
	if h.Window != 512 {
		t.Errorf("expected window 512, got %d", h.Window)
	}
}

func TestDecodeTCPBadDataOffset(t *testing.T) {
	pkt := buildTCP(1, 2, nil)
	pkt[12] = 4 << 4 // data offset 16 bytes < 20
	if _, _, ok := decodeTCP(pkt); ok {
		t.Fatal("decode succeeded with data offset < 5")
	}
	pkt[12] = 15 << 4 // 60 bytes > input
	if _, _, ok := decodeTCP(pkt); ok {
		t.Fatal("decode succeeded with truncated options")
	}
}

func TestDecodeUDP(t *testing.T) {
	pkt := buildUDP(5000, 5001, nil)
	h, headerLen, ok := decodeUDP(pkt)
	if !ok {
		t.Fatal("decode failed")
	}
	if headerLen != 8 {
		t.Fatalf("expected header length 8, got %d", headerLen)
	}
	if h.SrcPort != 5000 || h.DstPort != 5001 {
		t.Errorf("unexpected ports %d -> %d", h.SrcPort, h.DstPort)
	}
	if h.TotalLen != 8 {
		t.Errorf("expected total length 8, got %d", h.TotalLen)
	}
	if _, _, ok := decodeUDP(pkt[:7]); ok {
		t.Fatal("decode succeeded on 7 bytes")
	}
}

func TestDecodeICMP(t *testing.T) {
	pkt := []byte{8, 0, 0x12, 0x34, 0, 1, 0, 1}
	h, headerLen, ok := decodeICMP(pkt)
	if !ok {
		t.Fatal("decode failed")
	}
	if headerLen != 8 {
		t.Fatalf("expected header length 8, got %d", headerLen)
	}
	if h.Type != 8 || h.Code != 0 {
		t.Errorf("unexpected type/code %d/%d", h.Type, h.Code)
	}
	if h.Checksum != 0x1234 {
		t.Errorf("expected checksum 0x1234, got 0x%04x", h.Checksum)
	}

	h6, _, ok := decodeICMPv6(pkt)
	if !ok {
		t.Fatal("icmpv6 decode failed")
	}
	if h6.Type != 8 {
		t.Errorf("unexpected type %d", h6.Type)
	}
	if _, _, ok := decodeICMP(pkt[:7]); ok {
		t.Fatal("decode succeeded on 7 bytes")
	}
}

// Encoding a header with the builders and decoding it back must preserve
// every field the builder sets.
func TestIPv4RoundTrip(t *testing.T) {
	pkt := buildIPv4(testSrcV4, testDstV4, 6, 0xbeef, 100, true, make([]byte, 16))
	h, _, ok := decodeIPv4(pkt)
	if !ok {
		t.Fatal("decode failed")
	}
	if h.SrcAddr != testSrcV4 || h.DstAddr != testDstV4 {
		t.Error("address mismatch")
	}
	if h.Identification != 0xbeef || h.NextProtocol != 6 {
		t.Error("field mismatch")
	}
	if h.FragOffset != 100 || !h.FlagMore {
		t.Error("fragment field mismatch")
	}
}
