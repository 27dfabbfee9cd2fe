package dissect

import (
	"encoding/binary"
	"sort"
	"time"

	"firestige.xyz/dissect/internal/metrics"
)

// fragmentKey identifies one fragment group: (src, dst, identification).
// IPv4 addresses occupy the first 4 bytes of the arrays; the version field
// keeps v4 and v6 keyspaces disjoint. The struct is comparable, so the Go
// runtime hashes it by value — no alignment-sensitive byte tricks.
type fragmentKey struct {
	version uint8
	src     [16]byte
	dst     [16]byte
	id      uint32
}

func ipv4FragmentKey(h *IPv4Header) fragmentKey {
	key := fragmentKey{version: 4, id: uint32(h.Identification)}
	copy(key.src[:4], h.SrcAddr[:])
	copy(key.dst[:4], h.DstAddr[:])
	return key
}

func ipv6FragmentKey(h *IPv6Header, id uint32) fragmentKey {
	key := fragmentKey{version: 6, id: id}
	for i := 0; i < 8; i++ {
		binary.BigEndian.PutUint16(key.src[i*2:], h.SrcAddr[i])
		binary.BigEndian.PutUint16(key.dst[i*2:], h.DstAddr[i])
	}
	return key
}

// fragmentEntry buffers the fragments of one group. The cache owns the
// entry exclusively; it is either kept whole or removed whole.
type fragmentEntry struct {
	originalProtocol uint8             // IPv6: protocol saved from the Fragment header
	fragments        map[uint16][]byte // frag offset (8-byte units) -> payload copy
	totalPayloadSize uint32
	fragmentCount    uint32
	gotLastFragment  bool
	lastOffset       uint16
	totalLen         uint32
	lastAccess       time.Time
}

// checkAndHandleFragment decides whether the packet is an IP fragment and,
// if so, buffers it or returns the fully reassembled datagram. data is the
// raw IP packet (network header included). A nil result with
// isFragment=true means the fragment was buffered, or dropped as hostile;
// either way the caller stops dissecting this packet.
func (a *Analyzer) checkAndHandleFragment(netHeader Header, data []byte, now time.Time) (isFragment bool, reassembled []byte) {
	if netHeader == nil || len(data) == 0 {
		return false, nil
	}
	var (
		isIPv4           bool
		key              fragmentKey
		headerLen        uint32
		moreFragments    bool
		fragOffset       uint16
		originalProtocol uint8
	)
	switch h := netHeader.(type) {
	case *IPv4Header:
		if !h.FlagMore && h.FragOffset == 0 {
			return false, nil
		}
		isIPv4 = true
		key = ipv4FragmentKey(h)
		headerLen = uint32(h.HeaderLen)
		moreFragments = h.FlagMore
		fragOffset = h.FragOffset
	case *IPv6Header:
		frag, fragChainLen, ok := findFragmentExtension(data, h.NextHeader)
		if !ok {
			return false, nil
		}
		key = ipv6FragmentKey(h, frag.identification)
		headerLen = fragChainLen
		moreFragments = frag.more
		fragOffset = frag.offset
		originalProtocol = frag.nextHeader
	default:
		return false, nil
	}
	isFragment = true

	// Hard validation: any failure drops the packet with no state change.
	if headerLen > uint32(len(data)) {
		return isFragment, nil
	}
	if fragOffset > 65535/8 {
		return isFragment, nil
	}
	payload := data[headerLen:]
	payloadLen := uint32(len(payload))
	if payloadLen > a.cfg.MaxFragSize {
		return isFragment, nil
	}
	if uint32(fragOffset) > a.cfg.MaxReassembleSize/8 {
		return isFragment, nil
	}
	if (moreFragments && payloadLen == 0) || payloadLen > 65535 {
		return isFragment, nil
	}
	estimatedTotal := uint64(fragOffset)*8 + uint64(payloadLen)
	if estimatedTotal > uint64(a.cfg.MaxReassembleSize) {
		return isFragment, nil
	}

	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()

	entry, exists := a.fragmentCache[key]
	if !exists {
		entry = &fragmentEntry{
			originalProtocol: originalProtocol,
			fragments:        make(map[uint16][]byte),
		}
		a.fragmentCache[key] = entry
		metrics.FragmentGroupsActive.Inc()
	}
	entry.lastAccess = now

	if entry.fragmentCount >= a.cfg.MaxFragmentCount {
		a.dropFragmentGroup(key, "count")
		return isFragment, nil
	}
	if entry.totalPayloadSize+payloadLen > a.cfg.MaxReassembleSize {
		a.dropFragmentGroup(key, "size")
		return isFragment, nil
	}
	// RFC 5722: overlapping fragments are attack traffic. Any intersection
	// kills the whole group, for IPv4 and IPv6 alike.
	newStart := uint32(fragOffset) * 8
	newEnd := newStart + payloadLen
	for off, frag := range entry.fragments {
		existStart := uint32(off) * 8
		existEnd := existStart + uint32(len(frag))
		if newStart < existEnd && newEnd > existStart {
			a.dropFragmentGroup(key, "overlap")
			return isFragment, nil
		}
	}

	// The capture buffer is reused by the source; keep our own copy.
	buf := make([]byte, payloadLen)
	copy(buf, payload)
	entry.fragments[fragOffset] = buf
	entry.totalPayloadSize += payloadLen
	entry.fragmentCount++

	if !moreFragments {
		entry.gotLastFragment = true
		entry.lastOffset = fragOffset
		entry.totalLen = uint32(estimatedTotal)
	}
	// Wait until the last fragment has arrived and every byte before it is
	// accounted for. With overlaps forbidden, the payload sum equals the
	// expected total exactly when there is no hole.
	if !entry.gotLastFragment || entry.totalPayloadSize != entry.totalLen {
		metrics.FragmentsBufferedTotal.Inc()
		return isFragment, nil
	}

	delete(a.fragmentCache, key)
	metrics.FragmentGroupsActive.Dec()
	if entry.totalLen == 0 || entry.totalLen > a.cfg.MaxReassembleSize {
		metrics.FragmentDropsTotal.WithLabelValues("invalid").Inc()
		return isFragment, nil
	}
	out := a.rebuildDatagram(entry, data[:headerLen], isIPv4)
	if out == nil {
		metrics.FragmentDropsTotal.WithLabelValues("gap").Inc()
		return isFragment, nil
	}
	metrics.FragmentsReassembledTotal.Inc()
	return isFragment, out
}

// dropFragmentGroup removes a group under the cache lock.
func (a *Analyzer) dropFragmentGroup(key fragmentKey, reason string) {
	if _, ok := a.fragmentCache[key]; ok {
		delete(a.fragmentCache, key)
		metrics.FragmentGroupsActive.Dec()
	}
	metrics.FragmentDropsTotal.WithLabelValues(reason).Inc()
}

// rebuildDatagram concatenates the buffered fragments behind a copy of the
// original IP header and patches the header fields that described the
// fragmentation. Returns nil when the fragments are not contiguous.
func (a *Analyzer) rebuildDatagram(entry *fragmentEntry, ipHeader []byte, isIPv4 bool) []byte {
	offsets := make([]uint16, 0, len(entry.fragments))
	for off := range entry.fragments {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	out := make([]byte, 0, uint32(len(ipHeader))+entry.totalLen)
	out = append(out, ipHeader...)
	cursor := uint32(0)
	for _, off := range offsets {
		if uint32(off)*8 != cursor {
			return nil
		}
		frag := entry.fragments[off]
		out = append(out, frag...)
		cursor += uint32(len(frag))
	}
	if cursor != entry.totalLen {
		return nil
	}

	if isIPv4 {
		binary.BigEndian.PutUint16(out[2:4], uint16(len(out)))
		out[6] &= 0xc0 // clear MF and the offset high bits, keep reserved+DF
		out[7] = 0
	} else {
		if entry.originalProtocol == 0 {
			return nil
		}
		binary.BigEndian.PutUint16(out[4:6], uint16(len(out)-ipv6MinLen))
		out[6] = entry.originalProtocol
	}
	return out
}
