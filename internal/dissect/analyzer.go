package dissect

import (
	"sync"
	"time"

	"firestige.xyz/dissect/internal/metrics"
)

// DataSource tells Parse what kind of bytes it was handed.
type DataSource int

const (
	// SourceNetwork is a link-layer frame as seen on the wire.
	SourceNetwork DataSource = iota
	// SourceSerial is raw application data from a serial line; the link,
	// network and transport layers are skipped.
	SourceSerial
)

// Parse status codes.
const (
	StatusEmptyInput      = -1 // caller passed a zero-length buffer
	StatusOK              = 0  // success, or deliberately stopped by a callback
	StatusEthernetFailed  = 1  // Ethernet decode failed
	StatusNetworkFailed   = 2  // network-layer decode failed
	StatusTransportFailed = 3  // transport-layer decode failed
	StatusInvalidConsume  = 4  // application parser returned a bad consume length
	StatusFragmentPending = 5  // fragment buffered, or application PDU incomplete
	StatusRecursionLimit  = 6  // nested-fragment depth exceeded
)

// LayerCallback observes one decoded layer. payload is the bytes following
// the header; it is only valid for the duration of the call. Returning
// false cancels downstream dispatch for this packet — a clean stop, not an
// error.
type LayerCallback func(now time.Time, totalLen uint32, header Header, payload []byte) bool

// Analyzer is the dissection engine. It is safe for concurrent use by
// multiple capture goroutines; every Parse call is synchronous.
type Analyzer struct {
	cfg NetworkConfig

	callbackMu  sync.Mutex
	ethernetCb  LayerCallback
	networkCb   LayerCallback
	transportCb LayerCallback

	parserListMu sync.Mutex
	parserList   []ProtocolParser

	portMapMu sync.Mutex
	portMap   map[uint16][]ProtocolParser

	cacheMu       sync.Mutex
	fragmentCache map[fragmentKey]*fragmentEntry
	lastCleanup   time.Time
}

// NewAnalyzer creates an engine with the given bounds; every config field
// is clamped into its sane range.
func NewAnalyzer(cfg NetworkConfig) *Analyzer {
	return &Analyzer{
		cfg:           clampNetworkConfig(cfg),
		portMap:       make(map[uint16][]ProtocolParser),
		fragmentCache: make(map[fragmentKey]*fragmentEntry),
	}
}

// Config returns the clamped configuration in effect.
func (a *Analyzer) Config() NetworkConfig { return a.cfg }

// SetLayerCallbacks installs the per-layer observers in one swap. Any of
// the three may be nil. Callbacks are invoked without the callback lock
// held, in strict Ethernet -> network -> transport order per packet.
func (a *Analyzer) SetLayerCallbacks(ethernet, network, transport LayerCallback) {
	a.callbackMu.Lock()
	a.ethernetCb = ethernet
	a.networkCb = network
	a.transportCb = transport
	a.callbackMu.Unlock()
}

// Parse dissects one packet. The input bytes are borrowed for the duration
// of the call; the engine copies what it must retain (fragment payloads).
// The return value is one of the Status* codes.
func (a *Analyzer) Parse(data []byte, source DataSource) int {
	return a.parseAtDepth(data, source, 0)
}

func (a *Analyzer) parseAtDepth(data []byte, source DataSource, depth int) int {
	now := time.Now()
	a.sweepFragmentCache(now)
	if len(data) == 0 {
		return StatusEmptyInput
	}
	// A reassembled datagram re-enters here; the bound defeats
	// nested-fragmentation stack exhaustion.
	if depth >= a.cfg.MaxRecursionDepth {
		metrics.RecursionLimitTotal.Inc()
		return StatusRecursionLimit
	}

	totalLen := uint32(len(data))
	remain := data
	var transportHeader Header
	parseApplication := false

	if source == SourceNetwork {
		a.callbackMu.Lock()
		ethernetCb, networkCb, transportCb := a.ethernetCb, a.networkCb, a.transportCb
		a.callbackMu.Unlock()

		// A reassembled datagram is a bare IP packet: re-enter at the
		// network layer, with the protocol taken from the version nibble.
		var networkProtocol uint32
		var ethernetHeader *EthernetIIHeader
		if depth == 0 {
			var headerLen uint32
			var ok bool
			ethernetHeader, headerLen, ok = decodeEthernetII(remain)
			if !ok {
				metrics.DecodeFailuresTotal.WithLabelValues("ethernet").Inc()
				return StatusEthernetFailed
			}
			metrics.PacketsTotal.WithLabelValues("ethernet").Inc()
			networkProtocol = uint32(ethernetHeader.NextProtocol)
			remain = remain[headerLen:]
			if ethernetCb != nil && !ethernetCb(now, totalLen, ethernetHeader, remain) {
				return StatusOK
			}
		} else {
			switch remain[0] >> 4 {
			case 4:
				networkProtocol = ProtoIPv4
			case 6:
				networkProtocol = ProtoIPv6
			default:
				metrics.DecodeFailuresTotal.WithLabelValues("network").Inc()
				return StatusNetworkFailed
			}
		}

		if len(remain) > 0 {
			networkHeader, headerLen, transportProtocol, ok := decodeNetworkLayer(networkProtocol, remain)
			if !ok {
				metrics.DecodeFailuresTotal.WithLabelValues("network").Inc()
				return StatusNetworkFailed
			}
			metrics.PacketsTotal.WithLabelValues("network").Inc()
			isFragment, reassembled := a.checkAndHandleFragment(networkHeader, remain, now)
			if isFragment {
				if reassembled != nil {
					return a.parseAtDepth(reassembled, source, depth+1)
				}
				return StatusFragmentPending
			}
			if ethernetHeader != nil {
				networkHeader.setParent(ethernetHeader)
			}
			remain = remain[headerLen:]
			if networkCb != nil && !networkCb(now, totalLen, networkHeader, remain) {
				return StatusOK
			}

			// ARP carries no transport layer; bytes after it are link padding.
			if len(remain) > 0 && networkProtocol != ProtoARP {
				var headerLen uint32
				transportHeader, headerLen, ok = decodeTransportLayer(transportProtocol, remain)
				if !ok {
					metrics.DecodeFailuresTotal.WithLabelValues("transport").Inc()
					return StatusTransportFailed
				}
				metrics.PacketsTotal.WithLabelValues("transport").Inc()
				transportHeader.setParent(networkHeader)
				remain = remain[headerLen:]
				if transportCb != nil && !transportCb(now, totalLen, transportHeader, remain) {
					return StatusOK
				}
				parseApplication = true
			}
		}
	} else {
		parseApplication = true
	}

	if parseApplication {
		return a.handleApplicationLayer(now, totalLen, transportHeader, remain, a.snapshotParsers())
	}
	return StatusOK
}

// decodeNetworkLayer dispatches on the Ethernet type field.
func decodeNetworkLayer(networkProtocol uint32, data []byte) (Header, uint32, uint32, bool) {
	switch networkProtocol {
	case ProtoIPv4:
		if h, headerLen, ok := decodeIPv4(data); ok {
			return h, headerLen, uint32(h.NextProtocol), true
		}
	case ProtoARP:
		if h, headerLen, ok := decodeARP(data); ok {
			return h, headerLen, 0, true // ARP carries no transport layer
		}
	case ProtoIPv6:
		if h, headerLen, nextProto, ok := decodeIPv6(data); ok {
			return h, headerLen, nextProto, true
		}
	}
	return nil, 0, 0, false
}

// decodeTransportLayer dispatches on the IP next-protocol value.
func decodeTransportLayer(transportProtocol uint32, data []byte) (Header, uint32, bool) {
	switch transportProtocol {
	case ProtoTCP:
		if h, headerLen, ok := decodeTCP(data); ok {
			return h, headerLen, true
		}
	case ProtoUDP:
		if h, headerLen, ok := decodeUDP(data); ok {
			return h, headerLen, true
		}
	case ProtoICMP:
		if h, headerLen, ok := decodeICMP(data); ok {
			return h, headerLen, true
		}
	case ProtoICMPv6:
		if h, headerLen, ok := decodeICMPv6(data); ok {
			return h, headerLen, true
		}
	}
	return nil, 0, false
}

// handleApplicationLayer walks the payload PDU by PDU. Candidate order per
// iteration: the parser that last succeeded in this call (pipelined
// streams skip the probe), then the port-mapped parser, then a linear
// probe over the registry skipping anything already tried.
func (a *Analyzer) handleApplicationLayer(now time.Time, totalLen uint32, transport Header, payload []byte, parsers []ProtocolParser) int {
	var srcPort, dstPort uint16
	switch h := transport.(type) {
	case *TCPHeader:
		srcPort, dstPort = h.SrcPort, h.DstPort
	case *UDPHeader:
		srcPort, dstPort = h.SrcPort, h.DstPort
	}
	portParser := a.lookupPortParser(dstPort, srcPort)

	offset := uint32(0)
	payloadLen := uint32(len(payload))
	var stickyParser ProtocolParser
	for offset < payloadLen {
		rest := payload[offset:]
		result := ParseFailure
		consumed := uint32(0)
		if stickyParser != nil {
			result, consumed = stickyParser.Parse(now, totalLen, transport, rest)
		}
		if result == ParseFailure && portParser != nil && portParser != stickyParser {
			result, consumed = portParser.Parse(now, totalLen, transport, rest)
			if result != ParseFailure {
				stickyParser = portParser
			}
		}
		if result == ParseFailure {
			for _, p := range parsers {
				if p == stickyParser || p == portParser {
					continue
				}
				result, consumed = p.Parse(now, totalLen, transport, rest)
				if result != ParseFailure {
					stickyParser = p
					break
				}
			}
		}
		switch result {
		case ParseSuccess:
			if consumed == 0 || consumed > payloadLen-offset {
				metrics.AppParseTotal.WithLabelValues("invalid_consume").Inc()
				if offset > 0 {
					return StatusOK
				}
				return StatusInvalidConsume
			}
			metrics.AppParseTotal.WithLabelValues("success").Inc()
			offset += consumed
		case ParseContinue:
			metrics.AppParseTotal.WithLabelValues("incomplete").Inc()
			return StatusFragmentPending
		case ParseFailure:
			metrics.AppParseTotal.WithLabelValues("unmatched").Inc()
			if offset > 0 {
				return StatusOK
			}
			return StatusInvalidConsume
		}
	}
	return StatusOK
}
