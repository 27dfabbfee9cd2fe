package dissect

import "time"

// ParseResult is an application parser's verdict on a chunk of payload.
type ParseResult int

const (
	// ParseSuccess: the parser consumed a whole PDU; the dispatcher loops
	// on the remaining payload.
	ParseSuccess ParseResult = iota
	// ParseContinue: the PDU is incomplete (transport segmentation); the
	// dispatcher stops and reports the payload as buffered.
	ParseContinue
	// ParseFailure: the parser refuses the bytes; the dispatcher tries the
	// next candidate.
	ParseFailure
)

// ProtocolParser recognizes and consumes application-layer PDUs. Parse
// must be safe to call concurrently from multiple dispatcher goroutines.
// transport is the transport-layer header, or nil for serial-sourced data.
// The returned consume length is the number of payload bytes fully
// interpreted; it is only meaningful with ParseSuccess.
type ProtocolParser interface {
	Protocol() uint32
	Parse(now time.Time, totalLen uint32, transport Header, payload []byte) (ParseResult, uint32)
}

// AddParser appends a parser to the fallback probe list. Returns false if
// a parser with the same protocol identifier is already registered.
func (a *Analyzer) AddParser(parser ProtocolParser) bool {
	if parser == nil {
		return false
	}
	a.parserListMu.Lock()
	defer a.parserListMu.Unlock()
	for _, p := range a.parserList {
		if p.Protocol() == parser.Protocol() {
			return false
		}
	}
	a.parserList = append(a.parserList, parser)
	return true
}

// AddPortParser registers a parser for the fast path on the given port and
// keeps it probe-able via the fallback list. Several parsers may share a
// port; the first registered wins the fast path. Returns false for a nil
// parser or port zero.
func (a *Analyzer) AddPortParser(port uint16, parser ProtocolParser) bool {
	a.AddParser(parser) // keep the linear probe able to reach it
	if parser == nil || port == 0 {
		return false
	}
	a.portMapMu.Lock()
	defer a.portMapMu.Unlock()
	a.portMap[port] = append(a.portMap[port], parser)
	return true
}

// RemoveParser purges the parser with the given protocol identifier from
// both the fallback list and the port map.
func (a *Analyzer) RemoveParser(protocol uint32) {
	a.parserListMu.Lock()
	for i, p := range a.parserList {
		if p.Protocol() == protocol {
			a.parserList = append(a.parserList[:i], a.parserList[i+1:]...)
			break
		}
	}
	a.parserListMu.Unlock()

	a.portMapMu.Lock()
	for port, parsers := range a.portMap {
		kept := parsers[:0]
		for _, p := range parsers {
			if p.Protocol() != protocol {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(a.portMap, port)
		} else {
			a.portMap[port] = kept
		}
	}
	a.portMapMu.Unlock()
}

// snapshotParsers copies the fallback list so the application loop runs
// without the registry lock held.
func (a *Analyzer) snapshotParsers() []ProtocolParser {
	a.parserListMu.Lock()
	defer a.parserListMu.Unlock()
	out := make([]ProtocolParser, len(a.parserList))
	copy(out, a.parserList)
	return out
}

// lookupPortParser returns the fast-path parser for the port pair,
// destination port first. The lock is held only for the lookup itself.
func (a *Analyzer) lookupPortParser(dstPort, srcPort uint16) ProtocolParser {
	a.portMapMu.Lock()
	defer a.portMapMu.Unlock()
	if parsers := a.portMap[dstPort]; len(parsers) > 0 {
		return parsers[0]
	}
	if parsers := a.portMap[srcPort]; len(parsers) > 0 {
		return parsers[0]
	}
	return nil
}
