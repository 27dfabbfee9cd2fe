// Package ftp implements an FTP control-channel parser (RFC 959) with
// PORT/PASV data-connection tracking.
package ftp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"firestige.xyz/dissect/internal/dissect"
)

// ProtocolID identifies this parser in the engine registry.
const ProtocolID uint32 = 1

// ControlPort is the well-known FTP control port.
const ControlPort uint16 = 21

// DataMode distinguishes active (PORT) from passive (PASV) transfers.
type DataMode int

const (
	ModeActive DataMode = iota
	ModePassive
)

// CtrlInfo describes the control connection that negotiated a transfer.
type CtrlInfo struct {
	ClientIP   string
	ClientPort uint16
	ServerIP   string
	ServerPort uint16
	Mode       DataMode
}

// CtrlCallback observes one control-channel line: a request verb with its
// argument, or a response code with its text.
type CtrlCallback func(now time.Time, totalLen uint32, transport dissect.Header, flag, arg string)

// DataCallback observes data-channel bytes of a negotiated transfer.
type DataCallback func(now time.Time, totalLen uint32, transport dissect.Header, ctrl CtrlInfo, data []byte)

type dataConn struct {
	ctrl     CtrlInfo
	ip       string
	port     uint16
	lastSeen time.Time
}

// Parser dissects FTP control traffic and the data connections it
// announces. Safe for concurrent use.
type Parser struct {
	dataTimeout time.Duration

	mu        sync.Mutex
	dataConns map[string]*dataConn // "ip:port" of the announced endpoint

	cbMu       sync.Mutex
	requestCb  CtrlCallback
	responseCb CtrlCallback
	dataCb     DataCallback
}

// NewParser creates an FTP parser. dataTimeout bounds how long an
// announced but idle data connection is remembered.
func NewParser(dataTimeout time.Duration) *Parser {
	if dataTimeout <= 0 {
		dataTimeout = 15 * time.Second
	}
	return &Parser{
		dataTimeout: dataTimeout,
		dataConns:   make(map[string]*dataConn),
	}
}

func (p *Parser) Protocol() uint32 { return ProtocolID }

// SetRequestCallback installs the observer for client commands.
func (p *Parser) SetRequestCallback(cb CtrlCallback) {
	p.cbMu.Lock()
	p.requestCb = cb
	p.cbMu.Unlock()
}

// SetResponseCallback installs the observer for server replies.
func (p *Parser) SetResponseCallback(cb CtrlCallback) {
	p.cbMu.Lock()
	p.responseCb = cb
	p.cbMu.Unlock()
}

// SetDataCallback installs the observer for data-channel payloads.
func (p *Parser) SetDataCallback(cb DataCallback) {
	p.cbMu.Lock()
	p.dataCb = cb
	p.cbMu.Unlock()
}

// Parse implements dissect.ProtocolParser.
func (p *Parser) Parse(now time.Time, totalLen uint32, transport dissect.Header, payload []byte) (dissect.ParseResult, uint32) {
	tcpHeader, ok := transport.(*dissect.TCPHeader)
	if !ok {
		return dissect.ParseFailure, 0
	}
	p.recycleDataConns(now)
	if tcpHeader.SrcPort == ControlPort || tcpHeader.DstPort == ControlPort {
		return p.parseControl(now, totalLen, tcpHeader, payload)
	}
	if conn := p.matchDataConn(tcpHeader, now); conn != nil {
		p.cbMu.Lock()
		cb := p.dataCb
		p.cbMu.Unlock()
		if cb != nil {
			cb(now, totalLen, tcpHeader, conn.ctrl, payload)
		}
		return dissect.ParseSuccess, uint32(len(payload))
	}
	return dissect.ParseFailure, 0
}

// parseControl consumes one CRLF-terminated control line.
func (p *Parser) parseControl(now time.Time, totalLen uint32, tcpHeader *dissect.TCPHeader, payload []byte) (dissect.ParseResult, uint32) {
	if len(payload) == 0 {
		return dissect.ParseFailure, 0
	}
	idx := bytes.Index(payload, []byte("\r\n"))
	if idx < 0 {
		// A control line split by TCP segmentation; wait for the rest.
		return dissect.ParseContinue, 0
	}
	line := string(payload[:idx])
	consumed := uint32(idx + 2)

	fromServer := tcpHeader.SrcPort == ControlPort
	if fromServer {
		code, text, ok := splitResponse(line)
		if !ok {
			return dissect.ParseFailure, 0
		}
		p.handleResponse(now, tcpHeader, code, text)
		p.cbMu.Lock()
		cb := p.responseCb
		p.cbMu.Unlock()
		if cb != nil {
			cb(now, totalLen, tcpHeader, code, text)
		}
		return dissect.ParseSuccess, consumed
	}

	verb, arg, ok := splitRequest(line)
	if !ok {
		return dissect.ParseFailure, 0
	}
	p.handleRequest(now, tcpHeader, verb, arg)
	p.cbMu.Lock()
	cb := p.requestCb
	p.cbMu.Unlock()
	if cb != nil {
		cb(now, totalLen, tcpHeader, verb, arg)
	}
	return dissect.ParseSuccess, consumed
}

// handleRequest tracks PORT announcements (active mode: the client names
// its own data endpoint).
func (p *Parser) handleRequest(now time.Time, tcpHeader *dissect.TCPHeader, verb, arg string) {
	if verb != "PORT" {
		return
	}
	ip, port, ok := parseHostPort(arg)
	if !ok {
		return
	}
	p.trackDataConn(now, tcpHeader, ModeActive, ip, port)
}

// handleResponse tracks 227 replies (passive mode: the server names its
// own data endpoint inside the text).
func (p *Parser) handleResponse(now time.Time, tcpHeader *dissect.TCPHeader, code, text string) {
	if code != "227" {
		return
	}
	begin := strings.IndexByte(text, '(')
	end := strings.IndexByte(text, ')')
	if begin < 0 || end <= begin {
		return
	}
	ip, port, ok := parseHostPort(text[begin+1 : end])
	if !ok {
		return
	}
	p.trackDataConn(now, tcpHeader, ModePassive, ip, port)
}

func (p *Parser) trackDataConn(now time.Time, tcpHeader *dissect.TCPHeader, mode DataMode, ip string, port uint16) {
	ctrl := CtrlInfo{Mode: mode}
	if ipv4, ok := tcpHeader.Parent().(*dissect.IPv4Header); ok {
		if tcpHeader.SrcPort == ControlPort {
			ctrl.ServerIP, ctrl.ServerPort = ipv4.SrcAddrString(), tcpHeader.SrcPort
			ctrl.ClientIP, ctrl.ClientPort = ipv4.DstAddrString(), tcpHeader.DstPort
		} else {
			ctrl.ClientIP, ctrl.ClientPort = ipv4.SrcAddrString(), tcpHeader.SrcPort
			ctrl.ServerIP, ctrl.ServerPort = ipv4.DstAddrString(), tcpHeader.DstPort
		}
	}
	p.mu.Lock()
	p.dataConns[fmt.Sprintf("%s:%d", ip, port)] = &dataConn{
		ctrl:     ctrl,
		ip:       ip,
		port:     port,
		lastSeen: now,
	}
	p.mu.Unlock()
}

// matchDataConn finds a tracked data connection by either endpoint of the
// packet.
func (p *Parser) matchDataConn(tcpHeader *dissect.TCPHeader, now time.Time) *dataConn {
	ipv4, ok := tcpHeader.Parent().(*dissect.IPv4Header)
	if !ok {
		return nil
	}
	srcKey := fmt.Sprintf("%s:%d", ipv4.SrcAddrString(), tcpHeader.SrcPort)
	dstKey := fmt.Sprintf("%s:%d", ipv4.DstAddrString(), tcpHeader.DstPort)
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.dataConns[srcKey]; ok {
		conn.lastSeen = now
		return conn
	}
	if conn, ok := p.dataConns[dstKey]; ok {
		conn.lastSeen = now
		return conn
	}
	return nil
}

func (p *Parser) recycleDataConns(now time.Time) {
	p.mu.Lock()
	for key, conn := range p.dataConns {
		if now.Sub(conn.lastSeen) > p.dataTimeout {
			delete(p.dataConns, key)
		}
	}
	p.mu.Unlock()
}

// splitRequest splits "VERB arg" and validates the verb shape: 3 or 4
// ASCII letters.
func splitRequest(line string) (verb, arg string, ok bool) {
	verb = line
	if idx := strings.IndexByte(line, ' '); idx >= 0 {
		verb, arg = line[:idx], line[idx+1:]
	}
	if len(verb) < 3 || len(verb) > 4 {
		return "", "", false
	}
	for _, c := range verb {
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return "", "", false
		}
	}
	return strings.ToUpper(verb), arg, true
}

// splitResponse splits "226 text" and validates the three-digit code.
func splitResponse(line string) (code, text string, ok bool) {
	if len(line) < 3 {
		return "", "", false
	}
	code = line[:3]
	for _, c := range code {
		if c < '0' || c > '9' {
			return "", "", false
		}
	}
	rest := line[3:]
	if len(rest) > 0 {
		if rest[0] != ' ' && rest[0] != '-' {
			return "", "", false
		}
		rest = rest[1:]
	}
	return code, rest, true
}

// parseHostPort decodes the "h1,h2,h3,h4,p1,p2" form used by PORT and
// 227 replies: e.g. "192,168,31,82,195,80" is 192.168.31.82:50000.
func parseHostPort(s string) (string, uint16, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 6 {
		return "", 0, false
	}
	nums := make([]int, 6)
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 255 {
			return "", 0, false
		}
		nums[i] = n
	}
	ip := fmt.Sprintf("%d.%d.%d.%d", nums[0], nums[1], nums[2], nums[3])
	return ip, uint16(nums[4]*256 + nums[5]), true
}
