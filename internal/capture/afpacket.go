package capture

import (
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"

	"firestige.xyz/dissect/internal/utils"
)

// AfpacketSource captures through an AF_PACKET TPacketV3 ring, avoiding
// the libpcap copy path on Linux.
type AfpacketSource struct {
	device    string
	frameSize int
	blockSize int
	numBlocks int
	timeoutMs int
	bpfFilter string

	handle *afpacket.TPacket
}

// AfpacketOptions configures an AfpacketSource.
type AfpacketOptions struct {
	Device       string
	SnapLen      int
	BufferSizeMB int
	TimeoutMs    int
	BPFFilter    string
}

// NewAfpacketSource creates an AF_PACKET-backed source; Open activates it.
func NewAfpacketSource(opts AfpacketOptions) (*AfpacketSource, error) {
	if opts.SnapLen <= 0 {
		opts.SnapLen = 65535
	}
	if opts.BufferSizeMB <= 0 {
		opts.BufferSizeMB = 8
	}
	if opts.TimeoutMs <= 0 {
		opts.TimeoutMs = 100
	}
	frameSize, blockSize, numBlocks, err := ringSizes(opts.BufferSizeMB, opts.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}
	return &AfpacketSource{
		device:    opts.Device,
		frameSize: frameSize,
		blockSize: blockSize,
		numBlocks: numBlocks,
		timeoutMs: opts.TimeoutMs,
		bpfFilter: opts.BPFFilter,
	}, nil
}

func (s *AfpacketSource) Open() error {
	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(s.device),
		afpacket.OptFrameSize(s.frameSize),
		afpacket.OptBlockSize(s.blockSize),
		afpacket.OptNumBlocks(s.numBlocks),
		afpacket.OptPollTimeout(s.timeoutMs),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return fmt.Errorf("failed to open AF_PACKET ring on %s: %w", s.device, err)
	}
	if s.bpfFilter != "" {
		rawBpf, err := utils.CompileBpf(s.bpfFilter, s.frameSize)
		if err != nil {
			tp.Close()
			return err
		}
		if err := tp.SetBPF(rawBpf); err != nil {
			tp.Close()
			return fmt.Errorf("failed to set BPF filter: %w", err)
		}
	}
	s.handle = tp
	return nil
}

func (s *AfpacketSource) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if s.handle == nil {
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("afpacket source not opened")
	}
	return s.handle.ReadPacketData()
}

func (s *AfpacketSource) Close() {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
}

// ringSizes derives a TPacketV3 ring geometry from a buffer budget. Block
// size must be a multiple of both the page size and the frame size.
func ringSizes(bufferMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	if snapLen < pageSize {
		frameSize = pageSize / (pageSize / snapLen)
	} else {
		frameSize = (snapLen/pageSize + 1) * pageSize
	}
	blockSize = frameSize * 128
	numBlocks = (bufferMB * 1024 * 1024) / blockSize
	if numBlocks == 0 {
		return 0, 0, 0, fmt.Errorf("buffer size %dMB too small for block size %d", bufferMB, blockSize)
	}
	return frameSize, blockSize, numBlocks, nil
}
