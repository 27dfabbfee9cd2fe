package capture

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/gopacket"

	"firestige.xyz/dissect/internal/dissect"
)

func TestRingSizes(t *testing.T) {
	pageSize := os.Getpagesize()
	frameSize, blockSize, numBlocks, err := ringSizes(8, 65535, pageSize)
	if err != nil {
		t.Fatal(err)
	}
	if frameSize%pageSize != 0 && pageSize%frameSize != 0 {
		t.Errorf("frame size %d not page aligned", frameSize)
	}
	if blockSize%frameSize != 0 {
		t.Errorf("block size %d not a multiple of frame size %d", blockSize, frameSize)
	}
	if numBlocks == 0 {
		t.Error("no blocks")
	}

	if _, _, _, err := ringSizes(0, 65535, pageSize); err == nil {
		t.Error("zero buffer accepted")
	}
}

// scriptedSource replays canned frames then reports EOF.
type scriptedSource struct {
	frames [][]byte
	pos    int
}

func (s *scriptedSource) Open() error { return nil }
func (s *scriptedSource) Close()      {}
func (s *scriptedSource) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if s.pos >= len(s.frames) {
		return nil, gopacket.CaptureInfo{}, io.EOF
	}
	frame := s.frames[s.pos]
	s.pos++
	return frame, gopacket.CaptureInfo{CaptureLength: len(frame)}, nil
}

func TestRunDrainsSource(t *testing.T) {
	frame := []byte{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x08, 0x00,
		0x45, 0x00, 0x00, 0x1c, 0x00, 0x01, 0x00, 0x00, 0x40, 0x11, 0x00, 0x00,
		0x0a, 0x00, 0x00, 0x01, 0x0a, 0x00, 0x00, 0x02,
		0x13, 0x88, 0x13, 0x89, 0x00, 0x08, 0x00, 0x00,
	}
	src := &scriptedSource{frames: [][]byte{frame, frame}}

	count := 0
	analyzer := dissect.NewAnalyzer(dissect.NetworkConfig{})
	analyzer.SetLayerCallbacks(func(now time.Time, totalLen uint32, header dissect.Header, payload []byte) bool {
		count++
		return true
	}, nil, nil)

	if err := Run(context.Background(), src, analyzer, "test"); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected 2 frames dissected, got %d", count)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &scriptedSource{}
	analyzer := dissect.NewAnalyzer(dissect.NetworkConfig{})
	if err := Run(ctx, src, analyzer, "test"); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
