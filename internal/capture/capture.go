// Package capture wraps live packet sources and feeds frames into the
// dissection engine.
package capture

import (
	"context"
	"errors"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/pcap"

	"firestige.xyz/dissect/internal/dissect"
	"firestige.xyz/dissect/internal/log"
	"firestige.xyz/dissect/internal/metrics"
)

// Source delivers link-layer frames, one complete frame per read, already
// stripped of any capture-prefix metadata.
type Source interface {
	Open() error
	ReadPacket() ([]byte, gopacket.CaptureInfo, error)
	Close()
}

// Run reads frames from the source and hands each to the engine until the
// context is cancelled or the source is exhausted. The frame buffer may be
// reused by the source between reads; the engine copies anything it keeps.
func Run(ctx context.Context, src Source, analyzer *dissect.Analyzer, device string) error {
	logger := log.GetLogger().WithField("device", device)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		data, _, err := src.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info("capture source exhausted")
				return nil
			}
			if isTimeout(err) {
				continue
			}
			return err
		}
		metrics.CapturePacketsTotal.WithLabelValues(device).Inc()
		status := analyzer.Parse(data, dissect.SourceNetwork)
		if status > 0 && status != dissect.StatusFragmentPending && logger.IsDebugEnabled() {
			logger.Debugf("packet dropped, status=%d len=%d", status, len(data))
		}
	}
}

type timeouter interface {
	Timeout() bool
}

// isTimeout recognizes the per-handle poll timeouts that just mean "no
// traffic yet".
func isTimeout(err error) bool {
	if errors.Is(err, pcap.NextErrorTimeoutExpired) || errors.Is(err, afpacket.ErrTimeout) {
		return true
	}
	var t timeouter
	return errors.As(err, &t) && t.Timeout()
}
