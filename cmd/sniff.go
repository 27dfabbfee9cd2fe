package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/dissect/internal/capture"
	"firestige.xyz/dissect/internal/config"
	"firestige.xyz/dissect/internal/dissect"
	"firestige.xyz/dissect/internal/log"
	"firestige.xyz/dissect/internal/metrics"
	"firestige.xyz/dissect/internal/report"
	"firestige.xyz/dissect/plugins/parser/ftp"
	"firestige.xyz/dissect/plugins/parser/modbus"
)

var (
	sniffDevice string
	sniffFilter string
	sniffFile   string
)

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Capture and dissect live traffic",
	Long:  "Capture frames from a device or pcap file and print the decoded network and transport layers and FTP/Modbus messages.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSniff(cmd)
	},
}

func init() {
	sniffCmd.Flags().StringVarP(&sniffDevice, "interface", "i", "", "device to capture from")
	sniffCmd.Flags().StringVarP(&sniffFilter, "filter", "f", "", "BPF filter expression")
	sniffCmd.Flags().StringVarP(&sniffFile, "read", "r", "", "read frames from a pcap file instead of a device")
	rootCmd.AddCommand(sniffCmd)
}

func runSniff(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if sniffDevice != "" {
		cfg.Capture.Device = sniffDevice
	}
	if sniffFilter != "" {
		cfg.Capture.BPFFilter = sniffFilter
	}
	if sniffFile == "" && cfg.Capture.Device == "" {
		return fmt.Errorf("no capture device configured (use -i or the config file)")
	}

	log.Init(&cfg.Log)
	logger := log.GetLogger()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	if cfg.Metrics.Enabled {
		server := metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path)
		if err := server.Start(ctx); err != nil {
			return err
		}
		defer server.Stop(context.Background())
	}

	reporter, err := report.NewKafkaReporter(cfg.Report)
	if err != nil {
		return err
	}
	if reporter != nil {
		defer reporter.Close()
	}

	analyzer := dissect.NewAnalyzer(cfg.Engine)
	registerParsers(analyzer, cmd)
	analyzer.SetLayerCallbacks(nil, networkPrinter(ctx, cmd, reporter), transportPrinter(cmd))

	src, err := buildSource(cfg.Capture)
	if err != nil {
		return err
	}
	if err := src.Open(); err != nil {
		return err
	}
	defer src.Close()

	device := cfg.Capture.Device
	if sniffFile != "" {
		device = sniffFile
	}
	logger.WithField("device", device).Info("capture started")
	if err := capture.Run(ctx, src, analyzer, device); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.Default(), nil
	}
	return config.Load(configFile)
}

func buildSource(cfg config.CaptureConfig) (capture.Source, error) {
	if sniffFile != "" {
		return capture.NewFileSource(sniffFile), nil
	}
	if cfg.UseAfpacket {
		return capture.NewAfpacketSource(capture.AfpacketOptions{
			Device:       cfg.Device,
			SnapLen:      cfg.SnapLen,
			BufferSizeMB: cfg.BufferSizeMB,
			TimeoutMs:    cfg.TimeoutMs,
			BPFFilter:    cfg.BPFFilter,
		})
	}
	return capture.NewPcapSource(capture.PcapOptions{
		Device:      cfg.Device,
		SnapLen:     cfg.SnapLen,
		Promiscuous: cfg.Promiscuous,
		TimeoutMs:   cfg.TimeoutMs,
		BPFFilter:   cfg.BPFFilter,
	}), nil
}

func registerParsers(analyzer *dissect.Analyzer, cmd *cobra.Command) {
	out := cmd.OutOrStdout()

	ftpParser := ftp.NewParser(0)
	ftpParser.SetRequestCallback(func(now time.Time, totalLen uint32, transport dissect.Header, flag, arg string) {
		fmt.Fprintf(out, "  ftp request: %s %s\n", flag, arg)
	})
	ftpParser.SetResponseCallback(func(now time.Time, totalLen uint32, transport dissect.Header, flag, arg string) {
		fmt.Fprintf(out, "  ftp response: %s %s\n", flag, arg)
	})
	analyzer.AddPortParser(ftp.ControlPort, ftpParser)

	modbusParser := modbus.NewParser()
	modbusParser.SetCallback(func(now time.Time, totalLen uint32, transport dissect.Header, pdu modbus.PDU) {
		fmt.Fprintf(out, "  modbus: unit=%d func=%d exception=%v len=%d\n",
			pdu.MBAP.UnitID, pdu.FunctionCode, pdu.IsException, len(pdu.Data))
	})
	analyzer.AddPortParser(modbus.DefaultPort, modbusParser)
}

func networkPrinter(ctx context.Context, cmd *cobra.Command, reporter *report.KafkaReporter) dissect.LayerCallback {
	out := cmd.OutOrStdout()
	return func(now time.Time, totalLen uint32, header dissect.Header, payload []byte) bool {
		event := report.Event{Timestamp: now, Length: totalLen, Layer: "network", Protocol: header.Protocol()}
		switch h := header.(type) {
		case *dissect.IPv4Header:
			event.Src, event.Dst = h.SrcAddrString(), h.DstAddrString()
			fmt.Fprintf(out, "ipv4 %s -> %s proto=%d len=%d ttl=%d\n",
				event.Src, event.Dst, h.NextProtocol, h.TotalLen, h.TTL)
		case *dissect.IPv6Header:
			event.Src, event.Dst = h.SrcAddrString(), h.DstAddrString()
			fmt.Fprintf(out, "ipv6 %s -> %s next=%d plen=%d hops=%d\n",
				event.Src, event.Dst, h.NextHeader, h.PayloadLen, h.HopLimit)
		case *dissect.ARPHeader:
			event.Src, event.Dst = h.SenderIPString(), h.TargetIPString()
			event.Detail = fmt.Sprintf("opcode=%d", h.Opcode)
			fmt.Fprintf(out, "arp op=%d %s (%s) -> %s (%s)\n",
				h.Opcode, event.Src, h.SenderMACString(), event.Dst, h.TargetMACString())
		}
		if reporter != nil {
			if err := reporter.Report(ctx, event); err != nil {
				log.GetLogger().WithError(err).Warn("report failed")
			}
		}
		return true
	}
}

func transportPrinter(cmd *cobra.Command) dissect.LayerCallback {
	out := cmd.OutOrStdout()
	return func(now time.Time, totalLen uint32, header dissect.Header, payload []byte) bool {
		switch h := header.(type) {
		case *dissect.TCPHeader:
			fmt.Fprintf(out, "  tcp %d -> %d seq=%d ack=%d win=%d payload=%d\n",
				h.SrcPort, h.DstPort, h.Seq, h.Ack, h.Window, len(payload))
		case *dissect.UDPHeader:
			fmt.Fprintf(out, "  udp %d -> %d len=%d payload=%d\n",
				h.SrcPort, h.DstPort, h.TotalLen, len(payload))
		case *dissect.ICMPHeader:
			fmt.Fprintf(out, "  icmp type=%d code=%d\n", h.Type, h.Code)
		case *dissect.ICMPv6Header:
			fmt.Fprintf(out, "  icmpv6 type=%d code=%d\n", h.Type, h.Code)
		}
		return true
	}
}
