package capture

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

// PcapSource captures live traffic through libpcap.
type PcapSource struct {
	device      string
	snapLen     int
	promiscuous bool
	timeout     time.Duration
	bpfFilter   string

	handle *pcap.Handle
}

// PcapOptions configures a PcapSource.
type PcapOptions struct {
	Device      string
	SnapLen     int
	Promiscuous bool
	TimeoutMs   int
	BPFFilter   string
}

// NewPcapSource creates a libpcap-backed source; Open activates it.
func NewPcapSource(opts PcapOptions) *PcapSource {
	if opts.SnapLen <= 0 {
		opts.SnapLen = 65535
	}
	if opts.TimeoutMs <= 0 {
		opts.TimeoutMs = 100
	}
	return &PcapSource{
		device:      opts.Device,
		snapLen:     opts.SnapLen,
		promiscuous: opts.Promiscuous,
		timeout:     time.Duration(opts.TimeoutMs) * time.Millisecond,
		bpfFilter:   opts.BPFFilter,
	}
}

func (s *PcapSource) Open() error {
	handle, err := pcap.OpenLive(s.device, int32(s.snapLen), s.promiscuous, s.timeout)
	if err != nil {
		return fmt.Errorf("failed to open device %s: %w", s.device, err)
	}
	if s.bpfFilter != "" {
		if err := handle.SetBPFFilter(s.bpfFilter); err != nil {
			handle.Close()
			return fmt.Errorf("failed to set BPF filter: %w", err)
		}
	}
	s.handle = handle
	return nil
}

func (s *PcapSource) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if s.handle == nil {
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("pcap source not opened")
	}
	return s.handle.ReadPacketData()
}

func (s *PcapSource) Close() {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
}

// FileSource replays a pcap capture file.
type FileSource struct {
	path   string
	handle *pcap.Handle
}

// NewFileSource creates a source that reads frames from a pcap file.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Open() error {
	handle, err := pcap.OpenOffline(s.path)
	if err != nil {
		return fmt.Errorf("failed to open pcap file %s: %w", s.path, err)
	}
	s.handle = handle
	return nil
}

func (s *FileSource) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if s.handle == nil {
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("file source not opened")
	}
	return s.handle.ReadPacketData()
}

func (s *FileSource) Close() {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
}

// Device describes one capture-capable interface.
type Device struct {
	Name        string
	Description string
	Addresses   []string
}

// ListDevices enumerates the capture-capable interfaces on this host.
func ListDevices() ([]Device, error) {
	ifs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	devices := make([]Device, 0, len(ifs))
	for _, iface := range ifs {
		d := Device{Name: iface.Name, Description: iface.Description}
		for _, addr := range iface.Addresses {
			d.Addresses = append(d.Addresses, addr.IP.String())
		}
		devices = append(devices, d)
	}
	return devices, nil
}
