package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"traffic-monitor/backend/system"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PcapFileSource replays a pcap capture file as feed lines in the same
// column layout tshark produces, so recorded traffic goes through the
// normal parse path.
type PcapFileSource struct {
	Path string
}

func (s *PcapFileSource) Name() string {
	return "pcap:" + s.Path
}

func (s *PcapFileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file: %w", err)
	}

	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}

	pr, pw := io.Pipe()
	go func() {
		defer f.Close()
		pw.CloseWithError(renderPcap(ctx, r, pw))
	}()
	return pr, nil
}

// renderPcap writes one feed line per packet until the file ends, the
// context is cancelled or the reader side goes away.
func renderPcap(ctx context.Context, r *pcapgo.Reader, out io.Writer) error {
	w := bufio.NewWriter(out)
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			system.Info("pcap replay finished: %d packets", count)
			return w.Flush()
		}
		if err != nil {
			return fmt.Errorf("failed to read packet %d: %w", count+1, err)
		}

		pkt := gopacket.NewPacket(data, r.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		if _, err := w.WriteString(FeedLine(pkt, ci)); err != nil {
			return err
		}
		count++
	}
}

// FeedLine renders a decoded packet as a tshark fields line, including the
// trailing newline. Columns that do not apply are left empty.
func FeedLine(pkt gopacket.Packet, ci gopacket.CaptureInfo) string {
	cols := make([]string, len(TsharkFields))
	cols[fieldTimestamp] = fmt.Sprintf("%d.%09d", ci.Timestamp.Unix(), ci.Timestamp.Nanosecond())
	cols[fieldLength] = strconv.Itoa(ci.Length)

	if eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet); ok {
		cols[fieldSrcMAC] = eth.SrcMAC.String()
		cols[fieldDstMAC] = eth.DstMAC.String()
	}

	proto := ""
	if ip4, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
		cols[fieldSrcIP] = ip4.SrcIP.String()
		cols[fieldDstIP] = ip4.DstIP.String()
		cols[fieldTTL] = strconv.Itoa(int(ip4.TTL))
		proto = "IPv4"
	} else if ip6, ok := pkt.Layer(layers.LayerTypeIPv6).(*layers.IPv6); ok {
		cols[fieldSrcIP] = ip6.SrcIP.String()
		cols[fieldDstIP] = ip6.DstIP.String()
		proto = "IPv6"
	} else if pkt.Layer(layers.LayerTypeARP) != nil {
		proto = "ARP"
	}

	switch {
	case pkt.Layer(layers.LayerTypeTCP) != nil:
		tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
		cols[fieldTCPSrcPort] = strconv.Itoa(int(tcp.SrcPort))
		cols[fieldTCPDstPort] = strconv.Itoa(int(tcp.DstPort))
		cols[fieldTCPFlags] = fmt.Sprintf("0x%04x", tcpFlags(tcp))
		proto = "TCP"
	case pkt.Layer(layers.LayerTypeUDP) != nil:
		udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		cols[fieldUDPSrcPort] = strconv.Itoa(int(udp.SrcPort))
		cols[fieldUDPDstPort] = strconv.Itoa(int(udp.DstPort))
		proto = "UDP"
		if pkt.Layer(layers.LayerTypeDNS) != nil {
			proto = "DNS"
		}
	case pkt.Layer(layers.LayerTypeICMPv4) != nil:
		proto = "ICMP"
	case pkt.Layer(layers.LayerTypeICMPv6) != nil:
		proto = "ICMPv6"
	}
	cols[fieldProtocol] = proto

	return strings.Join(cols, "\t") + "\n"
}

// tcpFlags packs the flag bits the way tshark prints tcp.flags.
func tcpFlags(t *layers.TCP) uint16 {
	var f uint16
	bits := []bool{t.FIN, t.SYN, t.RST, t.PSH, t.ACK, t.URG, t.ECE, t.CWR, t.NS}
	for i, set := range bits {
		if set {
			f |= 1 << i
		}
	}
	return f
}
