package services

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"traffic-monitor/backend/models"
)

// Feed field positions, matching the -e order passed to tshark.
const (
	fieldTimestamp = iota
	fieldSrcIP
	fieldDstIP
	fieldProtocol
	fieldLength
	fieldTCPSrcPort
	fieldTCPDstPort
	fieldUDPSrcPort
	fieldUDPDstPort
	fieldTCPFlags
	fieldTTL
	fieldSrcMAC
	fieldDstMAC
	minFields = fieldLength + 1
)

// Epoch values past this (year 2286) are treated as malformed.
const maxEpochSeconds = 1e10

// Parse failure kinds
var (
	ErrIncompleteRecord = errors.New("incomplete record")
	ErrMalformedField   = errors.New("malformed field")
)

// ParseError describes why a feed line was discarded.
type ParseError struct {
	Kind  error
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Field)
}

func (e *ParseError) Is(target error) bool {
	return target == e.Kind
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func malformed(field string, err error) error {
	return &ParseError{Kind: ErrMalformedField, Field: field, Err: err}
}

// ParseLine turns one tab-separated feed line into a packet record. It has no
// side effects.
func ParseLine(line string) (*models.Packet, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	if len(fields) < minFields {
		return nil, &ParseError{Kind: ErrIncompleteRecord, Field: fmt.Sprintf("%d fields", len(fields))}
	}
	if fields[fieldSrcIP] == "" || fields[fieldDstIP] == "" {
		return nil, &ParseError{Kind: ErrIncompleteRecord, Field: "ip address"}
	}

	ts, err := parseEpoch(fields[fieldTimestamp])
	if err != nil {
		return nil, malformed("frame.time_epoch", err)
	}

	// Frame lengths fit in 32 bits; anything larger is a corrupt record.
	length, err := strconv.ParseUint(fields[fieldLength], 10, 32)
	if err != nil {
		return nil, malformed("frame.len", err)
	}

	p := &models.Packet{
		Timestamp: ts,
		SrcIP:     fields[fieldSrcIP],
		DstIP:     fields[fieldDstIP],
		Protocol:  fields[fieldProtocol],
		Length:    length,
	}

	if p.SrcPort, err = portField(fields, fieldTCPSrcPort, fieldUDPSrcPort); err != nil {
		return nil, err
	}
	if p.DstPort, err = portField(fields, fieldTCPDstPort, fieldUDPDstPort); err != nil {
		return nil, err
	}

	p.Flags = stringField(fields, fieldTCPFlags)

	if v := stringField(fields, fieldTTL); v != nil {
		ttl, err := strconv.ParseUint(*v, 10, 8)
		if err != nil {
			return nil, malformed("ip.ttl", err)
		}
		t := uint8(ttl)
		p.TTL = &t
	}

	p.SrcMAC = stringField(fields, fieldSrcMAC)
	p.DstMAC = stringField(fields, fieldDstMAC)
	return p, nil
}

// parseEpoch reads a decimal epoch-seconds value and truncates it to the
// second in UTC.
func parseEpoch(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("non-finite timestamp %q", s)
	}
	if math.Abs(f) > maxEpochSeconds {
		return time.Time{}, fmt.Errorf("timestamp %q out of range", s)
	}
	return time.Unix(int64(math.Floor(f)), 0).UTC(), nil
}

// stringField returns the field at i, or nil when it is missing or empty.
func stringField(fields []string, i int) *string {
	if i >= len(fields) || fields[i] == "" {
		return nil
	}
	v := fields[i]
	return &v
}

// portField prefers the TCP column and falls back to the UDP one.
func portField(fields []string, tcp, udp int) (*uint16, error) {
	for _, i := range []int{tcp, udp} {
		v := stringField(fields, i)
		if v == nil {
			continue
		}
		n, err := strconv.ParseUint(*v, 10, 16)
		if err != nil {
			name := "tcp port"
			if i == udp {
				name = "udp port"
			}
			return nil, malformed(name, err)
		}
		port := uint16(n)
		return &port, nil
	}
	return nil, nil
}
