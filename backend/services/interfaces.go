package services

import (
	"context"
	"fmt"
	"net"
	"strings"

	"traffic-monitor/backend/models"
	"traffic-monitor/backend/system"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// InterfaceStore is the interface table used by SyncInterfaces.
type InterfaceStore interface {
	UpsertInterface(ctx context.Context, iface *models.NetworkInterface) error
}

// SyncInterfaces records the host's network interfaces. The capture
// interface, when it names one of them, starts out monitored.
func SyncInterfaces(ctx context.Context, st InterfaceStore, captureIface string) (int, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list interfaces: %w", err)
	}

	rows := InterfaceRows(ifaces, captureIface)
	for i := range rows {
		if err := st.UpsertInterface(ctx, &rows[i]); err != nil {
			return i, err
		}
	}
	system.Info("Synced %d network interfaces", len(rows))
	return len(rows), nil
}

// InterfaceRows converts gopsutil interface stats to table rows, skipping
// loopback devices.
func InterfaceRows(ifaces psnet.InterfaceStatList, captureIface string) []models.NetworkInterface {
	rows := make([]models.NetworkInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		if hasFlag(iface.Flags, "loopback") {
			continue
		}

		status := "down"
		if hasFlag(iface.Flags, "up") {
			status = "up"
		}

		rows = append(rows, models.NetworkInterface{
			Name:        iface.Name,
			Description: strings.Join(iface.Flags, ","),
			IPAddress:   firstIPv4(iface.Addrs),
			MACAddress:  iface.HardwareAddr,
			Status:      status,
			IsMonitored: iface.Name == captureIface,
		})
	}
	return rows
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// firstIPv4 returns the first IPv4 address, or the first address of any
// family when there is none.
func firstIPv4(addrs psnet.InterfaceAddrList) string {
	fallback := ""
	for _, a := range addrs {
		ip, _, err := net.ParseCIDR(a.Addr)
		if err != nil {
			ip = net.ParseIP(a.Addr)
		}
		if ip == nil {
			continue
		}
		if ip.To4() != nil {
			return ip.String()
		}
		if fallback == "" {
			fallback = ip.String()
		}
	}
	return fallback
}
