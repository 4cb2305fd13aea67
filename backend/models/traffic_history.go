package models

import (
	"time"
)

// NetworkInterface is a host interface known to the monitor
type NetworkInterface struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:50;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"size:200" json:"description"`
	IPAddress   string    `gorm:"column:ip_address;size:45" json:"ip_address"`
	MACAddress  string    `gorm:"column:mac_address;size:17" json:"mac_address"`
	Status      string    `gorm:"size:20" json:"status"` // up, down
	IsMonitored bool      `gorm:"default:false" json:"is_monitored"`
	CreatedAt   time.Time `json:"created_at"`
}

// TrafficStats is a per-interface traffic summary row. The schema carries it
// for dashboards that populate it; the ingestion path never writes it.
type TrafficStats struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	InterfaceID  *uint             `json:"interface_id"`
	Interface    *NetworkInterface `gorm:"foreignKey:InterfaceID" json:"-"`
	Timestamp    time.Time         `gorm:"index" json:"timestamp"`
	TotalPackets int64             `gorm:"default:0" json:"total_packets"`
	TotalBytes   int64             `gorm:"default:0" json:"total_bytes"`
	TCPPackets   int64             `gorm:"column:tcp_packets;default:0" json:"tcp_packets"`
	UDPPackets   int64             `gorm:"column:udp_packets;default:0" json:"udp_packets"`
	ICMPPackets  int64             `gorm:"column:icmp_packets;default:0" json:"icmp_packets"`
	OtherPackets int64             `gorm:"default:0" json:"other_packets"`
}

// TrafficStats keeps the table name of the existing schema
func (TrafficStats) TableName() string {
	return "traffic_stats"
}

// TrendPoint is one bucket of the dashboard traffic trend
type TrendPoint struct {
	Start      time.Time `json:"-"`
	Label      string    `json:"time"`
	TotalBytes int64     `json:"bytes"`
}

// TrafficSummary is the dashboard headline stats block
type TrafficSummary struct {
	TotalPackets      int64 `json:"total_packets"`
	TotalBytes        int64 `json:"total_bytes"`
	ActiveConnections int64 `json:"active_connections"`
	AlertCount        int64 `json:"alert_count"`
}

// SourceVolume aggregates traffic sent by one source address
type SourceVolume struct {
	SourceIP    string `json:"source_ip"`
	Packets     int64  `json:"packets"`
	Bytes       int64  `json:"bytes"`
	CountryCode string `json:"country_code,omitempty" gorm:"-"`
}
