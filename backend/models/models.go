package models

import (
	"time"
)

// Packet is one observed packet from the capture feed. Rows are append-only.
type Packet struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
	SrcIP     string    `gorm:"size:45;not null;index" json:"src_ip"`
	DstIP     string    `gorm:"size:45;not null;index" json:"dst_ip"`
	Protocol  string    `gorm:"size:20;not null;index" json:"protocol"`
	Length    uint64    `gorm:"not null" json:"length"`
	SrcPort   *uint16   `json:"src_port"`
	DstPort   *uint16   `json:"dst_port"`
	Flags     *string   `gorm:"size:20" json:"flags"`
	TTL       *uint8    `gorm:"column:ttl" json:"ttl"`
	SrcMAC    *string   `gorm:"column:src_mac;size:32" json:"src_mac"`
	DstMAC    *string   `gorm:"column:dst_mac;size:32" json:"dst_mac"`
}

// Alert statuses. The only legal transition is active -> resolved.
const (
	AlertStatusActive   = "active"
	AlertStatusResolved = "resolved"
)

// Alert severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// AlertTypeHighTraffic is raised when a closed minute exceeds the byte threshold
const AlertTypeHighTraffic = "high_traffic"

// Alert records a raised condition
type Alert struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Timestamp   time.Time  `gorm:"index;not null" json:"timestamp"`
	AlertType   string     `gorm:"size:50;not null" json:"alert_type"`
	Description string     `gorm:"type:text" json:"description"`
	SourceIP    string     `gorm:"size:45;not null" json:"source_ip"` // "*" for aggregate alerts
	Status      string     `gorm:"size:20;default:active;index" json:"status"`
	ResolvedAt  *time.Time `json:"resolved_at"`
	DstIP       *string    `gorm:"size:45" json:"dst_ip,omitempty"`
	SrcPort     *uint16    `json:"src_port,omitempty"`
	DstPort     *uint16    `json:"dst_port,omitempty"`
	Protocol    *string    `gorm:"size:20" json:"protocol,omitempty"`
	Severity    string     `gorm:"size:20;default:info" json:"severity"`
	Category    string     `gorm:"size:50" json:"category"`
}

// IsResolved reports whether the alert has been closed by an operator
func (a *Alert) IsResolved() bool {
	return a.Status == AlertStatusResolved
}
