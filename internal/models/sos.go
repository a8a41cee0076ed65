package models

import (
	"strings"

	"gorm.io/gorm"
)

// Status 记录的投递/同步进度，只由调用方修改
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusSynced  Status = "synced"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusSynced:
		return true
	}
	return false
}

// ParseStatus 解析状态字符串，大小写不敏感
func ParseStatus(v string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	return s, s.Valid()
}

// Severity 紧急程度，创建后不可变
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

func ParseSeverity(v string) (Severity, bool) {
	s := Severity(strings.ToLower(strings.TrimSpace(v)))
	return s, s.Valid()
}

// Coordinates 经纬度
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// SOSRecord 本地持久化的求助记录
type SOSRecord struct {
	ID               uint64       `json:"id" gorm:"primaryKey;autoIncrement"`
	Message          string       `json:"message" gorm:"type:text;not null"`
	Location         *Coordinates `json:"location" gorm:"-"`
	Latitude         *float64     `json:"-" gorm:"column:latitude"`
	Longitude        *float64     `json:"-" gorm:"column:longitude"`
	Timestamp        int64        `json:"timestamp" gorm:"not null;index:idx_sos_alerts_timestamp"`
	Status           Status       `json:"status" gorm:"size:16;not null;index:idx_sos_alerts_status"`
	Severity         Severity     `json:"severity" gorm:"size:16;not null;index:idx_sos_alerts_severity"`
	BluetoothEnabled bool         `json:"bluetoothEnabled" gorm:"column:bluetooth_enabled"`
	Accuracy         *float64     `json:"accuracy,omitempty"`
}

func (SOSRecord) TableName() string {
	return "sos_alerts"
}

// BeforeSave 把 Location 拆成经纬度两列
func (r *SOSRecord) BeforeSave(tx *gorm.DB) error {
	if r.Location == nil {
		r.Latitude, r.Longitude = nil, nil
		return nil
	}
	lat, lng := r.Location.Lat, r.Location.Lng
	r.Latitude, r.Longitude = &lat, &lng
	return nil
}

// AfterFind 从经纬度两列还原 Location
func (r *SOSRecord) AfterFind(tx *gorm.DB) error {
	r.Location = nil
	if r.Latitude != nil && r.Longitude != nil {
		r.Location = &Coordinates{Lat: *r.Latitude, Lng: *r.Longitude}
	}
	return nil
}

// SchemaMeta 记录数据库名与 schema 版本
type SchemaMeta struct {
	Name    string `gorm:"primaryKey;size:64"`
	Version int    `gorm:"not null"`
}

func (SchemaMeta) TableName() string {
	return "schema_meta"
}
