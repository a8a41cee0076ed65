package models

import "time"

// AlertStatus 附近求助的处理状态（模拟数据）
type AlertStatus string

const (
	AlertPending      AlertStatus = "pending"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Alert 附近设备经 mesh 转发来的求助（模拟数据，不落库）
type Alert struct {
	ID        string      `json:"id"`
	Message   string      `json:"message"`
	Location  Coordinates `json:"location"`
	Timestamp int64       `json:"timestamp"`
	Severity  Severity    `json:"severity"`
	Status    AlertStatus `json:"status"`
	Sender    string      `json:"sender"`
	Distance  float64     `json:"distance,omitempty"`
}

// MockAlerts 以 now 为基准生成模拟求助列表
func MockAlerts(now time.Time) []Alert {
	ms := now.UnixMilli()
	return []Alert{
		{
			ID:        "1",
			Message:   "Water rising rapidly near sector 7. Need immediate evacuation assistance.",
			Location:  Coordinates{Lat: 28.7041, Lng: 77.1025},
			Timestamp: ms - 300000,
			Severity:  SeverityCritical,
			Status:    AlertPending,
			Sender:    "Rescue Team Alpha",
			Distance:  0.8,
		},
		{
			ID:        "2",
			Message:   "Family of 4 stranded on rooftop. Children need medical attention.",
			Location:  Coordinates{Lat: 28.6892, Lng: 77.0892},
			Timestamp: ms - 900000,
			Severity:  SeverityHigh,
			Status:    AlertAcknowledged,
			Sender:    "Local Volunteer",
			Distance:  1.2,
		},
		{
			ID:        "3",
			Message:   "Relief supplies needed at community center. Food and water running low.",
			Location:  Coordinates{Lat: 28.7123, Lng: 77.1156},
			Timestamp: ms - 1800000,
			Severity:  SeverityMedium,
			Status:    AlertPending,
			Sender:    "Community Center",
			Distance:  2.5,
		},
	}
}

// NearbyDevice 附近蓝牙设备（模拟数据）
type NearbyDevice struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Connected      bool   `json:"connected"`
	SignalStrength string `json:"signalStrength"` // low / medium / high
	Type           string `json:"type"`           // phone / laptop / tablet / unknown
}

func MockNearbyDevices() []NearbyDevice {
	return []NearbyDevice{
		{ID: "1", Name: "iPhone 15 Pro", Connected: true, SignalStrength: "high", Type: "phone"},
		{ID: "2", Name: "Galaxy S24", Connected: false, SignalStrength: "medium", Type: "phone"},
		{ID: "3", Name: "MacBook Pro", Connected: false, SignalStrength: "low", Type: "laptop"},
		{ID: "4", Name: "iPad Air", Connected: true, SignalStrength: "high", Type: "tablet"},
		{ID: "5", Name: "Unknown Device", Connected: false, SignalStrength: "medium", Type: "unknown"},
	}
}
