// Package gateway 封装蓝牙与定位两个权限入口。
//
// 每个网关都是 idle -> requesting -> granted | error 的状态机，
// 同一时刻只允许一个平台请求在途。
package gateway

import (
	"context"
	"time"

	"ResQLink/internal/models"
)

// Phase 网关状态
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRequesting Phase = "requesting"
	PhaseGranted    Phase = "granted"
	PhaseError      Phase = "error"
)

// Device 已授权的蓝牙设备
type Device interface {
	ID() string
	Name() string
	Connected() bool
	Disconnect() error
}

// RequestDeviceOptions 设备选择参数
type RequestDeviceOptions struct {
	AcceptAllDevices bool
	OptionalServices []string
}

// BluetoothAdapter 平台蓝牙能力。Supported 为 false 表示设备没有蓝牙；
// RequestDevice 返回的错误会携带 errors 包中的错误码
type BluetoothAdapter interface {
	Supported() bool
	RequestDevice(ctx context.Context, opts RequestDeviceOptions) (Device, error)
}

// PositionOptions 定位参数
type PositionOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

// Position 一次定位结果
type Position struct {
	Coordinates models.Coordinates
	Accuracy    float64
	Timestamp   time.Time
}

// PositionUpdate watch 推送的一次结果，Err 非空表示本次失败
type PositionUpdate struct {
	Position Position
	Err      error
}

// LocationProvider 平台定位能力。Watch 返回的 channel 在 ctx 结束后关闭
type LocationProvider interface {
	Supported() bool
	CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error)
	Watch(ctx context.Context, opts PositionOptions) (<-chan PositionUpdate, error)
}

var (
	bluetoothRequestOptions = RequestDeviceOptions{
		AcceptAllDevices: true,
		OptionalServices: []string{"generic_access"},
	}
	oneShotOptions = PositionOptions{HighAccuracy: true, Timeout: 10 * time.Second}
	watchOptions   = PositionOptions{HighAccuracy: true, Timeout: 5 * time.Second}
)
