package gateway

import (
	"context"
	"sync"

	"ResQLink/internal/models"
	apperrors "ResQLink/pkg/errors"
	"ResQLink/pkg/logger"
	"ResQLink/pkg/metrics"
	"ResQLink/pkg/util"

	"go.uber.org/zap"
)

// BluetoothState 蓝牙网关对外可见的状态
type BluetoothState struct {
	Supported  bool   `json:"supported"`
	Phase      Phase  `json:"phase"`
	Enabled    bool   `json:"enabled"`
	Connecting bool   `json:"connecting"`
	DeviceID   string `json:"deviceId,omitempty"`
	DeviceName string `json:"deviceName,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorKey   string `json:"errorKey,omitempty"`
}

// BluetoothGateway 请求蓝牙设备权限
type BluetoothGateway struct {
	adapter BluetoothAdapter
	signals *util.Signals
	metrics *metrics.Metrics

	mu     sync.Mutex
	state  BluetoothState
	device Device
}

func NewBluetoothGateway(adapter BluetoothAdapter, signals *util.Signals, m *metrics.Metrics) *BluetoothGateway {
	if signals == nil {
		signals = util.Sig()
	}
	return &BluetoothGateway{
		adapter: adapter,
		signals: signals,
		metrics: m,
		state: BluetoothState{
			Supported: adapter != nil && adapter.Supported(),
			Phase:     PhaseIdle,
		},
	}
}

func (g *BluetoothGateway) State() BluetoothState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *BluetoothGateway) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Enabled
}

// Request 触发一次设备选择。失败时状态进入 error 并返回带原因的错误，不重试
func (g *BluetoothGateway) Request(ctx context.Context) (BluetoothState, error) {
	g.mu.Lock()
	if g.state.Phase == PhaseRequesting {
		g.mu.Unlock()
		g.metrics.RecordGateway("bluetooth", "busy")
		return g.State(), ReasonBusy.err(apperrors.CodeBusy, nil)
	}
	if g.adapter == nil || !g.adapter.Supported() {
		reason, code := ReasonBluetoothUnsupported, apperrors.CodeUnsupportedCapability
		if g.adapter == nil {
			reason = ReasonBluetoothAPI
		}
		g.state.Error, g.state.ErrorKey = reason.Text, reason.Key
		g.state.Phase = PhaseError
		st := g.state
		g.mu.Unlock()
		g.finish(st, "unsupported")
		return st, reason.err(code, nil)
	}
	g.state.Phase = PhaseRequesting
	g.state.Connecting = true
	g.state.Error, g.state.ErrorKey = "", ""
	st := g.state
	g.mu.Unlock()
	g.signals.Emit(models.SigBluetoothChanged, g, st)

	dev, err := g.adapter.RequestDevice(ctx, bluetoothRequestOptions)

	g.mu.Lock()
	g.state.Connecting = false
	if err != nil {
		reason := ReasonBluetoothFailed
		if msg := apperrors.GetMessage(err); msg != "" {
			reason = Reason{Text: msg}
		}
		g.state.Phase = PhaseError
		g.state.Enabled = false
		g.state.Error, g.state.ErrorKey = reason.Text, reason.Key
		st = g.state
		g.mu.Unlock()

		code := apperrors.GetCode(err)
		if code == apperrors.CodeUnknown {
			code = apperrors.CodeUnavailable
		}
		logger.Warn("bluetooth request failed", zap.Error(err))
		g.finish(st, apperrors.CodeName(code))
		return st, reason.err(code, err)
	}

	prev := g.device
	g.device = dev
	g.state.Phase = PhaseGranted
	g.state.Enabled = true
	g.state.DeviceID = dev.ID()
	g.state.DeviceName = dev.Name()
	st = g.state
	g.mu.Unlock()

	if prev != nil && prev != dev && prev.Connected() {
		if err := prev.Disconnect(); err != nil {
			logger.Warn("bluetooth disconnect of previous device failed", zap.Error(err))
		}
	}

	name := dev.Name()
	if name == "" {
		name = "Unknown device"
	}
	logger.Info("bluetooth device connected", zap.String("device", name))
	g.finish(st, "granted")
	return st, nil
}

// Disconnect 断开已连接设备，Enabled 置为 false
func (g *BluetoothGateway) Disconnect() BluetoothState {
	g.mu.Lock()
	dev := g.device
	g.device = nil
	g.state.Enabled = false
	g.state.DeviceID, g.state.DeviceName = "", ""
	if g.state.Phase == PhaseGranted {
		g.state.Phase = PhaseIdle
	}
	st := g.state
	g.mu.Unlock()

	if dev != nil && dev.Connected() {
		if err := dev.Disconnect(); err != nil {
			logger.Warn("bluetooth disconnect failed", zap.Error(err))
		}
	}
	g.signals.Emit(models.SigBluetoothChanged, g, st)
	return st
}

func (g *BluetoothGateway) finish(st BluetoothState, outcome string) {
	g.metrics.RecordGateway("bluetooth", outcome)
	g.signals.Emit(models.SigBluetoothChanged, g, st)
}
