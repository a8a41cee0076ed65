package gateway

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"ResQLink/internal/models"
	apperrors "ResQLink/pkg/errors"

	"github.com/google/uuid"
)

// Outcome 模拟平台对请求的响应
type Outcome string

const (
	OutcomeGranted     Outcome = "granted"
	OutcomeDenied      Outcome = "denied"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeUnsupported Outcome = "unsupported"
)

// ParseOutcome 未知值按 granted 处理
func ParseOutcome(v string) Outcome {
	switch o := Outcome(strings.ToLower(strings.TrimSpace(v))); o {
	case OutcomeDenied, OutcomeUnavailable, OutcomeTimeout, OutcomeUnsupported:
		return o
	default:
		return OutcomeGranted
	}
}

// SimulatedBluetooth 无硬件时使用的蓝牙适配器
type SimulatedBluetooth struct {
	Outcome    Outcome
	DeviceName string
	Delay      time.Duration
}

func (b *SimulatedBluetooth) Supported() bool { return b.Outcome != OutcomeUnsupported }

func (b *SimulatedBluetooth) RequestDevice(ctx context.Context, opts RequestDeviceOptions) (Device, error) {
	if err := sleep(ctx, b.Delay); err != nil {
		return nil, apperrors.WrapCode(err, apperrors.CodeTimeout, "Bluetooth request cancelled")
	}
	switch b.Outcome {
	case OutcomeDenied:
		return nil, apperrors.WithCode(apperrors.CodePermissionDenied, "User cancelled the requestDevice() chooser.")
	case OutcomeUnavailable:
		return nil, apperrors.WithCode(apperrors.CodeUnavailable, "Bluetooth adapter not available.")
	case OutcomeTimeout:
		<-ctx.Done()
		return nil, apperrors.WrapCode(ctx.Err(), apperrors.CodeTimeout, "Bluetooth request timed out.")
	case OutcomeUnsupported:
		return nil, apperrors.WithCode(apperrors.CodeUnsupportedCapability, "Bluetooth adapter not present.")
	}
	return &simDevice{id: uuid.NewString(), name: b.DeviceName, connected: true}, nil
}

type simDevice struct {
	mu        sync.Mutex
	id        string
	name      string
	connected bool
}

func (d *simDevice) ID() string   { return d.id }
func (d *simDevice) Name() string { return d.name }

func (d *simDevice) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *simDevice) Disconnect() error {
	d.mu.Lock()
	d.connected = false
	d.mu.Unlock()
	return nil
}

// SimulatedLocation 围绕 Origin 小范围抖动的定位源
type SimulatedLocation struct {
	Outcome  Outcome
	Origin   models.Coordinates
	Accuracy float64
	Interval time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

func (l *SimulatedLocation) Supported() bool { return l.Outcome != OutcomeUnsupported }

func (l *SimulatedLocation) CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error) {
	if err := l.failure(ctx); err != nil {
		return Position{}, err
	}
	return l.fix(), nil
}

func (l *SimulatedLocation) Watch(ctx context.Context, opts PositionOptions) (<-chan PositionUpdate, error) {
	if l.Outcome == OutcomeUnsupported {
		return nil, apperrors.WithCode(apperrors.CodeUnsupportedCapability, "Geolocation not present.")
	}
	interval := l.Interval
	if interval <= 0 {
		interval = time.Second
	}

	ch := make(chan PositionUpdate)
	go func() {
		defer close(ch)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}

			u := PositionUpdate{}
			if l.Outcome == OutcomeGranted {
				u.Position = l.fix()
			} else {
				u.Err = apperrors.WithCodef(apperrors.CodeUnavailable, "watch position: %s", l.Outcome)
			}
			select {
			case ch <- u:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (l *SimulatedLocation) failure(ctx context.Context) error {
	switch l.Outcome {
	case OutcomeDenied:
		return apperrors.WithCode(apperrors.CodePermissionDenied, "User denied Geolocation")
	case OutcomeUnavailable:
		return apperrors.WithCode(apperrors.CodeUnavailable, "Position unavailable")
	case OutcomeTimeout:
		<-ctx.Done()
		return apperrors.WrapCode(ctx.Err(), apperrors.CodeTimeout, "Timeout expired")
	case OutcomeUnsupported:
		return apperrors.WithCode(apperrors.CodeUnsupportedCapability, "Geolocation not present")
	}
	return nil
}

func (l *SimulatedLocation) fix() Position {
	l.mu.Lock()
	if l.rnd == nil {
		l.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	dLat := (l.rnd.Float64() - 0.5) * 0.0002
	dLng := (l.rnd.Float64() - 0.5) * 0.0002
	l.mu.Unlock()

	acc := l.Accuracy
	if acc <= 0 {
		acc = 15
	}
	return Position{
		Coordinates: models.Coordinates{Lat: l.Origin.Lat + dLat, Lng: l.Origin.Lng + dLng},
		Accuracy:    acc,
		Timestamp:   time.Now(),
	}
}

// NewSimulatedPlatform 根据配置字符串构造模拟的蓝牙与定位
func NewSimulatedPlatform(bluetooth, location string) (*SimulatedBluetooth, *SimulatedLocation) {
	bt := &SimulatedBluetooth{
		Outcome:    ParseOutcome(bluetooth),
		DeviceName: "ResQLink Beacon",
	}
	loc := &SimulatedLocation{
		Outcome:  ParseOutcome(location),
		Origin:   models.Coordinates{Lat: 28.6139, Lng: 77.2090},
		Accuracy: 12,
		Interval: time.Second,
	}
	return bt, loc
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
