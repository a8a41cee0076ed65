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

// LocationState 定位网关对外可见的状态
type LocationState struct {
	Supported         bool                `json:"supported"`
	Phase             Phase               `json:"phase"`
	PermissionGranted bool                `json:"permissionGranted"`
	Requesting        bool                `json:"requesting"`
	Watching          bool                `json:"watching"`
	Coordinates       *models.Coordinates `json:"coordinates,omitempty"`
	Accuracy          *float64            `json:"accuracy,omitempty"`
	Error             string              `json:"error,omitempty"`
	ErrorKey          string              `json:"errorKey,omitempty"`
}

// LocationGateway 一次性定位与持续跟踪
type LocationGateway struct {
	provider LocationProvider
	signals  *util.Signals
	metrics  *metrics.Metrics

	mu    sync.Mutex
	state LocationState

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

func NewLocationGateway(provider LocationProvider, signals *util.Signals, m *metrics.Metrics) *LocationGateway {
	if signals == nil {
		signals = util.Sig()
	}
	return &LocationGateway{
		provider: provider,
		signals:  signals,
		metrics:  m,
		state: LocationState{
			Supported: provider != nil && provider.Supported(),
			Phase:     PhaseIdle,
		},
	}
}

func (g *LocationGateway) State() LocationState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshot()
}

// snapshot 复制指针字段，调用方需持有锁
func (g *LocationGateway) snapshot() LocationState {
	st := g.state
	if st.Coordinates != nil {
		c := *st.Coordinates
		st.Coordinates = &c
	}
	if st.Accuracy != nil {
		a := *st.Accuracy
		st.Accuracy = &a
	}
	return st
}

// Request 请求一次当前位置，10 秒超时
func (g *LocationGateway) Request(ctx context.Context) (LocationState, error) {
	g.mu.Lock()
	if g.state.Phase == PhaseRequesting {
		st := g.snapshot()
		g.mu.Unlock()
		g.metrics.RecordGateway("location", "busy")
		return st, ReasonBusy.err(apperrors.CodeBusy, nil)
	}
	if g.provider == nil || !g.provider.Supported() {
		g.state.Phase = PhaseError
		g.state.Error, g.state.ErrorKey = ReasonLocationUnsupported.Text, ReasonLocationUnsupported.Key
		st := g.snapshot()
		g.mu.Unlock()
		g.finish(st, "unsupported")
		return st, ReasonLocationUnsupported.err(apperrors.CodeUnsupportedCapability, nil)
	}
	g.state.Phase = PhaseRequesting
	g.state.Requesting = true
	g.state.Error, g.state.ErrorKey = "", ""
	st := g.snapshot()
	g.mu.Unlock()
	g.signals.Emit(models.SigLocationChanged, g, st)

	reqCtx, cancel := context.WithTimeout(ctx, oneShotOptions.Timeout)
	pos, err := g.provider.CurrentPosition(reqCtx, oneShotOptions)
	cancel()
	if err != nil && apperrors.GetCode(err) == apperrors.CodeUnknown && reqCtx.Err() == context.DeadlineExceeded {
		err = apperrors.WrapCode(err, apperrors.CodeTimeout, "deadline exceeded")
	}

	g.mu.Lock()
	g.state.Requesting = false
	if err != nil {
		reason, code := locationReason(err)
		g.state.Phase = PhaseError
		g.state.PermissionGranted = false
		g.state.Error, g.state.ErrorKey = reason.Text, reason.Key
		st = g.snapshot()
		g.mu.Unlock()

		logger.Warn("location request failed", zap.String("reason", reason.Text), zap.Error(err))
		g.finish(st, apperrors.CodeName(code))
		return st, reason.err(code, err)
	}

	g.applyFix(pos)
	g.state.Phase = PhaseGranted
	g.state.PermissionGranted = true
	st = g.snapshot()
	g.mu.Unlock()

	g.finish(st, "granted")
	return st, nil
}

// applyFix 写入坐标并清除错误，调用方需持有锁
func (g *LocationGateway) applyFix(pos Position) {
	c := pos.Coordinates
	a := pos.Accuracy
	g.state.Coordinates = &c
	g.state.Accuracy = &a
	g.state.Error, g.state.ErrorKey = "", ""
}

// StartWatching 开始持续跟踪，已在跟踪时直接返回
func (g *LocationGateway) StartWatching() (LocationState, error) {
	g.mu.Lock()
	if g.provider == nil || !g.provider.Supported() {
		st := g.snapshot()
		g.mu.Unlock()
		return st, ReasonLocationUnsupported.err(apperrors.CodeUnsupportedCapability, nil)
	}
	if g.watchCancel != nil {
		st := g.snapshot()
		g.mu.Unlock()
		return st, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	updates, err := g.provider.Watch(ctx, watchOptions)
	if err != nil {
		cancel()
		g.state.Error, g.state.ErrorKey = ReasonLocationWatch.Text, ReasonLocationWatch.Key
		st := g.snapshot()
		g.mu.Unlock()
		g.finish(st, "watch_failed")
		return st, ReasonLocationWatch.err(apperrors.GetCode(err), err)
	}

	done := make(chan struct{})
	g.watchCancel = cancel
	g.watchDone = done
	g.state.Watching = true
	st := g.snapshot()
	g.mu.Unlock()

	go g.consume(updates, done)
	logger.Info("live location watch started")
	g.signals.Emit(models.SigLocationChanged, g, st)
	return st, nil
}

func (g *LocationGateway) consume(updates <-chan PositionUpdate, done chan struct{}) {
	defer close(done)
	defer g.watchEnded(done)
	for u := range updates {
		g.mu.Lock()
		if g.watchDone != done {
			g.mu.Unlock()
			continue
		}
		if u.Err != nil {
			g.state.Error, g.state.ErrorKey = ReasonLocationWatch.Text, ReasonLocationWatch.Key
		} else {
			g.applyFix(u.Position)
			g.state.Watching = true
		}
		st := g.snapshot()
		g.mu.Unlock()

		if u.Err != nil {
			logger.Warn("watch position error", zap.Error(u.Err))
		} else {
			logger.Debug("live location update",
				zap.Float64("lat", u.Position.Coordinates.Lat),
				zap.Float64("lng", u.Position.Coordinates.Lng),
				zap.Float64("accuracy", u.Position.Accuracy))
		}
		g.signals.Emit(models.SigLocationChanged, g, st)
	}
}

// watchEnded 订阅通道关闭时复位跟踪状态；done 已不是当前订阅时不处理
func (g *LocationGateway) watchEnded(done chan struct{}) {
	g.mu.Lock()
	if g.watchDone != done {
		g.mu.Unlock()
		return
	}
	g.watchCancel()
	g.watchCancel, g.watchDone = nil, nil
	g.state.Watching = false
	st := g.snapshot()
	g.mu.Unlock()

	logger.Info("live location watch ended")
	g.signals.Emit(models.SigLocationChanged, g, st)
}

// StopWatching 取消跟踪并等待订阅协程退出
func (g *LocationGateway) StopWatching() LocationState {
	g.mu.Lock()
	cancel, done := g.watchCancel, g.watchDone
	if cancel == nil {
		st := g.snapshot()
		g.mu.Unlock()
		return st
	}
	g.watchCancel, g.watchDone = nil, nil
	g.state.Watching = false
	st := g.snapshot()
	g.mu.Unlock()

	cancel()
	<-done

	logger.Info("live location watch stopped")
	g.signals.Emit(models.SigLocationChanged, g, st)
	return st
}

func (g *LocationGateway) Watching() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.watchCancel != nil
}

// Close 释放订阅
func (g *LocationGateway) Close() error {
	g.StopWatching()
	return nil
}

func (g *LocationGateway) finish(st LocationState, outcome string) {
	g.metrics.RecordGateway("location", outcome)
	g.signals.Emit(models.SigLocationChanged, g, st)
}
