// Package controller 维护界面状态并串联网关、记录库与搜索。
package controller

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"ResQLink/internal/gateway"
	"ResQLink/internal/models"
	"ResQLink/internal/store"
	apperrors "ResQLink/pkg/errors"
	"ResQLink/pkg/logger"
	"ResQLink/pkg/metrics"
	"ResQLink/pkg/scheduler"
	"ResQLink/pkg/search"
	"ResQLink/pkg/util"

	"go.uber.org/zap"
)

// Tab 界面标签页
type Tab string

const (
	TabHome     Tab = "home"
	TabAlerts   Tab = "alerts"
	TabMessages Tab = "messages"
	TabMap      Tab = "map"
	TabNetwork  Tab = "network"
)

func ParseTab(v string) (Tab, bool) {
	switch t := Tab(v); t {
	case TabHome, TabAlerts, TabMessages, TabMap, TabNetwork:
		return t, true
	}
	return "", false
}

const (
	minPeers = 2
	maxPeers = 9
)

// Options 控制器依赖
type Options struct {
	Store     store.RecordStore
	Bluetooth *gateway.BluetoothGateway
	Location  *gateway.LocationGateway
	Search    search.Engine
	Signals   *util.Signals
	Metrics   *metrics.Metrics

	PeerRefresh time.Duration
	Now         func() time.Time
	Rand        *rand.Rand
}

// Snapshot 当前界面状态
type Snapshot struct {
	Tab           Tab                    `json:"tab"`
	Online        bool                   `json:"online"`
	MeshConnected bool                   `json:"meshConnected"`
	Peers         int                    `json:"peers"`
	ActiveAlerts  int                    `json:"activeAlerts"`
	StoreReady    bool                   `json:"storeReady"`
	Bluetooth     gateway.BluetoothState `json:"bluetooth"`
	Location      gateway.LocationState  `json:"location"`
}

type Controller struct {
	store     store.RecordStore
	bluetooth *gateway.BluetoothGateway
	location  *gateway.LocationGateway
	search    search.Engine
	signals   *util.Signals
	metrics   *metrics.Metrics
	now       func() time.Time
	refresh   time.Duration

	mu     sync.RWMutex
	tab    Tab
	online bool
	mesh   bool
	peers  int
	rnd    *rand.Rand

	sched *scheduler.Scheduler
}

func New(opts Options) *Controller {
	if opts.Signals == nil {
		opts.Signals = util.Sig()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.PeerRefresh <= 0 {
		opts.PeerRefresh = 5 * time.Second
	}
	c := &Controller{
		store:     opts.Store,
		bluetooth: opts.Bluetooth,
		location:  opts.Location,
		search:    opts.Search,
		signals:   opts.Signals,
		metrics:   opts.Metrics,
		now:       opts.Now,
		refresh:   opts.PeerRefresh,
		tab:       TabHome,
		online:    true,
		mesh:      true,
		rnd:       opts.Rand,
	}
	c.peers = c.nextPeers()
	c.metrics.SetMeshPeers(c.peers)
	return c
}

// Start 启动节点数刷新
func (c *Controller) Start() {
	c.mu.Lock()
	if c.sched != nil {
		c.mu.Unlock()
		return
	}
	c.sched = scheduler.New()
	sched := c.sched
	c.mu.Unlock()

	sched.Every(c.refresh, false, scheduler.FuncJob(func(ctx context.Context) { c.RefreshPeers() }))
}

// Stop 停止后台任务并结束定位订阅
func (c *Controller) Stop() {
	c.mu.Lock()
	sched := c.sched
	c.sched = nil
	c.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	if c.location != nil {
		c.location.Close()
	}
}

func (c *Controller) nextPeers() int {
	return minPeers + c.rnd.Intn(maxPeers-minPeers+1)
}

// RefreshPeers 模拟 mesh 中可见节点数的变化
func (c *Controller) RefreshPeers() int {
	c.mu.Lock()
	c.peers = c.nextPeers()
	n := c.peers
	c.mu.Unlock()

	c.metrics.SetMeshPeers(n)
	c.signals.Emit(models.SigMeshPeersChanged, c, n)
	return n
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	s := Snapshot{
		Tab:           c.tab,
		Online:        c.online,
		MeshConnected: c.mesh,
		Peers:         c.peers,
	}
	c.mu.RUnlock()

	s.ActiveAlerts = c.ActiveAlertCount()
	if c.store != nil {
		s.StoreReady = c.store.Ready()
	}
	if c.bluetooth != nil {
		s.Bluetooth = c.bluetooth.State()
	}
	if c.location != nil {
		s.Location = c.location.State()
	}
	return s
}

func (c *Controller) SetTab(v string) (Tab, error) {
	tab, ok := ParseTab(v)
	if !ok {
		return "", apperrors.WithCodef(apperrors.CodeInvalidArgument, "unknown tab %q", v)
	}
	c.mu.Lock()
	c.tab = tab
	c.mu.Unlock()
	return tab, nil
}

func (c *Controller) SetOnline(online bool) {
	c.mu.Lock()
	changed := c.online != online
	c.online = online
	c.mu.Unlock()
	if changed {
		logger.Info("connectivity changed", zap.Bool("online", online))
	}
}

func (c *Controller) Alerts() []models.Alert {
	return models.MockAlerts(c.now())
}

// ActiveAlertCount 待处理的求助数量
func (c *Controller) ActiveAlertCount() int {
	n := 0
	for _, a := range c.Alerts() {
		if a.Status == models.AlertPending {
			n++
		}
	}
	return n
}

// NearbyDevices 蓝牙开启时返回附近设备
func (c *Controller) NearbyDevices() []models.NearbyDevice {
	if c.bluetooth == nil || !c.bluetooth.Enabled() {
		return []models.NearbyDevice{}
	}
	return models.MockNearbyDevices()
}

func (c *Controller) EnableBluetooth(ctx context.Context) (gateway.BluetoothState, error) {
	if c.bluetooth == nil {
		return gateway.BluetoothState{}, apperrors.WithCode(apperrors.CodeUnsupportedCapability, gateway.ReasonBluetoothAPI.Text)
	}
	return c.bluetooth.Request(ctx)
}

func (c *Controller) DisconnectBluetooth() gateway.BluetoothState {
	if c.bluetooth == nil {
		return gateway.BluetoothState{}
	}
	return c.bluetooth.Disconnect()
}

func (c *Controller) EnableLocation(ctx context.Context) (gateway.LocationState, error) {
	if c.location == nil {
		return gateway.LocationState{}, apperrors.WithCode(apperrors.CodeUnsupportedCapability, gateway.ReasonLocationUnsupported.Text)
	}
	return c.location.Request(ctx)
}

func (c *Controller) StartLiveLocation() (gateway.LocationState, error) {
	if c.location == nil {
		return gateway.LocationState{}, apperrors.WithCode(apperrors.CodeUnsupportedCapability, gateway.ReasonLocationUnsupported.Text)
	}
	return c.location.StartWatching()
}

func (c *Controller) StopLiveLocation() gateway.LocationState {
	if c.location == nil {
		return gateway.LocationState{}
	}
	return c.location.StopWatching()
}
