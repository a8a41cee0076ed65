package listeners

import (
	"context"
	"time"

	"ResQLink/internal/controller"
	"ResQLink/internal/gateway"
	"ResQLink/internal/models"
	"ResQLink/pkg/logger"
	"ResQLink/pkg/search"
	"ResQLink/pkg/util"

	"go.uber.org/zap"
)

// Publisher 事件推送通道，sse.Hub 与 websocket.Hub 都实现它
type Publisher interface {
	Publish(name string, v interface{})
}

type fanout []Publisher

func (f fanout) Publish(name string, v interface{}) {
	for _, p := range f {
		p.Publish(name, v)
	}
}

// 推送事件名
const (
	EventRecordCreated    = "record.created"
	EventRecordStatus     = "record.status"
	EventGatewayBluetooth = "gateway.bluetooth"
	EventGatewayLocation  = "gateway.location"
	EventNetworkPeers     = "network.peers"
)

const indexTimeout = 2 * time.Second

// InitRecordListeners 把进程内信号转发到推送通道与搜索索引，engine 可为 nil
func InitRecordListeners(sig *util.Signals, engine search.Engine, pubs ...Publisher) {
	if sig == nil {
		sig = util.Sig()
	}
	var hub fanout
	for _, p := range pubs {
		if p != nil {
			hub = append(hub, p)
		}
	}

	sig.Connect(models.SigSOSCreated, func(sender any, params ...any) {
		ev, ok := first[controller.RecordCreated](params)
		if !ok {
			return
		}
		hub.Publish(EventRecordCreated, ev)
		if engine != nil {
			ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
			defer cancel()
			if err := engine.Index(ctx, controller.RecordDoc(ev.Record, ev.Kind)); err != nil {
				logger.Warn("index record failed", zap.Uint64("id", ev.Record.ID), zap.Error(err))
			}
		}
	})

	if len(hub) == 0 {
		return
	}

	sig.Connect(models.SigSOSStatusChanged, func(sender any, params ...any) {
		if ev, ok := first[models.StatusChange](params); ok {
			hub.Publish(EventRecordStatus, ev)
		}
	})
	sig.Connect(models.SigBluetoothChanged, func(sender any, params ...any) {
		if st, ok := first[gateway.BluetoothState](params); ok {
			hub.Publish(EventGatewayBluetooth, st)
		}
	})
	sig.Connect(models.SigLocationChanged, func(sender any, params ...any) {
		if st, ok := first[gateway.LocationState](params); ok {
			hub.Publish(EventGatewayLocation, st)
		}
	})
	sig.Connect(models.SigMeshPeersChanged, func(sender any, params ...any) {
		if n, ok := first[int](params); ok {
			hub.Publish(EventNetworkPeers, map[string]int{"peers": n})
		}
	})
}

func first[T any](params []any) (T, bool) {
	var zero T
	if len(params) == 0 {
		return zero, false
	}
	v, ok := params[0].(T)
	return v, ok
}
