package models

// 进程内信号名，通过 util.Signals 分发
const (
	SigSOSCreated       = "sos.created"
	SigSOSStatusChanged = "sos.status_changed"
	SigBluetoothChanged = "gateway.bluetooth_changed"
	SigLocationChanged  = "gateway.location_changed"
	SigMeshPeersChanged = "network.peers_changed"
)

// StatusChange 状态更新信号的参数
type StatusChange struct {
	ID     uint64 `json:"id"`
	Status Status `json:"status"`
}
