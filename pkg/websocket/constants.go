package websocket

// WebSocket消息类型常量
const (
	// 系统消息类型
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeJoinGroup   = "join_group"
	MessageTypeLeaveGroup  = "leave_group"
	MessageTypeGroupJoined = "group_joined"
	MessageTypeGroupLeft   = "group_left"
	MessageTypeError       = "error"

	// 默认配置值
	DefaultMaxConnections    = 1000
	DefaultHeartbeatInterval = 30
	DefaultConnectionTimeout = 60
	DefaultMessageBufferSize = 64
	DefaultMaxMessageSize    = 512

	// 环境变量配置键
	EnvWebSocketMaxConnections    = "WEBSOCKET_MAX_CONNECTIONS"
	EnvWebSocketHeartbeatInterval = "WEBSOCKET_HEARTBEAT_INTERVAL"
	EnvWebSocketConnectionTimeout = "WEBSOCKET_CONNECTION_TIMEOUT"
	EnvWebSocketMessageBufferSize = "WEBSOCKET_MESSAGE_BUFFER_SIZE"
	EnvWebSocketEnableCompression = "WEBSOCKET_ENABLE_COMPRESSION"
	EnvWebSocketMaxMessageSize    = "WEBSOCKET_MAX_MESSAGE_SIZE"
)
