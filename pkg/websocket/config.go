package websocket

import (
	"time"

	"ResQLink/pkg/util"
)

// Config WebSocket配置
type Config struct {
	// 最大连接数
	MaxConnections int64
	// 心跳间隔
	HeartbeatInterval time.Duration
	// 连接超时时间
	ConnectionTimeout time.Duration
	// 每个连接的发送缓冲
	MessageBufferSize int
	ReadBufferSize    int
	WriteBufferSize   int
	// 客户端上行消息的最大字节数
	MaxMessageSize    int
	EnableCompression bool
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:    DefaultMaxConnections,
		HeartbeatInterval: DefaultHeartbeatInterval * time.Second,
		ConnectionTimeout: DefaultConnectionTimeout * time.Second,
		MessageBufferSize: DefaultMessageBufferSize,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		MaxMessageSize:    DefaultMaxMessageSize,
		EnableCompression: false,
	}
}

// LoadConfigFromEnv 从环境变量加载WebSocket配置
func LoadConfigFromEnv() *Config {
	config := DefaultConfig()

	if maxConnections := util.GetIntEnv(EnvWebSocketMaxConnections); maxConnections > 0 {
		config.MaxConnections = maxConnections
	}
	if heartbeatInterval := util.GetIntEnv(EnvWebSocketHeartbeatInterval); heartbeatInterval > 0 {
		config.HeartbeatInterval = time.Duration(heartbeatInterval) * time.Second
	}
	if connectionTimeout := util.GetIntEnv(EnvWebSocketConnectionTimeout); connectionTimeout > 0 {
		config.ConnectionTimeout = time.Duration(connectionTimeout) * time.Second
	}
	if messageBufferSize := util.GetIntEnv(EnvWebSocketMessageBufferSize); messageBufferSize > 0 {
		config.MessageBufferSize = int(messageBufferSize)
	}
	if maxMsg := util.GetIntEnv(EnvWebSocketMaxMessageSize); maxMsg > 0 {
		config.MaxMessageSize = int(maxMsg)
	}
	config.EnableCompression = util.GetBoolEnv(EnvWebSocketEnableCompression)

	return config
}
