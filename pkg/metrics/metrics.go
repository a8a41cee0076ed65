package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标管理器，所有方法对 nil 接收者安全
type Metrics struct {
	registry *prometheus.Registry

	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 数据库指标
	dbQueryDuration *prometheus.HistogramVec

	// 缓存指标
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec

	// 业务指标
	sosRecordsTotal      *prometheus.CounterVec
	statusUpdatesTotal   *prometheus.CounterVec
	gatewayRequestsTotal *prometheus.CounterVec
	backupsTotal         *prometheus.CounterVec
	meshPeers            prometheus.Gauge
	sseClients           prometheus.Gauge
	wsClients            prometheus.Gauge

	peers       atomic.Int64
	requests    atomic.Int64
	recordsSent atomic.Int64
}

// NewMetrics 创建指标管理器，使用独立 registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		httpResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path", "status"},
		),

		dbQueryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table", "sql_type"},
		),

		cacheHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type", "operation"},
		),
		cacheMissesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type", "operation"},
		),

		sosRecordsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sos_records_total",
				Help: "Total number of stored SOS records",
			},
			[]string{"severity", "kind"},
		),
		statusUpdatesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sos_status_updates_total",
				Help: "Total number of SOS status updates",
			},
			[]string{"status", "result"},
		),
		gatewayRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Total number of permission gateway requests",
			},
			[]string{"gateway", "outcome"},
		),
		backupsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backups_total",
				Help: "Total number of database backups",
			},
			[]string{"result"},
		),
		meshPeers: f.NewGauge(prometheus.GaugeOpts{
			Name: "mesh_peers",
			Help: "Simulated number of mesh peers in range",
		}),
		sseClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "sse_clients",
			Help: "Connected event stream clients",
		}),
		wsClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Connected websocket event clients",
		}),
	}
}

// Registry 返回底层 registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler 暴露 prometheus 文本格式
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest 记录HTTP请求指标
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, responseSize int64) {
	if m == nil {
		return
	}
	m.requests.Add(1)
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.httpResponseSize.WithLabelValues(method, path, status).Observe(float64(responseSize))
}

// RecordDBQuery 记录数据库查询指标
func (m *Metrics) RecordDBQuery(operation, table, sqlType string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(operation, table, sqlType).Observe(duration.Seconds())
}

// RecordCacheHit 记录缓存命中
func (m *Metrics) RecordCacheHit(cacheType, operation string) {
	if m == nil {
		return
	}
	m.cacheHitsTotal.WithLabelValues(cacheType, operation).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (m *Metrics) RecordCacheMiss(cacheType, operation string) {
	if m == nil {
		return
	}
	m.cacheMissesTotal.WithLabelValues(cacheType, operation).Inc()
}

// RecordSOS 记录新写入的求救或消息，kind 为 sos / message
func (m *Metrics) RecordSOS(severity, kind string) {
	if m == nil {
		return
	}
	m.recordsSent.Add(1)
	m.sosRecordsTotal.WithLabelValues(severity, kind).Inc()
}

func (m *Metrics) RecordStatusUpdate(status, result string) {
	if m == nil {
		return
	}
	m.statusUpdatesTotal.WithLabelValues(status, result).Inc()
}

// RecordGateway 记录权限请求结果
func (m *Metrics) RecordGateway(gateway, outcome string) {
	if m == nil {
		return
	}
	m.gatewayRequestsTotal.WithLabelValues(gateway, outcome).Inc()
}

func (m *Metrics) RecordBackup(result string) {
	if m == nil {
		return
	}
	m.backupsTotal.WithLabelValues(result).Inc()
}

// SetMeshPeers 更新模拟节点数量
func (m *Metrics) SetMeshPeers(n int) {
	if m == nil {
		return
	}
	m.peers.Store(int64(n))
	m.meshPeers.Set(float64(n))
}

func (m *Metrics) SetSSEClients(n int) {
	if m == nil {
		return
	}
	m.sseClients.Set(float64(n))
}

func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}

// Snapshot 概览用的计数快照
type Snapshot struct {
	Requests  int64 `json:"requests"`
	Records   int64 `json:"records"`
	MeshPeers int64 `json:"mesh_peers"`
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Requests:  m.requests.Load(),
		Records:   m.recordsSent.Load(),
		MeshPeers: m.peers.Load(),
	}
}
