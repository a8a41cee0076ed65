package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimiterConfig 限流配置
//
// 示例：
// Rate: "100-M"、Identifier: "ip"/"header"/"ip+route"、HeaderName: "X-Device-ID"
// PerRouteRates: {"/api/sos": "30-M"}
// WhitelistCIDRs/BlacklistCIDRs: ["10.0.0.0/8", "127.0.0.1/32"]
// SkipPaths: ["/api/events", "/monitor"] 前缀匹配
type RateLimiterConfig struct {
	Rate           string            `json:"rate"`
	PerRouteRates  map[string]string `json:"per_route_rates"`
	Identifier     string            `json:"identifier"`
	HeaderName     string            `json:"header_name"`
	WhitelistCIDRs []string          `json:"whitelist_cidrs"`
	BlacklistCIDRs []string          `json:"blacklist_cidrs"`
	SkipPaths      []string          `json:"skip_paths"`
	AddHeaders     bool              `json:"add_headers"`
	DenyStatus     int               `json:"deny_status"` // 默认 429
	DenyMessage    string            `json:"deny_message"`
}

// MetricsObserver 指标上报接口
type MetricsObserver interface {
	OnAllow(route string, key string)
	OnDeny(route string, key string)
}

// PrometheusObserver 基于 Prometheus 的实现
type PrometheusObserver struct {
	allow *prometheus.CounterVec
	deny  *prometheus.CounterVec
}

// NewPrometheusObserver 在 reg 上注册限流计数器，reg 为 nil 时用默认 registry
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &PrometheusObserver{
		allow: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_allow_total",
			Help: "Allowed requests by rate limiter",
		}, []string{"route"}),
		deny: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_deny_total",
			Help: "Denied requests by rate limiter",
		}, []string{"route"}),
	}
}

func (p *PrometheusObserver) OnAllow(route, key string) { p.allow.WithLabelValues(route).Inc() }
func (p *PrometheusObserver) OnDeny(route, key string)  { p.deny.WithLabelValues(route).Inc() }

// RateLimiter 按速率缓存 limiter 实例
type RateLimiter struct {
	cfg            *RateLimiterConfig
	store          limiter.Store
	observer       MetricsObserver
	limitersByRate map[string]*limiter.Limiter
	mu             sync.RWMutex
	whiteCIDRs     []*net.IPNet
	blackCIDRs     []*net.IPNet
}

// NewRateLimiter store 为 nil 时使用内存存储
func NewRateLimiter(cfg RateLimiterConfig, store limiter.Store) *RateLimiter {
	if store == nil {
		store = memory.NewStore()
	}
	l := &RateLimiter{
		cfg:            &cfg,
		store:          store,
		limitersByRate: make(map[string]*limiter.Limiter),
	}
	l.compileCIDRs()
	return l
}

// NewRedisStore 多实例部署时共享计数
func NewRedisStore(client *redis.Client, prefix string) (limiter.Store, error) {
	if prefix == "" {
		prefix = "resqlink:limiter"
	}
	return sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix, MaxRetry: 3})
}

// WithObserver 配置指标观察者
func (l *RateLimiter) WithObserver(observer MetricsObserver) *RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observer = observer
	return l
}

// Middleware 返回 Gin 中间件
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := l.getConfig()

		if pathSkipped(*cfg, c.FullPath(), c.Request.URL.Path) {
			c.Next()
			return
		}

		clientIP := clientIPFromRequest(c)
		if ipListed(clientIP, l.whiteCIDRs) {
			c.Next()
			return
		}
		if ipListed(clientIP, l.blackCIDRs) {
			l.report(c, "blacklist", false)
			denyTooMany(c, *cfg)
			return
		}

		key := buildLimitKey(*cfg, c, clientIP)
		lim := l.getLimiter(l.pickRateForRoute(cfg, c))

		lctx, err := lim.Get(c, key)
		if err != nil {
			c.Next()
			return
		}
		if cfg.AddHeaders {
			setStandardHeaders(c, lctx)
		}
		if lctx.Reached {
			setRetryAfter(c, time.Until(time.Unix(lctx.Reset, 0)))
			l.report(c, key, false)
			denyTooMany(c, *cfg)
			return
		}

		l.report(c, key, true)
		c.Next()
	}
}

func (l *RateLimiter) report(c *gin.Context, key string, allowed bool) {
	l.mu.RLock()
	obs := l.observer
	l.mu.RUnlock()
	if obs == nil {
		return
	}
	r := c.FullPath()
	if r == "" {
		r = c.Request.URL.Path
	}
	if allowed {
		obs.OnAllow(r, key)
	} else {
		obs.OnDeny(r, key)
	}
}

func (l *RateLimiter) getLimiter(rateStr string) *limiter.Limiter {
	l.mu.RLock()
	lim, ok := l.limitersByRate[rateStr]
	l.mu.RUnlock()
	if ok {
		return lim
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok = l.limitersByRate[rateStr]; ok {
		return lim
	}
	r, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		r = limiter.Rate{Period: time.Second, Limit: 10}
	}
	lim = limiter.New(l.store, r)
	l.limitersByRate[rateStr] = lim
	return lim
}

func (l *RateLimiter) pickRateForRoute(cfg *RateLimiterConfig, c *gin.Context) string {
	if cfg.PerRouteRates != nil {
		if full := c.FullPath(); full != "" {
			if r, ok := cfg.PerRouteRates[full]; ok && r != "" {
				return r
			}
		}
	}
	if cfg.Rate != "" {
		return cfg.Rate
	}
	return "10-S"
}

func (l *RateLimiter) getConfig() *RateLimiterConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// UpdateConfig 运行时替换配置
func (l *RateLimiter) UpdateConfig(cfg RateLimiterConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = &cfg
	l.compileCIDRs()
}

// Config 当前配置的拷贝
func (l *RateLimiter) Config() RateLimiterConfig {
	return *l.getConfig()
}

func (l *RateLimiter) compileCIDRs() {
	l.whiteCIDRs = compileCIDRs(l.cfg.WhitelistCIDRs)
	l.blackCIDRs = compileCIDRs(l.cfg.BlacklistCIDRs)
}

func compileCIDRs(list []string) []*net.IPNet {
	var out []*net.IPNet
	for _, c := range list {
		if _, ipnet, err := net.ParseCIDR(strings.TrimSpace(c)); err == nil {
			out = append(out, ipnet)
		}
	}
	return out
}

func pathSkipped(cfg RateLimiterConfig, fullPath, rawPath string) bool {
	p := fullPath
	if p == "" {
		p = rawPath
	}
	for _, pref := range cfg.SkipPaths {
		if pref != "" && strings.HasPrefix(p, pref) {
			return true
		}
	}
	return false
}

func clientIPFromRequest(c *gin.Context) string {
	return strings.TrimPrefix(c.ClientIP(), "::ffff:")
}

func ipListed(ip string, nets []*net.IPNet) bool {
	pip := net.ParseIP(ip)
	if pip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(pip) {
			return true
		}
	}
	return false
}

func buildLimitKey(cfg RateLimiterConfig, c *gin.Context, ip string) string {
	switch cfg.Identifier {
	case "header":
		if hv := strings.TrimSpace(c.GetHeader(cfg.HeaderName)); hv != "" {
			return "hdr:" + cfg.HeaderName + ":" + hv
		}
		return "ip:" + ip
	case "ip+route":
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		return "iprt:" + ip + ":" + route
	default:
		return "ip:" + ip
	}
}

func setStandardHeaders(c *gin.Context, ctx limiter.Context) {
	c.Header("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
	resetSec := int(time.Until(time.Unix(ctx.Reset, 0)).Seconds())
	if resetSec < 0 {
		resetSec = 0
	}
	c.Header("X-RateLimit-Reset", strconv.Itoa(resetSec))
}

func setRetryAfter(c *gin.Context, d time.Duration) {
	sec := int(d.Seconds())
	if sec < 0 {
		sec = 0
	}
	c.Header("Retry-After", strconv.Itoa(sec))
}

func denyTooMany(c *gin.Context, cfg RateLimiterConfig) {
	status := cfg.DenyStatus
	if status == 0 {
		status = http.StatusTooManyRequests
	}
	msg := cfg.DenyMessage
	if msg == "" {
		msg = "Too Many Requests"
	}
	c.AbortWithStatusJSON(status, gin.H{"code": -1, "msg": msg})
}
