package web

import (
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smabot/config"
	"smabot/database"
	"smabot/marketdata"
	"smabot/pipeline"
)

// Deps Web 服务依赖
type Deps struct {
	Runner     *pipeline.Runner
	Cache      marketdata.CandleCache   // 为 nil 时缓存接口返回空
	Database   database.Database        // 为 nil 时历史记录接口返回 503
	Reloader   *config.HotReloader      // 当前配置
	Backups    *config.BackupManager    // 保存配置前备份，可为 nil
	Hub        *WebSocketHub            // 可为 nil
	ConfigPath string                   // 为空时策略修改只在内存中生效
	APIKeyHash string                   // bcrypt 哈希，为空时不校验
	Version    string
	LogAll     bool // 记录所有请求，否则只记录 4xx/5xx
}

// Server Web 服务
type Server struct {
	deps   Deps
	engine *gin.Engine
	server *http.Server
}

// NewServer 创建 Web 服务
func NewServer(addr string, deps Deps) *Server {
	if deps.Cache == nil {
		deps.Cache = marketdata.NopCache{}
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(GinLoggerMiddleware(deps.LogAll))
	r.Use(I18nMiddleware())

	s := &Server{deps: deps, engine: r}
	s.setupRoutes()

	s.server = newHTTPServer(addr, r)
	return s
}

// Handler 返回 HTTP 处理器（测试用）
func (s *Server) Handler() http.Handler {
	return s.engine
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	r := s.engine

	// Prometheus metrics 端点（不需要认证，供 Prometheus 抓取）
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// pprof 性能分析端点
	pprofGroup := r.Group("/debug/pprof")
	{
		pprofGroup.GET("/", gin.WrapF(pprof.Index))
		pprofGroup.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pprofGroup.GET("/profile", gin.WrapF(pprof.Profile))
		pprofGroup.GET("/symbol", gin.WrapF(pprof.Symbol))
		pprofGroup.GET("/trace", gin.WrapF(pprof.Trace))
		pprofGroup.GET("/heap", gin.WrapH(pprof.Handler("heap")))
		pprofGroup.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
	}

	api := r.Group("/api")

	// 版本号API（不需要认证）
	api.GET("/version", s.getVersion)

	protected := api.Group("")
	if s.deps.APIKeyHash != "" {
		protected.Use(APIKeyMiddleware(s.deps.APIKeyHash))
	}
	{
		protected.POST("/backtest", s.runBacktest)
		protected.GET("/backtests", s.listBacktests)
		protected.GET("/backtests/:id", s.getBacktest)
		protected.DELETE("/backtests/:id", s.deleteBacktest)

		protected.GET("/cache", s.listCache)
		protected.GET("/cache/stats", s.getCacheStats)
		protected.DELETE("/cache/:key", s.deleteCache)
		protected.DELETE("/cache", s.clearCache)

		protected.GET("/strategy", s.getStrategy)
		protected.PUT("/strategy", s.updateStrategy)
		protected.GET("/strategies", s.listStrategies)

		protected.GET("/events", s.getEvents)
		protected.GET("/system/metrics", s.getSystemMetrics)

		protected.GET("/ws", s.handleWebSocket)
	}

	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "not found: %s", c.Request.URL.Path)
	})
}

// currentConfig 当前配置（热更新后变化）
func (s *Server) currentConfig() *config.Config {
	if s.deps.Reloader != nil {
		if cfg := s.deps.Reloader.GetCurrentConfig(); cfg != nil {
			return cfg
		}
	}
	return config.DefaultConfig()
}

func (s *Server) getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": s.deps.Version})
}

// respondError 返回错误响应
func respondError(c *gin.Context, status int, format string, args ...interface{}) {
	c.JSON(status, gin.H{
		"success": false,
		"message": fmt.Sprintf(format, args...),
	})
}
