package web

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"smabot/metrics"
)

// SystemMetricsResponse 系统监控数据响应
type SystemMetricsResponse struct {
	*metrics.SystemMetrics
	HeapAllocMB   float64 `json:"heap_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
	WSClients     int     `json:"ws_clients"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

var startedAt = time.Now()

// getSystemMetrics 获取当前系统状态
func (s *Server) getSystemMetrics(c *gin.Context) {
	m, err := metrics.CollectSystemMetrics()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "采集系统指标失败: %v", err)
		return
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	resp := SystemMetricsResponse{
		SystemMetrics: m,
		HeapAllocMB:   float64(ms.HeapAlloc) / 1024 / 1024,
		NumGC:         ms.NumGC,
		UptimeSeconds: int64(time.Since(startedAt).Seconds()),
	}
	if s.deps.Hub != nil {
		resp.WSClients = s.deps.Hub.ClientCount()
	}

	c.JSON(http.StatusOK, resp)
}
