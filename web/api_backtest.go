package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"smabot/backtest"
	"smabot/database"
	"smabot/indicators"
	"smabot/logger"
	"smabot/market"
	"smabot/marketdata"
	"smabot/pipeline"
	"smabot/strategy"
)

// BacktestRequest 回测请求，未设置的参数使用当前配置
type BacktestRequest struct {
	Symbol    string          `json:"symbol"`
	Interval  string          `json:"interval"`
	StartTime *time.Time      `json:"start_time"`
	EndTime   *time.Time      `json:"end_time"`
	Limit     int             `json:"limit"`
	NoCache   bool            `json:"no_cache"`
	Candles   []market.Candle `json:"candles"` // 直接提供K线，不访问交易所

	Strategy            string   `json:"strategy"`
	EntryThresholdRatio *float64 `json:"entry_threshold_ratio"`
	ExitMarkupRatio     *float64 `json:"exit_markup_ratio"`
	Quantity            *float64 `json:"quantity"`
	Workers             *int     `json:"workers"`
	MAType              string   `json:"ma_type"`
	FastWindow          *int     `json:"fast_window"`
	SlowWindow          *int     `json:"slow_window"`

	IncludeChart  bool `json:"include_chart"`
	IncludeReport bool `json:"include_report"` // 返回 Markdown 报告
}

// BacktestResponse 回测响应
type BacktestResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	RunID   int64               `json:"run_id,omitempty"`
	Result  *backtest.Result    `json:"result,omitempty"`
	Chart   *backtest.ChartData `json:"chart,omitempty"`
	Report  string              `json:"report,omitempty"`
}

// toJob 合并请求参数与当前配置
func (s *Server) toJob(req *BacktestRequest) pipeline.Job {
	cfg := s.currentConfig()

	job := pipeline.Job{
		Symbol:     req.Symbol,
		Interval:   req.Interval,
		Limit:      req.Limit,
		NoCache:    req.NoCache,
		Candles:    req.Candles,
		Strategy:   req.Strategy,
		Config:     cfg.Strategy.Config,
		Indicators: cfg.Strategy.Options,
	}
	if job.Symbol == "" && len(cfg.Market.Symbols) > 0 {
		job.Symbol = cfg.Market.Symbols[0]
	}
	if job.Interval == "" {
		job.Interval = cfg.Market.Interval
	}
	if job.Strategy == "" {
		job.Strategy = cfg.Strategy.Name
	}
	if job.Limit == 0 {
		job.Limit = cfg.Market.Limit
	}
	if req.StartTime != nil {
		job.Start = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		job.End = req.EndTime.UTC()
	}

	if req.EntryThresholdRatio != nil {
		job.Config.EntryThresholdRatio = *req.EntryThresholdRatio
	}
	if req.ExitMarkupRatio != nil {
		job.Config.ExitMarkupRatio = *req.ExitMarkupRatio
	}
	if req.Quantity != nil {
		job.Config.Quantity = *req.Quantity
	}
	if req.Workers != nil {
		job.Config.Workers = *req.Workers
	}
	if req.MAType != "" {
		job.Indicators.Type = strings.ToLower(req.MAType)
	}
	if req.FastWindow != nil {
		job.Indicators.FastWindow = *req.FastWindow
	}
	if req.SlowWindow != nil {
		job.Indicators.SlowWindow = *req.SlowWindow
	}
	return job
}

// validateJob 请求参数校验，错误均为 400
func validateJob(job pipeline.Job) error {
	if err := job.Config.Validate(); err != nil {
		return err
	}
	if len(job.Candles) > 0 {
		if job.Symbol == "" {
			return errors.New("symbol is required")
		}
		return nil
	}
	return marketdata.Request{
		Symbol:   job.Symbol,
		Interval: job.Interval,
		Start:    job.Start,
		End:      job.End,
		Limit:    job.Limit,
	}.Validate()
}

// isClientError 输入数据导致的错误
func isClientError(err error) bool {
	return errors.Is(err, market.ErrEmptySeries) ||
		errors.Is(err, market.ErrInvalidWindow) ||
		errors.Is(err, market.ErrMissingIndicator) ||
		errors.Is(err, strategy.ErrUnknownStrategy) ||
		errors.Is(err, indicators.ErrUnknownType)
}

// runBacktest 运行回测
func (s *Server) runBacktest(c *gin.Context) {
	if s.deps.Runner == nil {
		respondError(c, http.StatusServiceUnavailable, "backtest runner not configured")
		return
	}

	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: %v", err)
		return
	}

	job := s.toJob(&req)
	if err := validateJob(job); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: %v", err)
		return
	}

	logger.Info("📊 开始回测: 策略=%s, 交易对=%s, 周期=%s", job.Strategy, job.Symbol, job.Interval)

	outcome, err := s.deps.Runner.Run(c.Request.Context(), job)
	if err != nil {
		status := http.StatusInternalServerError
		if isClientError(err) {
			status = http.StatusBadRequest
		}
		logger.Error("❌ 回测失败: %v", err)
		respondError(c, status, "回测失败: %v", err)
		return
	}

	resp := BacktestResponse{
		Success: true,
		Message: string(outcome.Result.Report.Status),
		RunID:   outcome.RunID,
		Result:  outcome.Result,
	}
	if req.IncludeChart {
		resp.Chart = backtest.Chart(outcome.Result)
	}
	if req.IncludeReport {
		report, err := backtest.RenderReport(outcome.Result, GetLanguage(c))
		if err != nil {
			logger.Warn("⚠️ 生成报告失败: %v", err)
		} else {
			resp.Report = report
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) requireDatabase(c *gin.Context) (database.Database, bool) {
	if s.deps.Database == nil {
		respondError(c, http.StatusServiceUnavailable, "database not enabled")
		return nil, false
	}
	return s.deps.Database, true
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid id: %s", c.Param("id"))
		return 0, false
	}
	return id, true
}

// listBacktests 回测历史
func (s *Server) listBacktests(c *gin.Context) {
	db, ok := s.requireDatabase(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	runs, err := db.ListRuns(c.Request.Context(), &database.RunFilter{
		Symbol: strings.ToUpper(c.Query("symbol")),
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询回测记录失败: %v", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// getBacktest 回测详情（含信号）
func (s *Server) getBacktest(c *gin.Context) {
	db, ok := s.requireDatabase(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	run, err := db.GetRun(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(c, http.StatusNotFound, "backtest %d not found", id)
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询回测记录失败: %v", err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// deleteBacktest 删除回测记录
func (s *Server) deleteBacktest(c *gin.Context) {
	db, ok := s.requireDatabase(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	err := db.DeleteRun(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(c, http.StatusNotFound, "backtest %d not found", id)
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "删除回测记录失败: %v", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// listCache 获取缓存列表
func (s *Server) listCache(c *gin.Context) {
	list, err := s.deps.Cache.List(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取缓存列表失败: %v", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"caches": list, "count": len(list)})
}

// getCacheStats 获取缓存统计
func (s *Server) getCacheStats(c *gin.Context) {
	stats, err := s.deps.Cache.Stats(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取缓存统计失败: %v", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// deleteCache 删除指定缓存
func (s *Server) deleteCache(c *gin.Context) {
	key := c.Param("key")
	if _, err := marketdata.ParseCacheKey(key); err != nil {
		respondError(c, http.StatusBadRequest, "无效的缓存键: %v", err)
		return
	}
	if err := s.deps.Cache.Delete(c.Request.Context(), key); err != nil {
		respondError(c, http.StatusInternalServerError, "删除缓存失败: %v", err)
		return
	}
	logger.Info("🗑️ 已删除缓存: %s", key)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// clearCache 清空所有缓存
func (s *Server) clearCache(c *gin.Context) {
	if err := s.deps.Cache.Clear(c.Request.Context()); err != nil {
		respondError(c, http.StatusInternalServerError, "清空缓存失败: %v", err)
		return
	}
	logger.Info("🗑️ 已清空所有缓存")
	c.JSON(http.StatusOK, gin.H{"success": true})
}
