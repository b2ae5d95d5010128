package web

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"smabot/config"
	"smabot/indicators"
	"smabot/logger"
	"smabot/strategy"
)

// StrategyPayload 策略配置（JSON 展开）
type StrategyPayload struct {
	Name string `json:"name"`
	strategy.Config
	indicators.Options
}

func toPayload(sc config.StrategyConfig) StrategyPayload {
	return StrategyPayload{Name: sc.Name, Config: sc.Config, Options: sc.Options}
}

// getStrategy 获取当前策略配置
func (s *Server) getStrategy(c *gin.Context) {
	c.JSON(http.StatusOK, toPayload(s.currentConfig().Strategy))
}

// listStrategies 可用策略和均线类型
func (s *Server) listStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"strategies": strategy.Names(),
		"ma_types":   indicators.ListIndicators(),
	})
}

// updateStrategy 更新策略配置，写回配置文件并热更新
func (s *Server) updateStrategy(c *gin.Context) {
	if s.deps.Reloader == nil {
		respondError(c, http.StatusServiceUnavailable, "config reloader not configured")
		return
	}

	current := s.currentConfig()
	payload := toPayload(current.Strategy)
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: %v", err)
		return
	}
	payload.Type = strings.ToLower(payload.Type)

	if _, err := strategy.New(payload.Name, payload.Config); err != nil {
		respondError(c, http.StatusBadRequest, "策略配置无效: %v", err)
		return
	}
	if indicators.GetIndicator(payload.Type, 1) == nil {
		respondError(c, http.StatusBadRequest, "%v: %s", indicators.ErrUnknownType, payload.Type)
		return
	}

	next, err := current.Clone()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "复制配置失败: %v", err)
		return
	}
	next.Strategy = config.StrategyConfig{
		Name:    payload.Name,
		Config:  payload.Config,
		Options: payload.Options,
	}
	if err := next.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, "策略配置无效: %v", err)
		return
	}

	if s.deps.ConfigPath != "" {
		if s.deps.Backups != nil {
			if _, statErr := os.Stat(s.deps.ConfigPath); statErr == nil {
				if _, err := s.deps.Backups.CreateBackup(s.deps.ConfigPath); err != nil {
					logger.Warn("⚠️ 备份配置失败: %v", err)
				}
			}
		}
		if err := config.SaveConfig(next, s.deps.ConfigPath); err != nil {
			respondError(c, http.StatusInternalServerError, "保存配置失败: %v", err)
			return
		}
	}

	diff, err := s.deps.Reloader.UpdateConfig(next)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "更新配置失败: %v", err)
		return
	}

	logger.Info("✅ 策略配置已更新: %d 项变更", len(diff.Changes))
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"strategy": toPayload(s.currentConfig().Strategy),
		"diff":     diff,
	})
}
