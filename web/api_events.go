package web

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"smabot/database"
	"smabot/logger"
)

// getEvents 获取事件列表
// @Summary 获取事件列表
// @Description 获取系统事件列表，支持按类型、交易对、时间范围筛选
// @Tags Events
// @Produce json
// @Param type query string false "事件类型"
// @Param symbol query string false "交易对"
// @Param start_time query string false "开始时间 (RFC3339)"
// @Param end_time query string false "结束时间 (RFC3339)"
// @Param limit query int false "限制数量" default(100)
// @Param offset query int false "偏移量" default(0)
// @Router /api/events [get]
func (s *Server) getEvents(c *gin.Context) {
	db, ok := s.requireDatabase(c)
	if !ok {
		return
	}

	filter := &database.EventFilter{
		Type:   c.Query("type"),
		Symbol: strings.ToUpper(c.Query("symbol")),
	}

	if startTimeStr := c.Query("start_time"); startTimeStr != "" {
		t, err := time.Parse(time.RFC3339, startTimeStr)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid start_time: %v", err)
			return
		}
		filter.StartTime = &t
	}
	if endTimeStr := c.Query("end_time"); endTimeStr != "" {
		t, err := time.Parse(time.RFC3339, endTimeStr)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid end_time: %v", err)
			return
		}
		filter.EndTime = &t
	}

	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	events, err := db.GetEvents(ctx, filter)
	if err != nil {
		logger.Error("❌ 查询事件失败: %v", err)
		respondError(c, http.StatusInternalServerError, "查询事件失败: %v", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}
