package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLocation(t *testing.T) {
	defer SetLocation("Asia/Shanghai")

	require.NoError(t, SetLocation("UTC"))
	assert.Equal(t, "2024-01-01 00:00:00", FormatMillis(1704067200000))

	require.NoError(t, SetLocation("Asia/Shanghai"))
	assert.Equal(t, "2024-01-01 08:00:00", FormatMillis(1704067200000))

	// 无效时区保留原设置
	assert.Error(t, SetLocation("Mars/Olympus"))
	assert.Equal(t, "2024-01-01 08:00:00", FormatMillis(1704067200000))
}

func TestFormatTime_Zero(t *testing.T) {
	assert.Equal(t, "-", FormatTime(time.Time{}))
	assert.True(t, ToConfiguredTimezone(time.Time{}).IsZero())
}
