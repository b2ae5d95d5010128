package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"smabot/logger"
)

const (
	// DefaultBackupDir 默认备份目录
	DefaultBackupDir = "./config_backups"
	// DefaultMaxBackups 默认最大备份数量
	DefaultMaxBackups = 20

	backupPrefix     = "config.backup."
	backupSuffix     = ".yaml"
	backupTimeLayout = "20060102150405.000000"
)

// BackupInfo 备份信息
type BackupInfo struct {
	ID        string    `json:"id"` // 文件名
	Timestamp time.Time `json:"timestamp"`
	FilePath  string    `json:"file_path"`
	Size      int64     `json:"size"`
}

// BackupManager 配置备份管理器，保存配置前先备份旧文件
type BackupManager struct {
	backupDir  string
	maxBackups int
}

// NewBackupManager 创建备份管理器
func NewBackupManager(dir string, maxBackups int) *BackupManager {
	if dir == "" {
		dir = DefaultBackupDir
	}
	if maxBackups <= 0 {
		maxBackups = DefaultMaxBackups
	}
	return &BackupManager{backupDir: dir, maxBackups: maxBackups}
}

// CreateBackup 备份配置文件
func (bm *BackupManager) CreateBackup(configPath string) (*BackupInfo, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := os.MkdirAll(bm.backupDir, 0755); err != nil {
		return nil, fmt.Errorf("创建备份目录失败: %w", err)
	}

	now := time.Now()
	name := backupPrefix + now.Format(backupTimeLayout) + backupSuffix
	path := filepath.Join(bm.backupDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("写入备份文件失败: %w", err)
	}

	if err := bm.CleanOldBackups(); err != nil {
		logger.Warn("⚠️ 清理旧备份失败: %v", err)
	}

	return &BackupInfo{ID: name, Timestamp: now, FilePath: path, Size: int64(len(data))}, nil
}

// ListBackups 列出备份（新的在前）
func (bm *BackupManager) ListBackups() ([]*BackupInfo, error) {
	entries, err := os.ReadDir(bm.backupDir)
	if os.IsNotExist(err) {
		return []*BackupInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取备份目录失败: %w", err)
	}

	backups := make([]*BackupInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, err := parseBackupTimestamp(entry.Name())
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, &BackupInfo{
			ID:        entry.Name(),
			Timestamp: ts,
			FilePath:  filepath.Join(bm.backupDir, entry.Name()),
			Size:      info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RestoreBackup 恢复指定备份，备份内容必须是有效配置
func (bm *BackupManager) RestoreBackup(backupID, targetPath string) error {
	if _, err := parseBackupTimestamp(backupID); err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(bm.backupDir, backupID))
	if err != nil {
		return fmt.Errorf("读取备份文件失败: %w", err)
	}
	if _, err := LoadConfigFromBytes(data); err != nil {
		return fmt.Errorf("备份配置无效: %w", err)
	}
	if err := os.WriteFile(targetPath, data, 0644); err != nil {
		return fmt.Errorf("恢复配置文件失败: %w", err)
	}
	return nil
}

// CleanOldBackups 清理超出数量的旧备份
func (bm *BackupManager) CleanOldBackups() error {
	backups, err := bm.ListBackups()
	if err != nil {
		return err
	}
	if len(backups) <= bm.maxBackups {
		return nil
	}
	for _, b := range backups[bm.maxBackups:] {
		if err := os.Remove(b.FilePath); err != nil {
			logger.Warn("⚠️ 删除旧备份失败 %s: %v", b.ID, err)
		}
	}
	return nil
}

// parseBackupTimestamp 解析备份文件名中的时间戳
func parseBackupTimestamp(name string) (time.Time, error) {
	if !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
		return time.Time{}, fmt.Errorf("备份文件名格式无效: %s", name)
	}
	ts := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix)
	return time.ParseInLocation(backupTimeLayout, ts, time.Local)
}
