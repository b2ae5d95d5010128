package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel 日志级别
type LogLevel int

const (
	DEBUG LogLevel = iota // 调试信息（最详细）
	INFO                  // 一般信息（正常运行信息）
	WARN                  // 警告信息（需要注意但不影响运行）
	ERROR                 // 错误信息（需要关注的问题）
	FATAL                 // 致命错误（程序无法继续）
)

var (
	globalLevel LogLevel = INFO
	atomicLevel          = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	mu          sync.RWMutex

	base    *zap.Logger
	console zapcore.WriteSyncer = zapcore.Lock(os.Stderr)

	logDir = "logs" // 日志文件夹

	// 应用日志文件（DEBUG 级别时启用）
	appFile *dailyFile
	// Web 日志文件
	webFile = &dailyFile{prefix: "web-gin"}

	// 时区相关
	globalLocation *time.Location = time.Local
	locationMu     sync.RWMutex
)

func init() {
	rebuild()
}

// String 返回日志级别的字符串表示
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLogLevel 解析日志级别字符串
func ParseLogLevel(level string) LogLevel {
	level = strings.ToUpper(strings.TrimSpace(level))
	switch level {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO // 默认INFO级别
	}
}

// SetLevel 设置全局日志级别，DEBUG 级别同时写入按日期命名的日志文件
func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	globalLevel = level
	atomicLevel.SetLevel(level.zapLevel())

	if level == DEBUG {
		if appFile == nil {
			appFile = &dailyFile{prefix: "app-smabot"}
		}
	} else if appFile != nil {
		appFile.close()
		appFile = nil
	}
	rebuildLocked()
}

// GetLevel 获取全局日志级别
func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return globalLevel
}

// SetLocation 设置全局日志时区
func SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	locationMu.Lock()
	globalLocation = loc
	locationMu.Unlock()
}

func location() *time.Location {
	locationMu.RLock()
	defer locationMu.RUnlock()
	return globalLocation
}

// SetOutput 替换控制台输出（测试用）
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	console = zapcore.Lock(zapcore.AddSync(w))
	rebuildLocked()
}

// SetLogDir 设置日志文件夹
func SetLogDir(dir string) {
	mu.Lock()
	defer mu.Unlock()
	logDir = dir
}

func rebuild() {
	mu.Lock()
	defer mu.Unlock()
	rebuildLocked()
}

func rebuildLocked() {
	encCfg := zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		NameKey:          "logger",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      bracketLevelEncoder,
		EncodeTime:       localTimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " ",
	}
	enc := zapcore.NewConsoleEncoder(encCfg)

	cores := []zapcore.Core{zapcore.NewCore(enc, console, atomicLevel)}
	if appFile != nil {
		cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.Lock(appFile), atomicLevel))
	}
	base = zap.New(zapcore.NewTee(cores...))
}

func bracketLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + l.CapitalString() + "]")
}

func localTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.In(location()).Format("2006/01/02 15:04:05"))
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Named 返回带名称的结构化日志器
func Named(name string) *zap.SugaredLogger {
	return current().Named(name).Sugar()
}

// dailyFile 按日期轮转的日志文件
type dailyFile struct {
	mu     sync.Mutex
	prefix string
	file   *os.File
	date   string
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.rotate(); err != nil {
		return 0, err
	}
	return d.file.Write(p)
}

func (d *dailyFile) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	return d.file.Sync()
}

// rotate 日期变化时重新打开文件，调用前必须持有 d.mu
func (d *dailyFile) rotate() error {
	today := time.Now().In(location()).Format("2006-01-02")
	if d.file != nil && d.date == today {
		return nil
	}
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}

	mu.RLock()
	dir := logDir
	mu.RUnlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建日志文件夹失败: %w", err)
	}
	name := filepath.Join(dir, fmt.Sprintf("%s-%s.log", d.prefix, today))
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("打开日志文件失败: %w", err)
	}
	d.file = file
	d.date = today
	return nil
}

func (d *dailyFile) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file != nil {
		d.file.Close()
		d.file = nil
		d.date = ""
	}
}

// WriteWebLog 写入 Web 日志（供 Gin 中间件使用）
func WriteWebLog(message string) {
	line := fmt.Sprintf("%s %s\n", time.Now().In(location()).Format("2006/01/02 15:04:05"), message)
	if _, err := webFile.Write([]byte(line)); err != nil {
		Warn("⚠️ 写入 Web 日志失败: %v", err)
	}
}

// Close 关闭文件日志（程序退出时调用）
func Close() {
	mu.Lock()
	if base != nil {
		_ = base.Sync()
	}
	if appFile != nil {
		appFile.close()
	}
	mu.Unlock()
	webFile.close()
}

// logf 内部日志输出函数
func logf(level LogLevel, format string, args ...interface{}) {
	zl := level.zapLevel()
	if !atomicLevel.Enabled(zl) {
		return
	}
	if ce := current().Check(zl, fmt.Sprintf(format, args...)); ce != nil {
		ce.Write()
	}
}

// Debug 输出调试日志
func Debug(format string, args ...interface{}) {
	logf(DEBUG, format, args...)
}

// Info 输出一般信息日志
func Info(format string, args ...interface{}) {
	logf(INFO, format, args...)
}

// Warn 输出警告日志
func Warn(format string, args ...interface{}) {
	logf(WARN, format, args...)
}

// Error 输出错误日志
func Error(format string, args ...interface{}) {
	logf(ERROR, format, args...)
}

// Fatal 输出致命错误日志并退出程序
func Fatal(format string, args ...interface{}) {
	logf(FATAL, format, args...)
	os.Exit(1)
}

// Fatalf 输出致命错误日志并退出程序（兼容标准库）
func Fatalf(format string, args ...interface{}) {
	Fatal(format, args...)
}
