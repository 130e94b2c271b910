package logs

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// 定义日志级别常量（数值越大，级别越高）
const (
	LevelTrace   = iota // 0（最低，最详细）
	LevelDebug          // 1
	LevelVerbose        // 2
	LevelInfo           // 3
	LevelWarning        // 4
	LevelError          // 5（最高，最严重）
)

const logFlags = log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile

// callDepth 跳过 Logger.output 与包级函数两层，让 Lshortfile 指向真正的调用方
const callDepth = 3

var (
	mu       sync.RWMutex
	logLevel = LevelInfo // 全局日志级别
	std      = newLogger(os.Stdout, os.Stderr, "")
)

// Logger 结构体
// 组件可以通过 WithComponent 得到带 [Component] 前缀的实例
type Logger struct {
	component     string
	traceLogger   *log.Logger
	debugLogger   *log.Logger
	verboseLogger *log.Logger
	infoLogger    *log.Logger
	warnLogger    *log.Logger
	errorLogger   *log.Logger
}

func newLogger(out, errOut io.Writer, component string) *Logger {
	return &Logger{
		component:     component,
		traceLogger:   log.New(out, "[TRACE]   ", logFlags),
		debugLogger:   log.New(out, "[DEBUG]   ", logFlags),
		verboseLogger: log.New(out, "[VERBOSE] ", logFlags),
		infoLogger:    log.New(out, "[INFO]    ", logFlags),
		warnLogger:    log.New(out, "[WARN]    ", logFlags),
		errorLogger:   log.New(errOut, "[ERROR]   ", logFlags),
	}
}

// SetLevel 设置全局日志级别
func SetLevel(level int) {
	if level < LevelTrace {
		level = LevelTrace
	}
	if level > LevelError {
		level = LevelError
	}
	mu.Lock()
	logLevel = level
	mu.Unlock()
}

// GetLevel 返回当前全局日志级别
func GetLevel() int {
	mu.RLock()
	defer mu.RUnlock()
	return logLevel
}

// ParseLevel 把配置里的字符串级别转换为常量，未知值回退到 Info
func ParseLevel(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "verbose":
		return LevelVerbose, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %q", s)
}

// SetOutput 重定向全局输出（测试里用来捕获日志）
func SetOutput(out, errOut io.Writer) {
	mu.Lock()
	std = newLogger(out, errOut, "")
	mu.Unlock()
}

// WithComponent 返回带组件前缀的 Logger，共享全局级别与输出
func WithComponent(component string) *Logger {
	mu.RLock()
	base := std
	mu.RUnlock()
	l := *base
	l.component = component
	return &l
}

func enabled(level int) bool {
	mu.RLock()
	defer mu.RUnlock()
	return logLevel <= level
}

func (l *Logger) output(level int, target *log.Logger, format string, v ...interface{}) {
	if !enabled(level) {
		return
	}
	msg := fmt.Sprintf(format, v...)
	if l.component != "" {
		msg = "[" + l.component + "] " + msg
	}
	_ = target.Output(callDepth, msg)
}

func (l *Logger) Trace(format string, v ...interface{}) {
	l.output(LevelTrace, l.traceLogger, format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.output(LevelDebug, l.debugLogger, format, v...)
}

func (l *Logger) Verbose(format string, v ...interface{}) {
	l.output(LevelVerbose, l.verboseLogger, format, v...)
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.output(LevelInfo, l.infoLogger, format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.output(LevelWarning, l.warnLogger, format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.output(LevelError, l.errorLogger, format, v...)
}

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

// 包级别的日志方法
func Trace(format string, v ...interface{}) {
	current().output(LevelTrace, current().traceLogger, format, v...)
}

func Debug(format string, v ...interface{}) {
	current().output(LevelDebug, current().debugLogger, format, v...)
}

func Verbose(format string, v ...interface{}) {
	current().output(LevelVerbose, current().verboseLogger, format, v...)
}

func Info(format string, v ...interface{}) {
	current().output(LevelInfo, current().infoLogger, format, v...)
}

func Warn(format string, v ...interface{}) {
	current().output(LevelWarning, current().warnLogger, format, v...)
}

func Error(format string, v ...interface{}) {
	current().output(LevelError, current().errorLogger, format, v...)
}
