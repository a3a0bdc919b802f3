package ppm2pwm

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogLevel uint8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	NoticeLevel
	WarningLevel
	ErrorLevel
	CriticalLevel
)

var levelNames = [...]string{"DEBU", "INFO", "NOTI", "WARN", "ERRO", "CRIT"}

var levelColors = [...]*color.Color{
	color.New(color.FgHiBlack),
	color.New(color.Reset),
	color.New(color.FgCyan),
	color.New(color.FgYellow),
	color.New(color.FgRed),
	color.New(color.FgHiRed, color.Bold),
}

// MultiLogger writes every message to the console and, once configured, to a
// log file.
type MultiLogger struct {
	mutex   sync.Mutex
	file    io.Writer
	console io.Writer
	level   LogLevel
}

var Logger = &MultiLogger{
	console: color.Output,
	level:   InfoLevel,
}

func GetLogger() *MultiLogger {
	return Logger
}

func ConfigureLogger(file io.Writer) {
	Logger.mutex.Lock()
	defer Logger.mutex.Unlock()
	Logger.file = file
}

// ConfigureRotatingLogger sends the file side of the logger to a size-rotated
// log. The returned closer should be closed on exit.
func ConfigureRotatingLogger(path string, maxSizeMB int, maxBackups int) io.Closer {
	rotating := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	ConfigureLogger(rotating)
	return rotating
}

func ConfigureConsole(console io.Writer) {
	Logger.mutex.Lock()
	defer Logger.mutex.Unlock()
	Logger.console = console
}

func SetLogLevel(level LogLevel) {
	Logger.mutex.Lock()
	defer Logger.mutex.Unlock()
	Logger.level = level
}

func ParseLogLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "notice":
		return NoticeLevel, nil
	case "warning", "warn":
		return WarningLevel, nil
	case "error":
		return ErrorLevel, nil
	case "critical":
		return CriticalLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", name)
}

func (logger *MultiLogger) write(level LogLevel, msg string) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	if level < logger.level {
		return
	}
	now := time.Now()
	line := fmt.Sprintf("%s %4s %s\n", now.Format("15:04:05.000"), levelNames[level], msg)
	if logger.file != nil {
		logger.file.Write([]byte(line))
	}
	if logger.console != nil {
		levelColors[level].Fprint(logger.console, line)
	}
}

func (logger *MultiLogger) Debug(msg string) {
	logger.write(DebugLevel, msg)
}
func (logger *MultiLogger) Debugf(msg string, args ...interface{}) {
	logger.write(DebugLevel, fmt.Sprintf(msg, args...))
}
func (logger *MultiLogger) Info(msg string) {
	logger.write(InfoLevel, msg)
}
func (logger *MultiLogger) Infof(msg string, args ...interface{}) {
	logger.write(InfoLevel, fmt.Sprintf(msg, args...))
}
func (logger *MultiLogger) Notice(msg string) {
	logger.write(NoticeLevel, msg)
}
func (logger *MultiLogger) Noticef(msg string, args ...interface{}) {
	logger.write(NoticeLevel, fmt.Sprintf(msg, args...))
}
func (logger *MultiLogger) Warning(msg string) {
	logger.write(WarningLevel, msg)
}
func (logger *MultiLogger) Warningf(msg string, args ...interface{}) {
	logger.write(WarningLevel, fmt.Sprintf(msg, args...))
}
func (logger *MultiLogger) Error(msg string) {
	logger.write(ErrorLevel, msg)
}
func (logger *MultiLogger) Errorf(msg string, args ...interface{}) {
	logger.write(ErrorLevel, fmt.Sprintf(msg, args...))
}
func (logger *MultiLogger) Critical(msg string) {
	logger.write(CriticalLevel, msg)
}
func (logger *MultiLogger) Criticalf(msg string, args ...interface{}) {
	logger.write(CriticalLevel, fmt.Sprintf(msg, args...))
}
