// Package output 命令行输出：彩色提示、表格与JSON
package output

import (
	"encoding/json"
	"io"

	"github.com/fatih/color"

	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// PrintJSON 以缩进JSON输出
func PrintJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Success 输出成功消息
func Success(w io.Writer, format string, args ...any) {
	color.New(color.FgGreen, color.Bold).Fprintf(w, "✅ "+format+"\n", args...)
}

// Error 输出错误消息
func Error(w io.Writer, format string, args ...any) {
	color.New(color.FgRed, color.Bold).Fprintf(w, "❌ "+format+"\n", args...)
}

// Info 输出信息
func Info(w io.Writer, format string, args ...any) {
	color.New(color.FgCyan).Fprintf(w, "ℹ️  "+format+"\n", args...)
}

// Warning 输出警告
func Warning(w io.Writer, format string, args ...any) {
	color.New(color.FgYellow).Fprintf(w, "⚠️  "+format+"\n", args...)
}

// FormatStatus 执行状态加图标
func FormatStatus(status storage.ExecutionStatus) string {
	return StatusIcon(string(status)) + " " + string(status)
}

// StatusIcon 执行状态或节点状态对应的图标
func StatusIcon(status string) string {
	switch status {
	case string(storage.ExecutionSuccess), "completed":
		return "✅"
	case string(storage.ExecutionFailed):
		return "❌"
	case string(storage.ExecutionRunning):
		return "🔄"
	case string(storage.ExecutionPending):
		return "⏳"
	case string(storage.ExecutionCancelled), "partial":
		return "🛑"
	default:
		return "❓"
	}
}

// LevelColor 日志级别着色
func LevelColor(level storage.LogLevel) *color.Color {
	switch level {
	case storage.LevelError:
		return color.New(color.FgRed)
	case storage.LevelWarning:
		return color.New(color.FgYellow)
	case storage.LevelDebug:
		return color.New(color.FgHiBlack)
	default:
		return color.New(color.FgWhite)
	}
}
