package utils

import (
	"fmt"
	"strconv"
)

// FormatNumber 将数字缩写为展示字符串（如 1500 -> 1.5K）
func FormatNumber(num int) string {
	switch {
	case num >= 1000000:
		return fmt.Sprintf("%.1fM", float64(num)/1000000)
	case num >= 1000:
		return fmt.Sprintf("%.1fK", float64(num)/1000)
	default:
		return strconv.Itoa(num)
	}
}

// FormatDuration 将秒数格式化为 M:SS（分钟不补零，秒补零）
func FormatDuration(seconds int) string {
	minutes := seconds / 60
	remaining := seconds % 60
	return fmt.Sprintf("%d:%02d", minutes, remaining)
}
