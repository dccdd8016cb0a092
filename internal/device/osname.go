package device

import (
	"runtime"
	"strings"
)

// osName capitalizes runtime.GOOS for display ("linux" -> "Linux").
func osName() string {
	if runtime.GOOS == "" {
		return "Unknown"
	}
	return strings.ToUpper(runtime.GOOS[:1]) + runtime.GOOS[1:]
}
