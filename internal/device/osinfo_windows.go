//go:build windows

package device

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// osInfo returns "Windows" and the real version from RtlGetVersion, which
// unlike GetVersionEx is not subject to manifest compatibility shims.
func osInfo() (name, version string) {
	v := windows.RtlGetVersion()
	if v == nil {
		return "Windows", ""
	}
	return "Windows", fmt.Sprintf("%d.%d.%d", v.MajorVersion, v.MinorVersion, v.BuildNumber)
}
