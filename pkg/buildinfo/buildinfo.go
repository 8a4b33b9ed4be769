package buildinfo

import "runtime/debug"

// BinaryVersion is set at build time via -ldflags. Defaults to "dev".
var BinaryVersion = "dev"

// ModuleVersion returns the module version embedded by the Go toolchain (when available).
func ModuleVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return ""
}

// UserAgent identifies offlinegen on outgoing HTTP requests.
func UserAgent() string {
	v := BinaryVersion
	if v == "dev" {
		if mv := ModuleVersion(); mv != "" {
			v = mv
		}
	}
	return "offlinegen/" + v
}
