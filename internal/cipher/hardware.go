package cipher

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// HasAESHardwareSupport reports whether the CPU supports AES hardware
// acceleration (AES-NI on amd64/386, the ARMv8 Cryptography Extensions on
// arm64, or the equivalent on s390x). Ported near-verbatim from the
// teacher's internal/crypto/hardware.go — crypto/aes already dispatches to
// hardware acceleration automatically when available, so this is informational
// only; no command in this module reports it.
func HasAESHardwareSupport() bool {
	switch runtime.GOARCH {
	case "amd64", "386":
		return cpu.X86.HasAES
	case "arm64":
		return cpu.ARM64.HasAES
	case "s390x":
		return cpu.S390X.HasAES
	default:
		return false
	}
}

// HardwareInfo summarizes the CPU's cryptographic acceleration support for
// diagnostics output.
func HardwareInfo() map[string]any {
	return map[string]any{
		"aes_hardware_support": HasAESHardwareSupport(),
		"architecture":         runtime.GOARCH,
		"goos":                 runtime.GOOS,
		"go_version":           runtime.Version(),
	}
}
