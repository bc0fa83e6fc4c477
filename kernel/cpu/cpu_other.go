//go:build !386 && !amd64

package cpu

// The bootstrap code only targets x86. These no-op versions keep the
// packages that depend on cpu buildable (and testable) on other hosts.

// EnableInterrupts enables interrupt handling.
func EnableInterrupts() {}

// DisableInterrupts disables interrupt handling.
func DisableInterrupts() {}

// Halt stops instruction execution.
func Halt() {}

// SwitchPDT loads the physical address of a page directory.
func SwitchPDT(_ uintptr) {}

// EnablePaging turns on paged addressing.
func EnablePaging() {}
