//go:build 386 || amd64

// Package cpu exposes the handful of privileged x86 instructions used while
// bootstrapping the kernel. Callers reach them through function variables
// so that tests can substitute them.
//
// The bootstrap page tables use the 32-bit two-level format, so SwitchPDT
// and EnablePaging only touch the CPU on 386. On amd64 the loader has
// already entered long mode with its own 4-level tables and those two
// functions are no-ops; amd64 builds exist so the kernel packages can be
// compiled and tested on the host.
package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()
