package cpu

// SwitchPDT is a no-op on amd64. Loading a 32-bit page directory into CR3
// while in long mode would fault.
func SwitchPDT(_ uintptr) {}

// EnablePaging is a no-op on amd64 where CR0.PG is always set.
func EnablePaging() {}
