package cpu

// SwitchPDT loads the physical address of a page directory into CR3 and
// implicitly flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// EnablePaging sets the PG bit in CR0. After this call every memory access
// is translated through the page directory loaded by SwitchPDT.
func EnablePaging()
