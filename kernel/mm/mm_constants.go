package mm

const (
	// PageShift is equal to log2(PageSize). It converts between physical
	// addresses and frame numbers.
	PageShift = uintptr(12)

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)
)
