package kernel

// Error describes a kernel error. Kernel errors are declared as global
// variables holding pointers to an Error value; the early boot code runs
// before any allocator exists so errors.New and fmt.Errorf cannot be used.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
