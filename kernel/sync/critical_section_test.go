package sync

import (
	"testing"

	"github.com/Newlifer/metta/kernel"
	"github.com/Newlifer/metta/kernel/cpu"
	"github.com/Newlifer/metta/kernel/kfmt"
)

// mockInterrupts installs fake interrupt handlers and returns a pointer to
// the simulated interrupt-enable flag and the number of state changes.
func mockInterrupts(t *testing.T) (*bool, *int) {
	enabled, transitions := true, 0

	disableInterruptsFn = func() {
		if !enabled {
			t.Error("DisableInterrupts called while interrupts were already disabled")
		}
		enabled = false
		transitions++
	}
	enableInterruptsFn = func() {
		if enabled {
			t.Error("EnableInterrupts called while interrupts were already enabled")
		}
		enabled = true
		transitions++
	}

	return &enabled, &transitions
}

func restore() {
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn = cpu.EnableInterrupts
	panicFn = kfmt.Panic
	nesting = 0
}

func TestCriticalSectionNesting(t *testing.T) {
	defer restore()

	for _, depth := range []int{1, 2, 5} {
		nesting = 0
		enabled, transitions := mockInterrupts(t)

		if !*enabled {
			t.Fatalf("[depth %d] expected interrupts to be enabled before the first enter", depth)
		}

		for i := 0; i < depth; i++ {
			EnterCriticalSection()
			if *enabled {
				t.Errorf("[depth %d] expected interrupts to be disabled after enter #%d", depth, i+1)
			}
			if got := CriticalSectionDepth(); got != uint32(i+1) {
				t.Errorf("[depth %d] expected nesting depth %d; got %d", depth, i+1, got)
			}
		}

		for i := depth; i > 0; i-- {
			LeaveCriticalSection()
			if i > 1 && *enabled {
				t.Errorf("[depth %d] expected interrupts to stay disabled with %d sections still active", depth, i-1)
			}
		}

		if !*enabled {
			t.Errorf("[depth %d] expected interrupts to be enabled after the outermost leave", depth)
		}

		if *transitions != 2 {
			t.Errorf("[depth %d] expected exactly one disable and one enable; got %d transitions", depth, *transitions)
		}

		if got := CriticalSectionDepth(); got != 0 {
			t.Errorf("[depth %d] expected nesting depth to return to 0; got %d", depth, got)
		}
	}
}

func TestCriticalSectionUnbalancedLeave(t *testing.T) {
	defer restore()

	enabled, transitions := mockInterrupts(t)

	var panicErr interface{}
	panicFn = func(e interface{}) {
		panicErr = e
	}

	LeaveCriticalSection()

	if err, ok := panicErr.(*kernel.Error); !ok || err != errUnbalancedCriticalSection {
		t.Fatalf("expected unbalanced leave to panic with errUnbalancedCriticalSection; got %v", panicErr)
	}

	if got := CriticalSectionDepth(); got != 0 {
		t.Fatalf("expected nesting depth to remain 0 after an unbalanced leave; got %d", got)
	}

	if !*enabled || *transitions != 0 {
		t.Fatal("expected unbalanced leave not to touch the interrupt state")
	}

	// A balanced pair still works after the failed leave.
	EnterCriticalSection()
	LeaveCriticalSection()
	if !*enabled || *transitions != 2 {
		t.Fatalf("expected a balanced pair to disable and re-enable interrupts; got %d transitions", *transitions)
	}
}
