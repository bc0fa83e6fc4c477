package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Newlifer/metta/kernel/bootinfo"
	"github.com/google/go-cmp/cmp"
)

const tomlLayout = `
cmdline = "console=ttyS0 debug"

[[memory]]
start = 0x0
size = 0x9fc00
type = "free"

[[memory]]
start = 0x100000
size = 0x7ee0000
type = "available"

[[memory]]
start = 0x7fe0000
size = 0x20000
type = "ACPI"

[[modules]]
name = "init"
start = 0x200000
end = 0x204000

[[mappings]]
virt = 0x100000
phys = 0x100000
size = 0x10000
`

const yamlLayout = `
cmdline: console=ttyS0 debug
memory:
  - {start: 0x0, size: 0x9fc00, type: free}
  - {start: 0x100000, size: 0x7ee0000, type: available}
  - {start: 0x7fe0000, size: 0x20000, type: ACPI}
modules:
  - {name: init, start: 0x200000, end: 0x204000}
mappings:
  - {virt: 0x100000, phys: 0x100000, size: 0x10000}
`

var expLayout = &layout{
	CmdLine: "console=ttyS0 debug",
	Memory: []memoryRegion{
		{Start: 0, Size: 0x9fc00, Type: "free"},
		{Start: 0x100000, Size: 0x7ee0000, Type: "available"},
		{Start: 0x7fe0000, Size: 0x20000, Type: "ACPI"},
	},
	Modules:  []module{{Name: "init", Start: 0x200000, End: 0x204000}},
	Mappings: []mapping{{Virt: 0x100000, Phys: 0x100000, Size: 0x10000}},
}

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadLayout(t *testing.T) {
	specs := []struct {
		name, contents string
	}{
		{"layout.toml", tomlLayout},
		{"layout.yaml", yamlLayout},
		{"layout.YML", yamlLayout},
	}

	for specIndex, spec := range specs {
		l, err := loadLayout(writeFile(t, spec.name, spec.contents))
		if err != nil {
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
			continue
		}

		if diff := cmp.Diff(expLayout, l); diff != "" {
			t.Errorf("[spec %d] unexpected layout (-want +got):\n%s", specIndex, diff)
		}
	}
}

func TestLoadLayoutErrors(t *testing.T) {
	specs := []struct {
		name, contents string
		expErr         string
	}{
		{"layout.json", "{}", "unsupported layout format"},
		{"layout.toml", "cmdline = 42", "decoding"},
		{"layout.toml", "kernel = \"x\"", "unknown keys"},
		{"layout.yaml", "kernel: x", "decoding"},
	}

	for specIndex, spec := range specs {
		_, err := loadLayout(writeFile(t, spec.name, spec.contents))
		if err == nil || !strings.Contains(err.Error(), spec.expErr) {
			t.Errorf("[spec %d] expected error containing %q; got %v", specIndex, spec.expErr, err)
		}
	}

	if _, err := loadLayout(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected a not-exist error for a missing file; got %v", err)
	}
}

func TestBuildPage(t *testing.T) {
	image, err := buildPage(expLayout)
	if err != nil {
		t.Fatal(err)
	}

	var page bootinfo.Page
	if err := page.Attach(image); err != nil {
		t.Fatalf("expected a valid page image; got %v", err)
	}

	if cmdLine, _ := page.CmdLine(); cmdLine != expLayout.CmdLine {
		t.Errorf("expected command line %q; got %q", expLayout.CmdLine, cmdLine)
	}

	var gotMmap []bootinfo.MemoryMapEntry
	for it := page.MmapBegin(); ; {
		rec, ok := it.Next()
		if !ok {
			break
		}
		gotMmap = append(gotMmap, rec.Entry())
	}
	expMmap := []bootinfo.MemoryMapEntry{
		{Start: 0, Size: 0x9fc00, Type: bootinfo.MemFree},
		{Start: 0x100000, Size: 0x7ee0000, Type: bootinfo.MemFree},
		{Start: 0x7fe0000, Size: 0x20000, Type: bootinfo.MemACPIReclaimable},
	}
	if diff := cmp.Diff(expMmap, gotMmap); diff != "" {
		t.Errorf("unexpected memory map (-want +got):\n%s", diff)
	}

	if mod, ok := page.Module(0); !ok || mod != (bootinfo.Module{Start: 0x200000, End: 0x204000, Name: "init"}) {
		t.Errorf("unexpected module: %+v", mod)
	}

	it := page.VmapBegin()
	if m, ok := it.Next(); !ok || m != (bootinfo.Mapping{VirtStart: 0x100000, PhysStart: 0x100000, Size: 0x10000}) {
		t.Errorf("unexpected mapping: %+v", m)
	}
}

func TestBuildPageErrors(t *testing.T) {
	specs := []struct {
		l      *layout
		expErr error
	}{
		{&layout{Memory: []memoryRegion{{Start: 0, Size: 1, Type: "bogus"}}}, nil},
		{&layout{Modules: []module{{Name: "m", Start: 0x1001, End: 0x2000}}}, bootinfo.ErrModuleUnaligned},
		{&layout{Modules: []module{
			{Name: "a", Start: 0x2000, End: 0x3000},
			{Name: "b", Start: 0x1000, End: 0x2000},
		}}, bootinfo.ErrModuleOverlap},
		{&layout{CmdLine: strings.Repeat("x", bootinfo.PageSize)}, bootinfo.ErrNoSpace},
	}

	for specIndex, spec := range specs {
		_, err := buildPage(spec.l)
		if err == nil {
			t.Errorf("[spec %d] expected an error", specIndex)
			continue
		}

		if spec.expErr != nil && !errors.Is(err, spec.expErr) {
			t.Errorf("[spec %d] expected error wrapping %v; got %v", specIndex, spec.expErr, err)
		}
	}
}
