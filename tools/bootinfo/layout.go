package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Newlifer/metta/kernel/bootinfo"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// layout describes the contents of a bootinfo page. Records are appended in
// the order: command line, memory regions, modules, mappings.
type layout struct {
	CmdLine  string         `toml:"cmdline" yaml:"cmdline"`
	Memory   []memoryRegion `toml:"memory" yaml:"memory"`
	Modules  []module       `toml:"modules" yaml:"modules"`
	Mappings []mapping      `toml:"mappings" yaml:"mappings"`
}

type memoryRegion struct {
	Start uint64 `toml:"start" yaml:"start"`
	Size  uint64 `toml:"size" yaml:"size"`
	Type  string `toml:"type" yaml:"type"`
}

type module struct {
	Name  string `toml:"name" yaml:"name"`
	Start uint64 `toml:"start" yaml:"start"`
	End   uint64 `toml:"end" yaml:"end"`
}

type mapping struct {
	Virt uint64 `toml:"virt" yaml:"virt"`
	Phys uint64 `toml:"phys" yaml:"phys"`
	Size uint64 `toml:"size" yaml:"size"`
}

var memoryTypes = map[string]bootinfo.MemoryType{
	"free":      bootinfo.MemFree,
	"available": bootinfo.MemFree,
	"reserved":  bootinfo.MemReserved,
	"acpi":      bootinfo.MemACPIReclaimable,
	"nvs":       bootinfo.MemNVS,
	"used":      bootinfo.MemUsed,
}

// loadLayout reads a layout file. The format is selected by the file
// extension: .toml, .yaml or .yml.
func loadLayout(path string) (*layout, error) {
	var l layout

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.DecodeFile(path, &l)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) != 0 {
			return nil, fmt.Errorf("decoding %s: unknown keys %v", path, undecoded)
		}
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&l); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported layout format %q", ext)
	}

	logrus.WithFields(logrus.Fields{
		"path":     path,
		"regions":  len(l.Memory),
		"modules":  len(l.Modules),
		"mappings": len(l.Mappings),
	}).Debug("loaded layout")

	return &l, nil
}

// apply appends the records described by l to page.
func (l *layout) apply(page *bootinfo.Page) error {
	if l.CmdLine != "" {
		if err := page.AppendCmdLine(l.CmdLine); err != nil {
			return fmt.Errorf("command line: %w", err)
		}
	}

	for i, region := range l.Memory {
		memType, ok := memoryTypes[strings.ToLower(region.Type)]
		if !ok {
			return fmt.Errorf("memory region %d: unknown type %q", i, region.Type)
		}

		if err := page.AppendMmap(bootinfo.MemoryMapEntry{Start: region.Start, Size: region.Size, Type: memType}); err != nil {
			return fmt.Errorf("memory region %d: %w", i, err)
		}
	}

	for i, mod := range l.Modules {
		if err := page.AppendModule(mod.Name, bootinfo.ModuleInfo{Start: mod.Start, End: mod.End}); err != nil {
			return fmt.Errorf("module %d (%s): %w", i, mod.Name, err)
		}
	}

	for i, m := range l.Mappings {
		if err := page.AppendVmap(m.Virt, m.Phys, m.Size); err != nil {
			return fmt.Errorf("mapping %d: %w", i, err)
		}
	}

	return nil
}

// buildPage returns a bootinfo page image holding the records described
// by l.
func buildPage(l *layout) ([]byte, error) {
	buf := make([]byte, bootinfo.PageSize)

	var page bootinfo.Page
	if err := page.Init(buf, true); err != nil {
		return nil, err
	}

	if err := l.apply(&page); err != nil {
		return nil, err
	}

	logrus.WithField("size", page.Size()).Debug("built bootinfo page")
	return buf, nil
}
