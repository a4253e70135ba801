// Package preset loads render presets from a directory of YAML files.
package preset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/bluemap-render/internal/render"
)

// ErrNotFound is returned when no preset file matches the name.
var ErrNotFound = errors.New("preset not found")

var extensions = []string{".yaml", ".yml"}

// Catalog reads presets from dir on every call so edits apply without a restart.
type Catalog struct {
	dir string
}

// NewCatalog returns a Catalog rooted at dir.
func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// List returns the sorted preset names.
func (c *Catalog) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read presets dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !slices.Contains(extensions, ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// Load parses the named preset and applies defaults.
func (c *Catalog) Load(name string) (render.Preset, error) {
	name = strings.TrimLeft(name, "/")
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return render.Preset{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	for _, ext := range extensions {
		data, err := os.ReadFile(filepath.Join(c.dir, name+ext))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return render.Preset{}, fmt.Errorf("read preset %s: %w", name, err)
		}
		return Parse(name, data)
	}
	return render.Preset{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Exists reports whether the named preset can be loaded.
func (c *Catalog) Exists(name string) bool {
	_, err := c.Load(name)
	return err == nil
}

// Parse decodes one preset document.
func Parse(name string, data []byte) (render.Preset, error) {
	var p render.Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return render.Preset{}, fmt.Errorf("decode preset %s: %w", name, err)
	}
	p.Name = name
	p = p.WithDefaults()
	switch p.Format {
	case render.FormatPNG, render.FormatJPEG, render.FormatPDF:
	default:
		return render.Preset{}, fmt.Errorf("preset %s: unsupported format %q", name, p.Format)
	}
	return p, nil
}
