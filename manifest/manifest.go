// Package manifest handles vainilla.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "vainilla.toml"

// Defaults applied to fields the manifest leaves empty.
const (
	DefaultPrompt    = "? "
	DefaultStorePath = ".vainilla/images.db"
	DefaultAddr      = ":4567"
)

// Manifest represents a vainilla.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project"`
	Source  Source       `toml:"source"`
	Image   ImageConfig  `toml:"image"`
	Run     RunConfig    `toml:"run"`
	Store   StoreConfig  `toml:"store"`
	Server  ServerConfig `toml:"server"`

	// Dir is the directory containing the vainilla.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source names the program assembled by build and run.
type Source struct {
	Entry string `toml:"entry"`
}

// ImageConfig configures image output.
type ImageConfig struct {
	Output        string `toml:"output"`
	IncludeSource bool   `toml:"include-source"`
}

// RunConfig configures program execution.
type RunConfig struct {
	Prompt *string `toml:"prompt"` // nil means DefaultPrompt; "" disables the prompt
	Trace  bool    `toml:"trace"`
}

// StoreConfig locates the image store.
type StoreConfig struct {
	Path string `toml:"path"`
}

// ServerConfig configures the RPC server.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Default returns the manifest used when no vainilla.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

// Load parses a vainilla.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	m.applyDefaults()

	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Run.Prompt == nil {
		p := DefaultPrompt
		m.Run.Prompt = &p
	}
	if m.Store.Path == "" {
		m.Store.Path = DefaultStorePath
	}
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultAddr
	}
	if m.Image.Output == "" && m.Source.Entry != "" {
		m.Image.Output = strings.TrimSuffix(m.Source.Entry, filepath.Ext(m.Source.Entry)) + ".vmi"
	}
}

// FindAndLoad walks up from startDir to find a vainilla.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Prompt returns the READ prompt.
func (m *Manifest) Prompt() string {
	if m.Run.Prompt == nil {
		return DefaultPrompt
	}
	return *m.Run.Prompt
}

// Resolve makes a manifest-relative path absolute.
func (m *Manifest) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// EntryPath returns the absolute path of the entry program, or "" if unset.
func (m *Manifest) EntryPath() string {
	return m.Resolve(m.Source.Entry)
}

// ImagePath returns the absolute path of the image output, or "" if unset.
func (m *Manifest) ImagePath() string {
	return m.Resolve(m.Image.Output)
}

// StorePath returns the absolute path of the image store database.
func (m *Manifest) StorePath() string {
	return m.Resolve(m.Store.Path)
}

// Name returns the project name, falling back to the entry file's base name.
func (m *Manifest) Name() string {
	if m.Project.Name != "" {
		return m.Project.Name
	}
	if m.Source.Entry != "" {
		base := filepath.Base(m.Source.Entry)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return filepath.Base(m.Dir)
}
