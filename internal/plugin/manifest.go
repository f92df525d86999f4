// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the name of the manifest inside a plugin directory.
const ManifestFile = "plugin.yaml"

// Type identifies the plugin runtime.
type Type string

// Plugin types supported by the host.
const (
	TypeNative Type = "native"
	TypeBinary Type = "binary"
	TypeLua    Type = "lua"
)

// Manifest represents a plugin.yaml file.
type Manifest struct {
	Name        string `yaml:"name" json:"name" jsonschema:"pattern=^[a-z]([a-z0-9-]*[a-z0-9])?$,maxLength=64"`
	Version     string `yaml:"version" json:"version" jsonschema:"minLength=1"`
	Type        Type   `yaml:"type" json:"type" jsonschema:"enum=native,enum=binary,enum=lua"`
	Entry       string `yaml:"entry" json:"entry" jsonschema:"minLength=1"`
	ID          *ID    `yaml:"id,omitempty" json:"id,omitempty" jsonschema:"minimum=0,maximum=65535"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern validates plugin names: must start with lowercase letter,
// followed by lowercase letters, digits, or hyphens.
// Cannot end with a hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// ReadManifest reads and parses the manifest in dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(filepath.Clean(dir), ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return fmt.Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.Name)
	}
	if len(m.Name) > maxNameLength {
		return fmt.Errorf("name must be %d characters or less, got %d", maxNameLength, len(m.Name))
	}

	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return fmt.Errorf("version %q is not a semantic version: %w", m.Version, err)
	}

	switch m.Type {
	case TypeNative, TypeBinary, TypeLua:
	default:
		return fmt.Errorf("type must be 'native', 'binary' or 'lua', got %q", m.Type)
	}

	if m.Entry == "" {
		return fmt.Errorf("entry is required")
	}
	if filepath.IsAbs(m.Entry) {
		return fmt.Errorf("entry %q must be relative to the plugin directory", m.Entry)
	}

	return nil
}

// EntryPath resolves the entry relative to the plugin directory.
func (m *Manifest) EntryPath(dir string) string {
	return filepath.Join(dir, m.Entry)
}
