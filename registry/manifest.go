package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/straylight-ai/crucible/types"
)

// Manifest declares one plugin in a YAML file under the plugin
// directory. Adapter names an already-registered entry of the same
// kind whose factory the manifest reuses; Params are handed to that
// factory at build time.
type Manifest struct {
	Kind    string         `yaml:"kind"`
	ID      string         `yaml:"id"`
	Adapter string         `yaml:"adapter"`
	Params  map[string]any `yaml:"params,omitempty"`
}

func (m *Manifest) validate() error {
	switch Kind(m.Kind) {
	case KindConnector, KindMetric, KindAttackModule, KindContextStrategy,
		KindProcessingModule, KindResultProcessingModule:
	default:
		return &types.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown plugin kind %q", m.Kind)}
	}
	if m.ID == "" {
		return &types.ValidationError{Field: "id", Message: "manifest id is required"}
	}
	if m.Adapter == "" {
		return &types.ValidationError{Field: "adapter", Message: "manifest adapter is required"}
	}
	return nil
}

// ScanManifests loads every *.yaml/*.yml manifest under dir and
// registers the declared plugins. Each manifest aliases a builtin
// factory under a new id with its own params. A missing directory is
// not an error; a malformed manifest is.
func (r *Registry) ScanManifests(dir string) error {
	names, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return types.WrapError(types.PLUGIN_LOAD_FAILED, "scanning plugin directory "+dir, err)
	}
	files := make([]string, 0, len(names))
	for _, e := range names {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		path := filepath.Join(dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			return types.WrapError(types.PLUGIN_LOAD_FAILED, "reading plugin manifest "+path, err)
		}
		var m Manifest
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return types.WrapError(types.MANIFEST_PARSE_FAIL, "parsing plugin manifest "+path, err)
		}
		if err := m.validate(); err != nil {
			return types.WrapError(types.MANIFEST_PARSE_FAIL, "invalid plugin manifest "+path, err)
		}
		base, err := r.Load(Kind(m.Kind), m.Adapter)
		if err != nil {
			return types.WrapError(types.PLUGIN_LOAD_FAILED,
				fmt.Sprintf("manifest %s references unknown adapter %q", path, m.Adapter), err)
		}
		if err := r.Register(Kind(m.Kind), m.ID, base.Factory, m.Params); err != nil {
			return err
		}
	}
	return nil
}
