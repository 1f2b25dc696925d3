package registry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straylight-ai/crucible/registry"
	"github.com/straylight-ai/crucible/types"
)

func TestRegisterAndLoad(t *testing.T) {
	r := registry.New()
	factory := func() string { return "built" }
	require.NoError(t, r.Register(registry.KindMetric, "exactstrmatch", factory, nil))

	entry, err := r.Load(registry.KindMetric, "exactstrmatch")
	require.NoError(t, err)
	assert.Equal(t, "exactstrmatch", entry.ID)
	assert.Equal(t, "built", entry.Factory.(func() string)())

	_, err = r.Load(registry.KindMetric, "missing")
	assert.True(t, types.HasCode(err, types.PLUGIN_NOT_FOUND))
	_, err = r.Load(registry.KindConnector, "exactstrmatch")
	assert.True(t, types.HasCode(err, types.PLUGIN_NOT_FOUND), "kinds are separate namespaces")
}

func TestLastRegistrationWins(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(registry.KindMetric, "m", "first", nil))
	require.NoError(t, r.Register(registry.KindMetric, "m", "second", nil))

	entry, err := r.Load(registry.KindMetric, "m")
	require.NoError(t, err)
	assert.Equal(t, "second", entry.Factory)
}

func TestRegisterValidation(t *testing.T) {
	r := registry.New()
	assert.True(t, types.IsValidation(r.Register(registry.KindMetric, "", "f", nil)))
	assert.True(t, types.IsValidation(r.Register(registry.KindMetric, "id", nil, nil)))
}

func TestDeregister(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(registry.KindMetric, "m", "f", nil))
	require.NoError(t, r.Deregister(registry.KindMetric, "m"))
	assert.False(t, r.Has(registry.KindMetric, "m"))

	err := r.Deregister(registry.KindMetric, "m")
	assert.True(t, types.HasCode(err, types.PLUGIN_NOT_FOUND))
}

func TestListSorted(t *testing.T) {
	r := registry.New()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(registry.KindAttackModule, id, "f", nil))
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.List(registry.KindAttackModule))
	assert.Empty(t, r.List(registry.KindMetric))
}

func TestScanManifests(t *testing.T) {
	dir := t.TempDir()
	manifest := `kind: connector
id: my-proxy-gpt
adapter: openai-compatible
params:
  temperature: 0.2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "proxy.yaml"), []byte(manifest), 0o644))

	r := registry.New()
	require.NoError(t, r.Register(registry.KindConnector, "openai-compatible", "the-factory", nil))
	require.NoError(t, r.ScanManifests(dir))

	entry, err := r.Load(registry.KindConnector, "my-proxy-gpt")
	require.NoError(t, err)
	assert.Equal(t, "the-factory", entry.Factory, "manifest aliases the adapter's factory")
	assert.Equal(t, 0.2, entry.Params["temperature"])
}

func TestScanManifestsMissingDir(t *testing.T) {
	r := registry.New()
	assert.NoError(t, r.ScanManifests(filepath.Join(t.TempDir(), "nope")))
}

func TestScanManifestsUnknownAdapter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"),
		[]byte("kind: metric\nid: x\nadapter: ghost\n"), 0o644))

	r := registry.New()
	err := r.ScanManifests(dir)
	assert.True(t, types.HasCode(err, types.PLUGIN_LOAD_FAILED))
}

func TestScanManifestsMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"),
		[]byte("kind: [not a string"), 0o644))

	r := registry.New()
	err := r.ScanManifests(dir)
	assert.True(t, types.HasCode(err, types.MANIFEST_PARSE_FAIL))
}
