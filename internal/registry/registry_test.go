package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_PreservesOrder(t *testing.T) {
	reg, err := New([]ModuleDescriptor{
		{ID: "zeta.spec.ts", URL: "/zeta"},
		{ID: "alpha.spec.ts", URL: "/alpha"},
		{ID: "mid.spec.ts", URL: "/mid"},
	}, nil)
	require.NoError(t, err)

	var ids []string
	for _, m := range reg.Modules() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"zeta.spec.ts", "alpha.spec.ts", "mid.spec.ts"}, ids)
	assert.Equal(t, 3, reg.Len())
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		modules []ModuleDescriptor
	}{
		{"empty id", []ModuleDescriptor{{ID: " ", URL: "/a"}}},
		{"empty url", []ModuleDescriptor{{ID: "a.spec.ts", URL: ""}}},
		{"duplicate", []ModuleDescriptor{{ID: "a.spec.ts", URL: "/a"}, {ID: "a.spec.ts", URL: "/b"}}},
		{"path separator", []ModuleDescriptor{{ID: "../a.spec.ts", URL: "/a"}}},
		{"dot dot", []ModuleDescriptor{{ID: "..", URL: "/a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.modules, nil)
			assert.Error(t, err)
		})
	}
}

func TestNew_OverrideWarnings(t *testing.T) {
	reg, err := New([]ModuleDescriptor{{ID: "a.spec.ts", URL: "/a"}}, []string{"a.spec.ts", "ghost.spec.ts", ""})
	require.NoError(t, err)

	assert.True(t, reg.IsOverridden("a.spec.ts"))
	assert.True(t, reg.Overrides().Contains("ghost.spec.ts"))
	assert.False(t, reg.IsOverridden(""))
	require.Len(t, reg.Warnings(), 1)
	assert.Contains(t, reg.Warnings()[0], "ghost.spec.ts")
}

func TestModules_ReturnsCopy(t *testing.T) {
	reg, err := New([]ModuleDescriptor{{ID: "a.spec.ts", URL: "/a"}}, nil)
	require.NoError(t, err)

	mods := reg.Modules()
	mods[0].URL = "/mutated"

	m, ok := reg.Lookup("a.spec.ts")
	require.True(t, ok)
	assert.Equal(t, "/a", m.URL)
}

func TestResolve(t *testing.T) {
	reg, err := New([]ModuleDescriptor{
		{ID: "a.spec.ts", URL: "/tools/a"},
		{ID: "b.spec.ts", URL: "tools/b"},
		{ID: "c.spec.ts", URL: "https://other.example/c"},
	}, []string{"c.spec.ts"})
	require.NoError(t, err)

	resolved, err := reg.Resolve("http://localhost:3000/dashboard/")
	require.NoError(t, err)

	mods := resolved.Modules()
	assert.Equal(t, "http://localhost:3000/tools/a", mods[0].URL)
	assert.Equal(t, "http://localhost:3000/dashboard/tools/b", mods[1].URL)
	assert.Equal(t, "https://other.example/c", mods[2].URL)
	assert.True(t, resolved.IsOverridden("c.spec.ts"))

	// The original stays untouched.
	orig, _ := reg.Lookup("a.spec.ts")
	assert.Equal(t, "/tools/a", orig.URL)
}

func TestResolve_Errors(t *testing.T) {
	reg, err := New([]ModuleDescriptor{{ID: "a.spec.ts", URL: "/a"}}, nil)
	require.NoError(t, err)

	_, err = reg.Resolve("")
	assert.ErrorContains(t, err, "needs a base_url")

	_, err = reg.Resolve("localhost/no-scheme")
	assert.ErrorContains(t, err, "not absolute")
}

func TestParse_YAMLList(t *testing.T) {
	data := []byte(`
base_url: http://localhost:3000
modules:
  - id: json-formatter.spec.ts
    url: /tools/json-formatter
  - id: base64.spec.ts
    url: /tools/base64
implemented:
  - base64.spec.ts
`)
	reg, err := Parse(data, FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000", reg.BaseURL())
	assert.Equal(t, []ModuleDescriptor{
		{ID: "json-formatter.spec.ts", URL: "/tools/json-formatter"},
		{ID: "base64.spec.ts", URL: "/tools/base64"},
	}, reg.Modules())
	assert.True(t, reg.IsOverridden("base64.spec.ts"))
}

func TestParse_YAMLMappingKeepsOrder(t *testing.T) {
	data := []byte(`
modules:
  zeta.spec.ts: /zeta
  alpha.spec.ts: /alpha
`)
	reg, err := Parse(data, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "zeta.spec.ts", reg.Modules()[0].ID)
	assert.Equal(t, "alpha.spec.ts", reg.Modules()[1].ID)
}

func TestParse_YAMLMappingRejectsNestedValue(t *testing.T) {
	data := []byte("modules:\n  a.spec.ts:\n    url: /a\n")
	_, err := Parse(data, FormatYAML)
	assert.ErrorContains(t, err, "url must be a string")
}

func TestParse_JSON(t *testing.T) {
	data := []byte(`{"modules": {"b.spec.ts": "/b", "a.spec.ts": "/a"}, "implemented": ["a.spec.ts"]}`)
	reg, err := Parse(data, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "b.spec.ts", reg.Modules()[0].ID)
	assert.True(t, reg.IsOverridden("a.spec.ts"))
}

func TestParse_TOML(t *testing.T) {
	data := []byte(`
base_url = "http://localhost:4000"
implemented = ["a.spec.ts"]

[[modules]]
id = "a.spec.ts"
url = "/a"

[[modules]]
id = "b.spec.ts"
url = "/b"
`)
	reg, err := Parse(data, FormatTOML)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4000", reg.BaseURL())
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, "b.spec.ts", reg.Modules()[1].ID)
}

func TestParse_TOMLUnknownField(t *testing.T) {
	_, err := Parse([]byte("colour = \"blue\"\n"), FormatTOML)
	assert.Error(t, err)
}

func TestParse_NoModules(t *testing.T) {
	_, err := Parse([]byte("implemented: [a.spec.ts]\n"), FormatYAML)
	assert.ErrorContains(t, err, "no modules")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "modules.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("modules:\n  a.spec.ts: /a\n"), 0644))
	reg, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())

	_, err = Load(filepath.Join(dir, "modules.ini"))
	assert.ErrorContains(t, err, "unsupported registry extension")

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
