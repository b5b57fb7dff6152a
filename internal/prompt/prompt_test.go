package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arch-render-studio/internal/render"
)

func TestBuildUsesPresetWhenNoStyleReference(t *testing.T) {
	b := NewBuilder(nil)

	got := b.Build(Options{Operation: render.OpRender, UserPrompt: "modern villa", Preset: "sketch", Resolution: "2K"})

	assert.Contains(t, got, "RENDERING STYLE (STRICT):\n- Sketch")
	assert.Contains(t, got, "DESIGNER NOTES:\n- modern villa")
	assert.Contains(t, got, "Target resolution: 2K.")
	assert.NotContains(t, got, "STYLE REFERENCE")
}

func TestBuildStyleReferenceWinsOverPreset(t *testing.T) {
	b := NewBuilder(nil)

	got := b.Build(Options{Operation: render.OpRender, Preset: "realistic", HasStyleRef: true})

	assert.Contains(t, got, "STYLE REFERENCE:")
	assert.NotContains(t, got, "RENDERING STYLE")
	assert.NotContains(t, got, "DESIGNER NOTES")
}

func TestBuildOperationSpecificLines(t *testing.T) {
	b := NewBuilder(nil)

	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"navigate", Options{Operation: render.OpNavigate, Direction: "left"}, "Camera move: left. Pan or orbit to the left"},
		{"correction", Options{Operation: render.OpCorrection, Instructions: "remove the car"}, "Change requested: remove the car"},
		{"masked correction", Options{Operation: render.OpCorrection, HasMask: true}, "second attached image is a mask"},
		{"variations", Options{Operation: render.OpVariations, Variation: 2}, "Variation #2"},
		{"upscale", Options{Operation: render.OpUpscale}, "TASK: Upscale"},
		{"angle", Options{Operation: render.OpDifferentAngle}, "desired camera position"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, b.Build(tt.opts), tt.want)
		})
	}
}

func TestCorrectionWithoutMaskDoesNotMentionOne(t *testing.T) {
	got := NewBuilder(nil).Build(Options{Operation: render.OpCorrection, Instructions: "make the roof red"})

	assert.Contains(t, got, "Change requested: make the roof red")
	assert.NotContains(t, got, "mask")
}

func TestAppendMaterial(t *testing.T) {
	assert.Equal(t, "aged red brick wall", AppendMaterial("", "aged red brick wall"))
	assert.Equal(t, "villa, aged red brick wall", AppendMaterial("villa", "aged red brick wall"))
	assert.Equal(t, "villa, aged red brick wall", AppendMaterial("villa,", "aged red brick wall"))
	assert.Equal(t, "villa", AppendMaterial("villa", " "))
}

func TestNextResolution(t *testing.T) {
	assert.Equal(t, "2K", NextResolution(""))
	assert.Equal(t, "2K", NextResolution("1K"))
	assert.Equal(t, "4K", NextResolution("2K"))
	assert.Equal(t, "4K", NextResolution("4K"))
}

func TestCatalogMaterialLookup(t *testing.T) {
	c := Default()

	m, ok := c.Material("atmosphere", 3)
	require.True(t, ok)
	assert.Equal(t, "night time with interior lights glowing", m.Value)

	_, ok = c.Material("atmosphere", 6)
	assert.False(t, ok)
	_, ok = c.Material("roof", 1)
	assert.False(t, ok)
}

func TestLoadCatalogOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
presets:
  - key: sketch
    name: Charcoal Sketch
loading_messages:
  - "Sharpening pencils..."
`), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)

	p, ok := c.Preset("sketch")
	require.True(t, ok)
	assert.Equal(t, "Charcoal Sketch", p.Name)
	assert.NotEmpty(t, p.Add)
	assert.Equal(t, []string{"Sharpening pencils..."}, c.LoadingMessages)
	assert.Len(t, c.Materials, 4)
}

func TestLoadCatalogRejectsUnknownPreset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("presets:\n  - key: anime\n    name: Anime\n"), 0o644))

	_, err := LoadCatalog(path)
	assert.ErrorContains(t, err, `unknown preset "anime"`)
}
