package prompt

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Preset struct {
	Key   string   `yaml:"key" json:"key"`
	Name  string   `yaml:"name" json:"name"`
	Add   []string `yaml:"add" json:"-"`
	Notes []string `yaml:"notes" json:"-"`
}

type Material struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

type MaterialCategory struct {
	ID        string     `yaml:"id" json:"id"`
	Name      string     `yaml:"name" json:"name"`
	Materials []Material `yaml:"materials" json:"materials"`
}

type Catalog struct {
	Presets         []Preset           `yaml:"presets" json:"presets"`
	Materials       []MaterialCategory `yaml:"materials" json:"materials"`
	LoadingMessages []string           `yaml:"loading_messages" json:"loading_messages"`
	Directions      []string           `yaml:"-" json:"directions"`
	Resolutions     []string           `yaml:"-" json:"resolutions"`
}

var presetOrder = []string{"realistic", "sketch", "site_plan", "section"}

var defaultPresets = map[string]Preset{
	"realistic": {
		Key:  "realistic",
		Name: "Realistic",
		Add: []string{
			"photorealistic architectural photography, physically based materials",
			"natural daylight with soft global illumination and accurate shadows",
			"true-to-life scale cues: people, vegetation, street furniture where appropriate",
			"shot on a full-frame camera with a tilt-shift lens, verticals corrected",
		},
		Notes: []string{"No stylization, no painterly effects."},
	},
	"sketch": {
		Key:  "sketch",
		Name: "Sketch",
		Add: []string{
			"hand-drawn architectural sketch, confident pen linework on white paper",
			"light watercolor or marker washes, limited palette",
			"loose construction lines and hatching for shadow",
		},
		Notes: []string{"Keep proportions accurate even though the medium is loose."},
	},
	"site_plan": {
		Key:  "site_plan",
		Name: "Site Plan",
		Add: []string{
			"top-down orthographic site plan, true north up",
			"building footprint with roof shadows, landscape, paving and vegetation",
			"clean presentation-board graphics, muted colors, crisp edges",
		},
		Notes: []string{"No perspective distortion; strictly plan view."},
	},
	"section": {
		Key:  "section",
		Name: "Section",
		Add: []string{
			"architectural section cut through the building, poché in solid black",
			"interior spaces visible beyond the cut line with soft shading",
			"people silhouettes for scale, ground line and context",
		},
		Notes: []string{"Orthographic projection; no vanishing points."},
	},
}

var defaultMaterials = []MaterialCategory{
	{
		ID:   "wall",
		Name: "Wall",
		Materials: []Material{
			{Name: "Exposed Concrete", Value: "exposed concrete wall texture"},
			{Name: "Red Brick", Value: "aged red brick wall"},
			{Name: "White Stucco", Value: "clean white stucco wall"},
			{Name: "Timber Cladding", Value: "vertical timber cladding"},
			{Name: "Natural Stone", Value: "rough natural stone wall"},
		},
	},
	{
		ID:   "floor",
		Name: "Floor",
		Materials: []Material{
			{Name: "Oak Parquet", Value: "herringbone oak flooring"},
			{Name: "Marble", Value: "white carrara marble flooring"},
			{Name: "Polished Concrete", Value: "polished concrete floor"},
			{Name: "Ceramic", Value: "large format grey ceramic tiles"},
			{Name: "Grass", Value: "manicured green grass"},
		},
	},
	{
		ID:   "glass",
		Name: "Glass & Metal",
		Materials: []Material{
			{Name: "Reflective Glass", Value: "reflective blue facade glass"},
			{Name: "Clear Glass", Value: "clear floor-to-ceiling glass"},
			{Name: "Black Metal", Value: "matte black metal frames"},
			{Name: "Copper", Value: "oxidized copper panels"},
			{Name: "Corten Steel", Value: "rusted corten steel"},
		},
	},
	{
		ID:   "atmosphere",
		Name: "Atmosphere",
		Materials: []Material{
			{Name: "Sunset", Value: "golden hour dramatic lighting"},
			{Name: "Overcast", Value: "overcast soft diffused lighting"},
			{Name: "Night", Value: "night time with interior lights glowing"},
			{Name: "Rain", Value: "rainy cinematic atmosphere, wet reflections"},
			{Name: "Fog", Value: "foggy mysterious atmosphere"},
		},
	},
}

var defaultLoadingMessages = []string{
	"Laying the foundations...",
	"Pouring the concrete...",
	"Adjusting the sun angle...",
	"Planting the trees...",
	"Polishing the glass...",
	"Consulting the structural engineer...",
}

var Directions = []string{"left", "right", "forward", "backward", "up", "down"}

var Resolutions = []string{"1K", "2K", "4K"}

func Default() *Catalog {
	c := &Catalog{
		LoadingMessages: append([]string(nil), defaultLoadingMessages...),
		Directions:      append([]string(nil), Directions...),
		Resolutions:     append([]string(nil), Resolutions...),
	}
	for _, key := range presetOrder {
		c.Presets = append(c.Presets, clonePreset(defaultPresets[key]))
	}
	for _, cat := range defaultMaterials {
		cat.Materials = append([]Material(nil), cat.Materials...)
		c.Materials = append(c.Materials, cat)
	}
	return c
}

// LoadCatalog applies a YAML override on top of the defaults. Presets are
// matched by key and only the four known keys are accepted; materials and
// loading messages replace the defaults wholesale when present.
func LoadCatalog(path string) (*Catalog, error) {
	c := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return c, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var override Catalog
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	for _, p := range override.Presets {
		idx := c.presetIndex(p.Key)
		if idx < 0 {
			return nil, fmt.Errorf("catalog: unknown preset %q", p.Key)
		}
		if strings.TrimSpace(p.Name) != "" {
			c.Presets[idx].Name = p.Name
		}
		if len(p.Add) > 0 {
			c.Presets[idx].Add = p.Add
		}
		if len(p.Notes) > 0 {
			c.Presets[idx].Notes = p.Notes
		}
	}
	if len(override.Materials) > 0 {
		c.Materials = override.Materials
	}
	if len(override.LoadingMessages) > 0 {
		c.LoadingMessages = override.LoadingMessages
	}
	return c, nil
}

func (c *Catalog) Preset(key string) (Preset, bool) {
	idx := c.presetIndex(key)
	if idx < 0 {
		return Preset{}, false
	}
	return c.Presets[idx], true
}

func (c *Catalog) presetIndex(key string) int {
	key = strings.ToLower(strings.TrimSpace(key))
	for i, p := range c.Presets {
		if p.Key == key {
			return i
		}
	}
	return -1
}

// Material looks up a snippet by category id and 1-based position.
func (c *Catalog) Material(categoryID string, n int) (Material, bool) {
	categoryID = strings.ToLower(strings.TrimSpace(categoryID))
	for _, cat := range c.Materials {
		if cat.ID != categoryID {
			continue
		}
		if n < 1 || n > len(cat.Materials) {
			return Material{}, false
		}
		return cat.Materials[n-1], true
	}
	return Material{}, false
}

func ValidDirection(dir string) bool {
	for _, d := range Directions {
		if d == dir {
			return true
		}
	}
	return false
}

func ValidResolution(res string) bool {
	for _, r := range Resolutions {
		if r == res {
			return true
		}
	}
	return false
}

// NextResolution returns the size one step up, capped at the largest.
func NextResolution(res string) string {
	if res == "" {
		res = Resolutions[0]
	}
	for i, r := range Resolutions {
		if r == res && i+1 < len(Resolutions) {
			return Resolutions[i+1]
		}
	}
	return Resolutions[len(Resolutions)-1]
}

func clonePreset(p Preset) Preset {
	p.Add = append([]string(nil), p.Add...)
	p.Notes = append([]string(nil), p.Notes...)
	return p
}
