package prompt

import (
	"fmt"
	"strings"

	"arch-render-studio/internal/render"
)

type Options struct {
	Operation    render.Operation
	UserPrompt   string
	Preset       string // "" | "realistic" | "sketch" | "site_plan" | "section"
	HasStyleRef  bool
	Direction    string // navigate only
	Instructions string // correction only
	HasMask      bool   // correction only
	Resolution   string
	Variation    int // 1-based index within a variations batch
}

type Builder struct {
	catalog *Catalog
}

func NewBuilder(c *Catalog) *Builder {
	if c == nil {
		c = Default()
	}
	return &Builder{catalog: c}
}

func (b *Builder) Catalog() *Catalog {
	return b.catalog
}

func (b *Builder) Build(opts Options) string {
	preset, hasPreset := b.catalog.Preset(opts.Preset)
	userPrompt := strings.TrimSpace(opts.UserPrompt)

	var sb strings.Builder
	sb.Grow(2048)

	sb.WriteString("TASK: " + taskLine(opts) + "\n\n")

	sb.WriteString("SOURCE IMAGE (GEOMETRY LOCK):\n")
	for _, line := range []string{
		"The first attached image is the design to work on.",
		"Preserve massing, proportions, openings, roof form and structural rhythm.",
		"Do not add or remove floors, bays or major volumes unless asked.",
		"Do NOT add captions, watermarks, labels or text overlays.",
	} {
		sb.WriteString("- " + line + "\n")
	}
	sb.WriteString("\n")

	if lines := operationLines(opts); len(lines) > 0 {
		sb.WriteString("OPERATION:\n")
		for _, line := range lines {
			sb.WriteString("- " + line + "\n")
		}
		sb.WriteString("\n")
	}

	switch {
	case opts.HasStyleRef:
		sb.WriteString("STYLE REFERENCE:\n")
		sb.WriteString("- The second attached image is a style reference only.\n")
		sb.WriteString("- Transfer its palette, lighting, rendering technique and mood.\n")
		sb.WriteString("- Never copy its building, site or composition.\n\n")
	case hasPreset:
		sb.WriteString("RENDERING STYLE (STRICT):\n")
		sb.WriteString("- " + preset.Name + "\n")
		for _, line := range preset.Add {
			sb.WriteString("- " + line + "\n")
		}
		for _, line := range preset.Notes {
			sb.WriteString("- NOTE: " + line + "\n")
		}
		sb.WriteString("\n")
	}

	if userPrompt != "" {
		sb.WriteString("DESIGNER NOTES:\n")
		sb.WriteString("- " + userPrompt + "\n\n")
	}

	sb.WriteString("OUTPUT SPEC:\n")
	sb.WriteString("- Return exactly one image.\n")
	if opts.Resolution != "" {
		sb.WriteString(fmt.Sprintf("- Target resolution: %s.\n", opts.Resolution))
	}
	sb.WriteString("- Full-bleed, no borders or frames.\n")

	return strings.TrimSpace(sb.String())
}

func taskLine(opts Options) string {
	switch opts.Operation {
	case render.OpUpscale:
		return "Upscale the architectural image with added fine detail."
	case render.OpCorrection:
		return "Local correction of an architectural render."
	case render.OpNavigate:
		return "Move the camera through the same architectural scene."
	case render.OpDifferentAngle:
		return "Re-render the design from a different viewpoint."
	case render.OpVariations:
		return "Produce a design variation of the architectural render."
	default:
		return "Architectural visualization render."
	}
}

func operationLines(opts Options) []string {
	switch opts.Operation {
	case render.OpRegenerate:
		return []string{"Produce a fresh take with the same parameters; vary lighting and camera details slightly."}
	case render.OpFromSource:
		return []string{"Start again from the source image; ignore previous renders."}
	case render.OpVariations:
		return []string{
			fmt.Sprintf("Variation #%d: keep the design, vary materials, lighting or season.", max(opts.Variation, 1)),
			"Each variation must be clearly distinct from the input.",
		}
	case render.OpDifferentAngle:
		return []string{
			"The reference image shows the desired camera position and framing.",
			"Keep every design element identical; only the viewpoint changes.",
		}
	case render.OpUpscale:
		return []string{
			"Keep composition, colors and content identical.",
			"Sharpen edges, refine textures, remove compression artifacts.",
		}
	case render.OpCorrection:
		var lines []string
		if opts.HasMask {
			lines = append(lines,
				"The second attached image is a mask; white marks the region to change.",
				"Leave everything outside the mask pixel-identical.",
			)
		} else {
			lines = append(lines, "Change only what the request names; leave the rest of the image identical.")
		}
		if instr := strings.TrimSpace(opts.Instructions); instr != "" {
			lines = append(lines, "Change requested: "+instr)
		}
		return lines
	case render.OpNavigate:
		return []string{
			fmt.Sprintf("Camera move: %s. %s", opts.Direction, directionHint(opts.Direction)),
			"Reveal the adjacent part of the same scene consistently.",
		}
	}
	return nil
}

func directionHint(dir string) string {
	switch dir {
	case "left":
		return "Pan or orbit to the left by roughly 45 degrees."
	case "right":
		return "Pan or orbit to the right by roughly 45 degrees."
	case "forward":
		return "Walk a few meters forward towards the building."
	case "backward":
		return "Step back to show more context."
	case "up":
		return "Raise the camera to a higher vantage point."
	case "down":
		return "Lower the camera towards eye level or below."
	}
	return ""
}

// AppendMaterial adds a palette snippet to a prompt, comma separated.
func AppendMaterial(current, snippet string) string {
	current = strings.TrimSpace(current)
	snippet = strings.TrimSpace(snippet)
	switch {
	case snippet == "":
		return current
	case current == "":
		return snippet
	case strings.HasSuffix(current, ","):
		return current + " " + snippet
	default:
		return current + ", " + snippet
	}
}
