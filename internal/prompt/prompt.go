package prompt

import (
	"fmt"
	"strings"
)

const (
	DefaultVariants = 4
	DefaultQuality  = "high"
	aspectSquare    = "1:1"
)

type Options struct {
	StyleID      string
	BackgroundID string
	Variants     int
}

type Output struct {
	Count       int
	Quality     string
	AspectRatio string
}

func ResolveOutput(opts Options) Output {
	n := opts.Variants
	if n <= 0 {
		n = DefaultVariants
	}
	return Output{
		Count:       n,
		Quality:     DefaultQuality,
		AspectRatio: aspectSquare,
	}
}

// Build returns the generation prompt for the selected style and background.
// The same options always produce the same text.
func Build(opts Options) (string, Output) {
	out := ResolveOutput(opts)

	styleID := normalizeID(opts.StyleID)
	backgroundID := normalizeID(opts.BackgroundID)
	style, hasStyle := styles[styleID]
	background, hasBackground := backgrounds[backgroundID]

	var b strings.Builder
	b.Grow(2048)

	b.WriteString(fmt.Sprintf(
		"Create a professional %s headshot with a %s background. The person should look confident and professional, with excellent lighting and composition.\n\n",
		styleID, backgroundID,
	))

	b.WriteString("REFERENCE PHOTOS (IDENTITY LOCK): The attached photos show the same real person.\n")
	for _, line := range []string{
		"Every output MUST depict exactly this person: same face shape, eyes, nose, skin tone, hairline and age.",
		"Do not beautify into a different person; retouching stays natural.",
		"Keep glasses, facial hair and visible marks if present in the references.",
		"Replace clothing and background only as requested below.",
	} {
		b.WriteString("- " + line + "\n")
	}
	b.WriteString("\n")

	b.WriteString("OUTPUT SPEC:\n")
	b.WriteString(fmt.Sprintf("- Create %d distinct headshot variants.\n", out.Count))
	b.WriteString(fmt.Sprintf("- Aspect ratio per image: %s, head-and-shoulders crop, eyes on the upper third.\n", out.AspectRatio))
	b.WriteString(fmt.Sprintf("- Quality: %s. Sharp focus on the eyes.\n\n", out.Quality))

	if hasStyle {
		writeSection(&b, "STYLE: "+style.Name+" ("+style.Description+")", style.Add)
	}
	if hasBackground {
		writeSection(&b, "BACKGROUND: "+background.Name+" ("+background.Description+")", background.Add)
	}

	writeSection(&b, "NEGATIVE PROMPT (avoid)", []string{
		"different person than reference", "distorted face", "extra fingers", "asymmetrical eyes",
		"plastic skin", "over-smoothing", "text", "watermark", "logo", "border", "frame",
		"low resolution", "blurry face", "harsh shadows",
	})

	b.WriteString("OUTPUT RULES:\n")
	b.WriteString("- Images only. No text, no JSON.\n")

	return strings.TrimSpace(b.String()), out
}

func writeSection(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	b.WriteString(title + ":\n")
	for _, line := range lines {
		b.WriteString("- " + line + "\n")
	}
	b.WriteString("\n")
}
