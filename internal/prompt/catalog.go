package prompt

import "strings"

type Option struct {
	ID          string
	Name        string
	Description string
	Add         []string
}

var styleOrder = []string{"professional", "creative", "casual", "executive"}

var styles = map[string]Option{
	"professional": {
		ID:          "professional",
		Name:        "Professional",
		Description: "Clean, corporate look",
		Add: []string{
			"Business attire: tailored blazer or collared shirt, neutral colors",
			"Neat grooming, natural retouching",
			"Soft key light with gentle fill, even skin tones",
		},
	},
	"creative": {
		ID:          "creative",
		Name:        "Creative",
		Description: "Artistic and modern",
		Add: []string{
			"Smart-casual or designer wardrobe with one confident accent color",
			"Slightly off-center framing, editorial feel",
			"Directional light with controlled contrast",
		},
	},
	"casual": {
		ID:          "casual",
		Name:        "Casual",
		Description: "Relaxed and approachable",
		Add: []string{
			"Relaxed wardrobe: knitwear, open collar or plain tee",
			"Warm, natural expression with a soft smile",
			"Diffused daylight feel, low contrast",
		},
	},
	"executive": {
		ID:          "executive",
		Name:        "Executive",
		Description: "Leadership presence",
		Add: []string{
			"Formal suit or structured dark blazer",
			"Upright posture, composed and assured expression",
			"Classic Rembrandt-style key light, subtle rim light",
		},
	},
}

var backgroundOrder = []string{"office", "studio", "outdoor", "gradient"}

var backgrounds = map[string]Option{
	"office": {
		ID:          "office",
		Name:        "Office",
		Description: "Professional office setting",
		Add: []string{
			"Modern office interior, softly blurred (shallow depth of field)",
			"Glass, wood and neutral tones; no readable screens or signage",
		},
	},
	"studio": {
		ID:          "studio",
		Name:        "Studio",
		Description: "Clean studio backdrop",
		Add: []string{
			"Seamless studio backdrop in light grey",
			"Even backdrop lighting with a soft falloff behind the subject",
		},
	},
	"outdoor": {
		ID:          "outdoor",
		Name:        "Outdoor",
		Description: "Natural outdoor environment",
		Add: []string{
			"Natural outdoor setting with greenery or city architecture, heavily blurred",
			"Golden-hour or overcast daylight, no harsh midday sun",
		},
	},
	"gradient": {
		ID:          "gradient",
		Name:        "Gradient",
		Description: "Modern gradient background",
		Add: []string{
			"Smooth two-tone gradient backdrop, muted and modern",
			"No banding, no texture, no patterns",
		},
	},
}

func Styles() []Option {
	return ordered(styleOrder, styles)
}

func Backgrounds() []Option {
	return ordered(backgroundOrder, backgrounds)
}

func LookupStyle(id string) (Option, bool) {
	o, ok := styles[normalizeID(id)]
	return cloneOption(o), ok
}

func LookupBackground(id string) (Option, bool) {
	o, ok := backgrounds[normalizeID(id)]
	return cloneOption(o), ok
}

// Match finds the option whose id or name appears in free text, e.g. a chat
// message like "studio please".
func Match(text string, options []Option) (Option, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return Option{}, false
	}
	for _, o := range options {
		if t == o.ID || t == strings.ToLower(o.Name) {
			return o, true
		}
	}
	for _, o := range options {
		if strings.Contains(t, o.ID) || strings.Contains(t, strings.ToLower(o.Name)) {
			return o, true
		}
	}
	return Option{}, false
}

func ordered(order []string, m map[string]Option) []Option {
	out := make([]Option, 0, len(order))
	for _, id := range order {
		if o, ok := m[id]; ok {
			out = append(out, cloneOption(o))
		}
	}
	return out
}

func cloneOption(o Option) Option {
	o.Add = append([]string(nil), o.Add...)
	return o
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
