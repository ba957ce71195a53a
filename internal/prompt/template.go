package prompt

import (
	"fmt"
	"strings"

	"github.com/Appraisily/image-generation-service/internal/profile"
)

const policySuffix = "Photorealistic, natural lighting, sharp focus, neutral and professional. " +
	"No text, no logos, no watermarks, no signatures. Not a real or identifiable person."

type keywordClause struct {
	keywords []string
	clause   string
}

// Order matters: the first matching keyword wins.
var appraiserBackgrounds = []keywordClause{
	{[]string{"modern", "contemporary", "pop art", "abstract"}, "in a bright minimalist gallery with contemporary artwork softly out of focus behind them"},
	{[]string{"antique", "victorian", "georgian", "period"}, "in a warm wood-panelled study surrounded by antique furniture and curios"},
	{[]string{"jewel", "gem", "watch"}, "at a clean workbench with a jeweler's loupe and velvet display trays"},
	{[]string{"coin", "numismat", "currency", "stamp"}, "at a desk with neatly arranged coin albums and a magnifying lamp"},
	{[]string{"furniture", "decorative"}, "in a showroom of fine furniture with soft daylight"},
	{[]string{"book", "manuscript", "map"}, "in a library with leather-bound rare books on the shelves"},
	{[]string{"asian", "ceramic", "porcelain", "pottery"}, "beside shelves of porcelain and ceramics in a calm study"},
	{[]string{"sport", "memorabilia", "collectible", "toy"}, "in an organised collector's room with framed memorabilia"},
	{[]string{"art", "painting", "fine art"}, "in a classic gallery with framed paintings softly blurred behind them"},
}

const appraiserDefaultBackground = "in a bright professional office with soft bokeh"

var locationScenes = []keywordClause{
	{[]string{"gallery"}, "the facade and entrance of an elegant art gallery"},
	{[]string{"auction"}, "the interior of a refined auction house with rows of chairs and a rostrum"},
	{[]string{"museum"}, "the grand entrance hall of a museum"},
	{[]string{"shop", "store", "dealer", "boutique"}, "a welcoming antique shop storefront with a display window"},
	{[]string{"office", "studio"}, "a bright professional appraisal studio interior"},
	{[]string{"market", "fair"}, "a bustling antiques fair with stalls under natural light"},
}

const locationDefaultScene = "a welcoming appraisal office building exterior on a quiet street"

// Template builds the deterministic prompt for req. It never returns an
// empty string.
func Template(req profile.GenerationRequest) string {
	if req.EntityType == profile.Location {
		return locationTemplate(req)
	}
	return appraiserTemplate(req)
}

func appraiserTemplate(req profile.GenerationRequest) string {
	subject := []string{"professional"}
	if age := req.Attr("age"); age != "" {
		subject = append(subject, describeAge(age))
	}
	if eth := req.Attr("ethnicity"); eth != "" {
		subject = append(subject, eth)
	}
	subject = append(subject, describeGender(req.Attr("gender")))

	var b strings.Builder
	fmt.Fprintf(&b, "Professional headshot of a %s art and antiques appraiser", strings.Join(subject, " "))
	if spec := req.Attr("specialization"); spec != "" {
		fmt.Fprintf(&b, " specializing in %s", spec)
	}
	b.WriteString(", ")
	b.WriteString(pick(appraiserBackgrounds, req.Attr("specialization"), appraiserDefaultBackground))
	b.WriteString(". Head and shoulders, friendly confident expression, business attire.")
	if style := req.Attr("style"); style != "" {
		fmt.Fprintf(&b, " %s style.", capitalize(style))
	}
	b.WriteString(" ")
	b.WriteString(policySuffix)
	return b.String()
}

func locationTemplate(req profile.GenerationRequest) string {
	var b strings.Builder
	b.WriteString("Architectural photograph of ")
	b.WriteString(pick(locationScenes, req.Attr("locationType"), locationDefaultScene))

	place := joinNonEmpty(", ", req.Attr("city"), req.Attr("state"))
	if place != "" {
		fmt.Fprintf(&b, " in %s, with subtle local character", place)
	}
	b.WriteString(". Inviting, well lit, no people in the foreground.")
	if style := req.Attr("style"); style != "" {
		fmt.Fprintf(&b, " %s style.", capitalize(style))
	}
	b.WriteString(" ")
	b.WriteString(policySuffix)
	return b.String()
}

func pick(clauses []keywordClause, value, fallback string) string {
	v := strings.ToLower(value)
	if v == "" {
		return fallback
	}
	for _, kc := range clauses {
		for _, kw := range kc.keywords {
			if strings.Contains(v, kw) {
				return kc.clause
			}
		}
	}
	return fallback
}

func describeGender(g string) string {
	switch strings.ToLower(g) {
	case "female", "woman", "f":
		return "woman"
	case "male", "man", "m":
		return "man"
	case "":
		return "person"
	default:
		return g + " person"
	}
}

func describeAge(age string) string {
	var n int
	if _, err := fmt.Sscanf(age, "%d", &n); err != nil {
		return age
	}
	switch {
	case n < 30:
		return "young"
	case n < 45:
		return "mid-career"
	case n < 60:
		return "experienced"
	default:
		return "senior"
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
