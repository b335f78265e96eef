package render

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdownRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

// toHTML converts a markdown body to HTML, falling back to escaped plain
// text if the input fails to parse.
func toHTML(md string) string {
	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(md), &buf); err != nil {
		return html.EscapeString(md)
	}
	return buf.String()
}

// RenderBlocks maps atoms onto the suggested block names, emitting one
// RenderedBlock per suggestion with deterministic ordering: the first hero
// is always first, the first cta-section is always last, everything else
// keeps the generator's suggested order. Empty blocks are dropped and
// counted in skipped.
func RenderBlocks(atoms []Atom, suggestedBlocks []string) (blocks []RenderedBlock, skipped int) {
	heroAtoms := filterKind(atoms, KindHero)
	cardAtoms := filterKind(atoms, KindCard)
	faqAtoms := filterKind(atoms, KindFaq)
	stepAtoms := filterKind(atoms, KindStepList)

	var rendered []RenderedBlock
	for _, name := range suggestedBlocks {
		var htmlFrag string
		switch name {
		case BlockHero:
			htmlFrag = renderHero(heroAtoms)
		case BlockCards:
			htmlFrag = renderCards(cardAtoms)
		case BlockFaq:
			htmlFrag = renderFaq(faqAtoms)
		case BlockStepByStep:
			htmlFrag = renderStepList(stepAtoms)
		case BlockCTA:
			htmlFrag = renderCTA(heroAtoms)
		default:
			continue // not in the closed set the renderer knows
		}

		nonEmpty := !isEmpty(htmlFrag)
		if !nonEmpty {
			skipped++
			continue
		}
		rendered = append(rendered, RenderedBlock{Name: name, HTML: htmlFrag, NonEmpty: true})
	}

	return orderBlocks(rendered), skipped
}

// orderBlocks moves the first hero block to the front and the first
// cta-section block to the back, preserving relative order otherwise.
func orderBlocks(blocks []RenderedBlock) []RenderedBlock {
	var hero *RenderedBlock
	var cta *RenderedBlock
	var rest []RenderedBlock

	for i := range blocks {
		b := blocks[i]
		switch {
		case b.Name == BlockHero && hero == nil:
			hero = &b
		case b.Name == BlockCTA && cta == nil:
			cta = &b
		default:
			rest = append(rest, b)
		}
	}

	out := make([]RenderedBlock, 0, len(blocks))
	if hero != nil {
		out = append(out, *hero)
	}
	out = append(out, rest...)
	if cta != nil {
		out = append(out, *cta)
	}
	return out
}

func filterKind(atoms []Atom, kind string) []Atom {
	var out []Atom
	for _, a := range atoms {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func renderHero(heroes []Atom) string {
	if len(heroes) == 0 {
		return ""
	}
	h := heroes[0]
	if strings.TrimSpace(h.Title) == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<div class="hero">`)
	b.WriteString(fmt.Sprintf(`<div><h1>%s</h1></div>`, html.EscapeString(h.Title)))
	if h.Subtitle != "" {
		b.WriteString(fmt.Sprintf(`<div>%s</div>`, toHTML(h.Subtitle)))
	}
	b.WriteString(`</div>`)
	return b.String()
}

func renderCTA(heroes []Atom) string {
	for _, h := range heroes {
		if h.CTAText == "" {
			continue
		}
		return fmt.Sprintf(`<div class="cta-section"><div><p>%s</p></div></div>`, html.EscapeString(h.CTAText))
	}
	return ""
}

func renderCards(cards []Atom) string {
	if len(cards) == 0 {
		return ""
	}
	var rows strings.Builder
	for _, c := range cards {
		if strings.TrimSpace(c.Title) == "" && strings.TrimSpace(c.Body) == "" {
			continue
		}
		rows.WriteString("<div>")
		if c.ImageHint != "" {
			rows.WriteString(fmt.Sprintf(`<div><img data-gen-hint="%s" data-gen-size="card"></div>`, html.EscapeString(c.ImageHint)))
		}
		cell := fmt.Sprintf("<h3>%s</h3>%s", html.EscapeString(c.Title), toHTML(c.Body))
		if c.Href != "" {
			cell += fmt.Sprintf(`<p><a href="%s">Learn more</a></p>`, html.EscapeString(c.Href))
		}
		rows.WriteString("<div>" + cell + "</div>")
		rows.WriteString("</div>")
	}
	if rows.Len() == 0 {
		return ""
	}
	return `<div class="cards">` + rows.String() + `</div>`
}

func renderFaq(faqs []Atom) string {
	if len(faqs) == 0 {
		return ""
	}
	var rows strings.Builder
	for _, f := range faqs {
		if strings.TrimSpace(f.Question) == "" {
			continue
		}
		rows.WriteString(fmt.Sprintf("<div><div>%s</div><div>%s</div></div>",
			html.EscapeString(f.Question), toHTML(f.Answer)))
	}
	if rows.Len() == 0 {
		return ""
	}
	return `<div class="faq-accordion">` + rows.String() + `</div>`
}

func renderStepList(steps []Atom) string {
	if len(steps) == 0 {
		return ""
	}
	var items strings.Builder
	for _, s := range steps {
		for _, step := range s.Steps {
			if strings.TrimSpace(step) == "" {
				continue
			}
			items.WriteString("<li>" + toHTML(step) + "</li>")
		}
	}
	if items.Len() == 0 {
		return ""
	}
	return `<div class="step-by-step"><div><ol>` + items.String() + `</ol></div></div>`
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// isEmpty reports whether html, stripped of tags, is blank.
func isEmpty(rendered string) bool {
	stripped := tagPattern.ReplaceAllString(rendered, "")
	return strings.TrimSpace(stripped) == ""
}
