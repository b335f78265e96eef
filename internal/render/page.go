package render

import "strings"

// WrapPage assembles the full persistence wire format: a well-formed HTML5
// document whose <main> contains one <div> per section, each section's
// first child being the block itself, optionally followed by a
// section-metadata div carrying a style cell.
func WrapPage(blocks []RenderedBlock) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"></head><body><main>\n")
	for _, block := range blocks {
		b.WriteString("<div>\n")
		b.WriteString(block.HTML)
		if block.SectionStyle != "" {
			b.WriteString("\n<div class=\"section-metadata\"><div><div>Style</div><div>")
			b.WriteString(block.SectionStyle)
			b.WriteString("</div></div></div>")
		}
		b.WriteString("\n</div>\n")
	}
	b.WriteString("</main></body></html>")
	return b.String()
}
