package images

import "strings"

// ImageRequest is one image the worker must fill in: an id to correlate it
// back to the rendered HTML, a generation prompt, a size bucket, and the
// page slug its blob is stored under.
type ImageRequest struct {
	ID     string
	Prompt string
	Size   string
	Slug   string
}

// validSizes is the closed set of size buckets the renderer emits.
var validSizes = map[string]bool{"hero": true, "card": true, "column": true, "thumbnail": true}

// ScanHints walks html looking for <img> tags carrying a generation hint
// (data-gen-hint="<prompt>" and data-gen-size="<size>") and returns one
// ImageRequest per hint found, in document order. It is a small structural
// scanner rather than a whole-document regex: it only inspects the
// attribute text inside <img ...> tags, so hint-shaped text appearing in
// ordinary content nodes is never mistaken for a marker.
func ScanHints(html, slug string, nextID func() string) []ImageRequest {
	var out []ImageRequest
	rest := html
	for {
		start := strings.Index(rest, "<img")
		if start == -1 {
			break
		}
		end := strings.Index(rest[start:], ">")
		if end == -1 {
			break
		}
		tag := rest[start : start+end+1]
		rest = rest[start+end+1:]

		prompt, ok := attr(tag, "data-gen-hint")
		if !ok || prompt == "" {
			continue
		}
		size, ok := attr(tag, "data-gen-size")
		if !ok || !validSizes[size] {
			size = "card"
		}

		out = append(out, ImageRequest{
			ID:     nextID(),
			Prompt: prompt,
			Size:   size,
			Slug:   slug,
		})
	}
	return out
}

// attr extracts the value of a double-quoted HTML attribute from a single
// tag's source text.
func attr(tag, name string) (string, bool) {
	marker := name + `="`
	idx := strings.Index(tag, marker)
	if idx == -1 {
		return "", false
	}
	rest := tag[idx+len(marker):]
	end := strings.Index(rest, `"`)
	if end == -1 {
		return "", false
	}
	return rest[:end], true
}
