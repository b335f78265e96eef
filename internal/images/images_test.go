package images

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"
)

func TestScanHintsExtractsMarkedImages(t *testing.T) {
	html := `<div><img data-gen-hint="a blender on a counter" data-gen-size="hero" src="x"></div>` +
		`<p>no hint here</p>` +
		`<img data-gen-hint="ginger root" data-gen-size="card">`

	n := 0
	reqs := ScanHints(html, "vitamix-5200", func() string {
		n++
		return "img" + strconv.Itoa(n)
	})

	if len(reqs) != 2 {
		t.Fatalf("expected 2 hints, got %d: %+v", len(reqs), reqs)
	}
	if reqs[0].Prompt != "a blender on a counter" || reqs[0].Size != "hero" {
		t.Fatalf("unexpected first request: %+v", reqs[0])
	}
	if reqs[1].Slug != "vitamix-5200" {
		t.Fatalf("expected slug propagated, got %+v", reqs[1])
	}
}

func TestScanHintsDefaultsUnknownSizeToCard(t *testing.T) {
	html := `<img data-gen-hint="thing" data-gen-size="bogus">`
	reqs := ScanHints(html, "s", func() string { return "id1" })
	if len(reqs) != 1 || reqs[0].Size != "card" {
		t.Fatalf("expected fallback to card size, got %+v", reqs)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Best Blender for Arthritis!!": "best-blender-for-arthritis",
		"  leading/trailing -- spaces ": "leading-trailing-spaces",
		"":                              "page",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakeStore struct {
	blobs map[string][]byte
}

func (f *fakeStore) PutBlob(slug, id string, content []byte, contentType string) error {
	if f.blobs == nil {
		f.blobs = make(map[string][]byte)
	}
	f.blobs[slug+"/"+id] = content
	return nil
}

func TestWorkerFillSucceedsAndCachesToken(t *testing.T) {
	store := &fakeStore{}
	exchangeCalls := 0
	exchange := func(ctx context.Context) (string, time.Duration, error) {
		exchangeCalls++
		return "tok", time.Hour, nil
	}
	generate := func(ctx context.Context, token, prompt, size string) ([]byte, error) {
		return []byte("png-bytes"), nil
	}

	w := NewWorker(store, generate, exchange)
	// One request per batch, so the second request runs after the first has
	// cached its token; concurrent refreshes within a batch are not deduplicated.
	w.SetConcurrency(1)
	reqs := []ImageRequest{
		{ID: "a", Prompt: "p1", Size: "hero", Slug: "s"},
		{ID: "b", Prompt: "p2", Size: "card", Slug: "s"},
	}

	results := w.Fill(context.Background(), nil, reqs)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %+v", results)
	}
	if results["a"] != "/images/s/a.png" {
		t.Fatalf("unexpected url: %s", results["a"])
	}
	if exchangeCalls != 1 {
		t.Fatalf("expected token exchange to be cached across requests, got %d calls", exchangeCalls)
	}
}

func TestWorkerFillFallsBackToSibling(t *testing.T) {
	store := &fakeStore{}
	exchange := func(ctx context.Context) (string, time.Duration, error) { return "tok", time.Hour, nil }
	generate := func(ctx context.Context, token, prompt, size string) ([]byte, error) {
		if prompt == "fails" {
			return nil, errors.New("upstream error")
		}
		return []byte("bytes"), nil
	}

	w := NewWorker(store, generate, exchange)
	reqs := []ImageRequest{
		{ID: "ok1", Prompt: "fine", Size: "card", Slug: "s"},
		{ID: "bad1", Prompt: "fails", Size: "card", Slug: "s"},
	}

	results := w.Fill(context.Background(), nil, reqs)
	if results["ok1"] != "/images/s/ok1.png" {
		t.Fatalf("unexpected sibling url: %+v", results)
	}
	if got := results["bad1"]; got != results["ok1"] {
		t.Fatalf("expected failed request to fall back to its only sibling, got %s want %s", got, results["ok1"])
	}
}

func TestWorkerFillFallsBackToStaticWhenNoSiblings(t *testing.T) {
	store := &fakeStore{}
	exchange := func(ctx context.Context) (string, time.Duration, error) { return "tok", time.Hour, nil }
	generate := func(ctx context.Context, token, prompt, size string) ([]byte, error) {
		return nil, fmt.Errorf("always fails")
	}

	w := NewWorker(store, generate, exchange)
	reqs := []ImageRequest{{ID: "only", Prompt: "x", Size: "hero", Slug: "s"}}

	results := w.Fill(context.Background(), nil, reqs)
	if results["only"] != "/images/fallback/hero-default.png" {
		t.Fatalf("expected static hero fallback, got %s", results["only"])
	}
}
