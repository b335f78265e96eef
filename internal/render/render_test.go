package render

import (
	"strings"
	"testing"
)

func TestRenderBlocksOrdersHeroFirstCTALast(t *testing.T) {
	atoms := []Atom{
		{Kind: KindHero, Title: "Find your blender", CTAText: "Shop now"},
		{Kind: KindCard, Title: "Vitamix 5200", Body: "A classic workhorse."},
		{Kind: KindFaq, Question: "Is it loud?", Answer: "Moderately."},
	}
	suggested := []string{BlockCards, BlockFaq, BlockCTA, BlockHero}

	blocks, skipped := RenderBlocks(atoms, suggested)
	if skipped != 0 {
		t.Fatalf("expected no skipped blocks, got %d", skipped)
	}
	if len(blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d: %+v", len(blocks), blocks)
	}
	if blocks[0].Name != BlockHero {
		t.Fatalf("expected hero first, got %s", blocks[0].Name)
	}
	if blocks[len(blocks)-1].Name != BlockCTA {
		t.Fatalf("expected cta-section last, got %s", blocks[len(blocks)-1].Name)
	}
}

func TestRenderBlocksSkipsEmptyBlocks(t *testing.T) {
	atoms := []Atom{
		{Kind: KindHero, Title: "Find your blender"},
	}
	suggested := []string{BlockHero, BlockFaq}

	blocks, skipped := RenderBlocks(atoms, suggested)
	if skipped != 1 {
		t.Fatalf("expected 1 skipped block for missing faqs, got %d", skipped)
	}
	for _, b := range blocks {
		if b.Name == BlockFaq {
			t.Fatalf("expected empty faq block to be dropped")
		}
	}
}

func TestRenderBlocksUnknownNameDropped(t *testing.T) {
	atoms := []Atom{{Kind: KindHero, Title: "Hi"}}
	blocks, _ := RenderBlocks(atoms, []string{"not-a-real-block", BlockHero})
	if len(blocks) != 1 {
		t.Fatalf("expected unknown block name to be silently dropped, got %+v", blocks)
	}
}

func TestRenderCardsBindsImageHint(t *testing.T) {
	atoms := []Atom{{Kind: KindCard, Title: "Vitamix 5200", Body: "Great blender", ImageHint: "a blender on a counter"}}
	blocks, _ := RenderBlocks(atoms, []string{BlockCards})
	if len(blocks) != 1 {
		t.Fatalf("expected 1 card block")
	}
	if !strings.Contains(blocks[0].HTML, `data-gen-hint="a blender on a counter"`) {
		t.Fatalf("expected image hint attribute in rendered HTML, got %s", blocks[0].HTML)
	}
}

func TestWrapPageProducesOneDivPerSection(t *testing.T) {
	blocks := []RenderedBlock{
		{Name: BlockHero, HTML: `<div class="hero"><div><h1>Hi</h1></div></div>`},
	}
	page := WrapPage(blocks)
	if !strings.Contains(page, "<main>") {
		t.Fatalf("expected <main> wrapper, got %s", page)
	}
	if !strings.Contains(page, `class="hero"`) {
		t.Fatalf("expected hero block embedded, got %s", page)
	}
}
