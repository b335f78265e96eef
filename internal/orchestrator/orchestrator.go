package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/paolomoz/pagegen/internal/classify"
	"github.com/paolomoz/pagegen/internal/generate"
	"github.com/paolomoz/pagegen/internal/images"
	"github.com/paolomoz/pagegen/internal/knowledge"
	"github.com/paolomoz/pagegen/internal/logging"
	"github.com/paolomoz/pagegen/internal/render"
	"github.com/paolomoz/pagegen/internal/session"
)

// Deps bundles everything a single Stream call needs. Knowledge and
// Sessions are shared across requests; Images may be nil if image
// generation isn't configured, in which case image hints are left
// unfilled in the rendered HTML.
type Deps struct {
	Model     string
	Knowledge *knowledge.Store
	Sessions  session.Store
	Images    *images.Worker
	Metrics   *logging.ErrorMetrics
	Hooks     logging.Hooks
	Redactor  *logging.Redactor
}

// Stream runs the full classify -> retrieve -> generate -> render ->
// image-fill pipeline for query and emits the result as the fixed SSE
// sequence documented for the stream endpoint: classification, retrieval,
// generation-start, layout, one block per rendered section, zero or more
// image-ready events, then exactly one of complete or error. Any phase
// panic is recovered and turned into an error event; the stream is always
// left fully written.
func Stream(ctx context.Context, w EventWriter, requestID, sessionID, query string, deps Deps) {
	log := logging.New(logging.Context{RequestID: requestID, SessionID: sessionID, Query: query}, deps.Metrics, deps.Hooks, deps.Redactor)

	defer func() {
		if r := recover(); r != nil {
			log.Error("ProgrammerError", "orchestrator panic: %v", r)
			_ = w.WriteEvent("error", ErrorEvent{Message: "internal error generating this page"})
			log.RequestComplete(false)
		}
	}()

	sess, err := session.GetOrCreateSession(deps.Sessions, sessionID)
	if err != nil {
		log.Error("UpstreamUnavailable", "session lookup failed, proceeding without session context: %v", err)
		sess = nil
	}

	log.SetPhase("classification")
	c := classify.Classify(query)
	if writeErr := w.WriteEvent("classification", ClassificationEvent{
		Type:       string(c.Type),
		Confidence: c.Confidence,
		Flags:      flagNames(c),
		Budget:     c.Budget,
	}); writeErr != nil {
		return
	}
	log.PhaseComplete(log.Elapsed(), true)

	log.SetPhase("retrieval")
	retrieved := knowledge.Retrieve(deps.Knowledge, c, query, log)
	if writeErr := w.WriteEvent("retrieval", RetrievalEvent{
		Products: len(retrieved.Products),
		Faqs:     len(retrieved.Faqs),
		Videos:   len(retrieved.Videos),
		Recipes:  len(retrieved.Recipes),
	}); writeErr != nil {
		return
	}
	log.PhaseComplete(log.Elapsed(), true)

	log.SetPhase("generation")
	if writeErr := w.WriteEvent("generation-start", struct{}{}); writeErr != nil {
		return
	}
	result := generate.Generate(ctx, deps.Model, query, c, retrieved, sess, log)
	log.PhaseComplete(log.Elapsed(), len(result.Atoms) > 0)

	log.SetPhase("layout")
	blocks, skipped := render.RenderBlocks(result.Atoms, result.SuggestedBlocks)
	if writeErr := w.WriteEvent("layout", LayoutEvent{BlockCount: len(blocks), SkippedCount: skipped}); writeErr != nil {
		return
	}
	log.PhaseComplete(log.Elapsed(), true)

	for _, b := range blocks {
		if writeErr := w.WriteEvent("block", BlockEvent{Name: b.Name, HTML: b.HTML, SectionStyle: b.SectionStyle}); writeErr != nil {
			return
		}
	}

	if deps.Images != nil {
		if writeErr := emitImages(ctx, w, deps.Images, log, query, blocks); writeErr != nil {
			return
		}
	}

	if sess != nil {
		generatedURL := fmt.Sprintf("/generated/%s", images.Slugify(query))
		if err := session.AddQuery(deps.Sessions, sess, query, string(c.Type), generatedURL); err != nil {
			log.Warn("failed to persist session query history: %v", err)
		}
	}

	log.RequestComplete(true)
	_ = w.WriteEvent("complete", CompleteEvent{Success: true, BlockCount: len(blocks), ElapsedMs: log.Elapsed()})
}

// emitImages scans every rendered block's HTML for image hints, fills them
// through the bounded-concurrency worker, and emits one image-ready event
// per resolved id. It returns the write error, if any, so the caller can
// stop the stream the same way every other phase does.
func emitImages(ctx context.Context, w EventWriter, worker *images.Worker, log *logging.Logger, query string, blocks []render.RenderedBlock) error {
	log.SetPhase("images")
	slug := images.Slugify(query)

	var counter int
	nextID := func() string {
		counter++
		return fmt.Sprintf("img-%d", counter)
	}

	var reqs []images.ImageRequest
	for _, b := range blocks {
		reqs = append(reqs, images.ScanHints(b.HTML, slug, nextID)...)
	}
	if len(reqs) == 0 {
		return nil
	}

	resolved := worker.Fill(ctx, log, reqs)
	for _, req := range reqs {
		url, ok := resolved[req.ID]
		if !ok {
			continue
		}
		if err := w.WriteEvent("image-ready", ImageReadyEvent{ID: req.ID, URL: url}); err != nil {
			return err
		}
	}
	log.PhaseComplete(log.Elapsed(), true)
	return nil
}

func flagNames(c classify.Classification) []string {
	var names []string
	for _, f := range []classify.Flag{classify.FlagAccessibility, classify.FlagNoise, classify.FlagMedical, classify.FlagBudget, classify.FlagAllergy} {
		if c.HasFlag(f) {
			names = append(names, string(f))
		}
	}
	sort.Strings(names)
	return names
}
