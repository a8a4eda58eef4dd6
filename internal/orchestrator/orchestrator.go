// Package orchestrator runs the fill pipeline end to end: classify, match
// statically, and resolve the remainder through an ordered strategy chain
// (cache, then the LLM path) with static-only output as the floor. An LLM
// failure degrades the result; it never fails the fill.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fieldpilot/internal/cache"
	"fieldpilot/internal/classify"
	"fieldpilot/internal/config"
	"fieldpilot/internal/learning"
	"fieldpilot/internal/llm"
	"fieldpilot/internal/logging"
	"fieldpilot/internal/match"
	"fieldpilot/internal/prompt"
	"fieldpilot/internal/retrieval"
	"fieldpilot/internal/types"
	"fieldpilot/internal/validate"
)

// Source labels how a result's mappings were produced as a whole.
const (
	SourceStatic = "static" // profile matching only
	SourceCached = "cached" // static plus a cache replay
	SourceHybrid = "hybrid" // static plus validated LLM output
)

// Result is the outcome of one fill resolution.
type Result struct {
	Mappings []types.FieldMapping
	Source   string

	// Unresolved lists fillable fields no tier produced a value for.
	Unresolved []types.FieldSignature

	// FallbackReason is set when the LLM path was wanted but unavailable
	// or rejected, and the result fell back to earlier tiers.
	FallbackReason string

	TokensUsed int
	Issues     []validate.Issue
}

// Orchestrator coordinates the resolution tiers. Fills are serialized per
// profile: starting a fill while one is in flight for the same profile
// cancels the in-flight one and takes over.
type Orchestrator struct {
	chat        llm.ChatClient // nil when no provider is configured
	temperature float64
	maxTokens   int

	assembler *retrieval.Assembler
	prompts   *prompt.Builder
	cache     *cache.Service
	learning  *learning.Service
	progress  ProgressFunc

	mu       sync.Mutex
	inflight map[string]*flight
}

// flight is one registered in-flight fill.
type flight struct {
	cancel context.CancelFunc
}

// Option adjusts orchestrator construction.
type Option func(*Orchestrator)

// WithProgress installs a progress event sink.
func WithProgress(sink ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = sink }
}

// New wires the orchestrator. chat may be nil; the orchestrator then serves
// static and cached results only.
func New(cfg config.LLMConfig, chat llm.ChatClient, assembler *retrieval.Assembler, prompts *prompt.Builder, ca *cache.Service, le *learning.Service, opts ...Option) *Orchestrator {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultLLMConfig().MaxTokens
	}
	o := &Orchestrator{
		chat:        chat,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		assembler:   assembler,
		prompts:     prompts,
		cache:       ca,
		learning:    le,
		inflight:    make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Detect classifies raw field descriptors into a form signature. Split out
// from Resolve so callers holding already-classified forms skip it.
func (o *Orchestrator) Detect(domain string, descs []types.FieldDescriptor) types.FormSignature {
	return classify.ClassifyForm(domain, descs)
}

// strategyFn attempts to resolve the still-unmapped fields. It returns an
// overlay mapping set, tokens spent, and the source label to report when it
// contributed. A nil overlay with nil error means the strategy passed.
type strategyFn func(ctx context.Context, form types.FormSignature, profile *types.Profile, unmapped []types.FieldSignature, t *tracker) ([]types.FieldMapping, int, string, error)

// Resolve runs a fill for one form. The returned result always carries the
// best mappings available: LLM and cache failures are folded into
// FallbackReason, and only context cancellation or a broken store surface
// as errors.
func (o *Orchestrator) Resolve(ctx context.Context, form types.FormSignature, profile *types.Profile, useCache bool) (*Result, error) {
	ctx, release, err := o.takeover(ctx, profile.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	timer := logging.StartTimer(logging.CategoryResolve, "Resolve")
	defer timer.Stop()

	t := newTracker(profile.ID, o.progress)
	t.to(PhaseAnalyzing, fmt.Sprintf("(%d fields on %s)", len(form.Fields), form.Domain))

	fillable := classify.FilterSensitive(form.Fields)
	result := &Result{Source: SourceStatic}
	result.Mappings = match.Match(fillable, profile)
	unmapped := unmappedFields(fillable, result.Mappings)

	logging.Resolve("static tier mapped %d/%d fields on %s", len(result.Mappings), len(fillable), form.Domain)

	// Static coverage is complete: no network, no cache writes.
	if len(unmapped) == 0 {
		t.to(PhaseFilling, "")
		t.to(PhaseAwaitingReview, "static coverage complete")
		return result, nil
	}

	for _, strat := range []strategyFn{o.fromCache(useCache), o.fromLLM(useCache)} {
		if err := ctx.Err(); err != nil {
			t.fail("canceled")
			return nil, err
		}
		overlay, tokens, source, err := strat(ctx, form, profile, unmapped, t)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				t.fail("canceled")
				return nil, err
			}
			// Strategy failures degrade, they do not abort.
			result.FallbackReason = err.Error()
			continue
		}
		if overlay == nil {
			continue
		}
		result.Mappings = types.MergeMappings(result.Mappings, overlay)
		result.Source = source
		result.TokensUsed += tokens
		unmapped = unmappedFields(fillable, result.Mappings)
		break
	}

	result.Unresolved = unmapped
	t.to(PhaseFilling, fmt.Sprintf("(%d mappings)", len(result.Mappings)))
	t.to(PhaseAwaitingReview, "")
	logging.Resolve("resolved %s via %s: %d mappings, %d unresolved, %d tokens",
		form.Domain, result.Source, len(result.Mappings), len(result.Unresolved), result.TokensUsed)
	return result, nil
}

// fromCache replays a prior resolution for the same form shape.
func (o *Orchestrator) fromCache(useCache bool) strategyFn {
	return func(_ context.Context, form types.FormSignature, profile *types.Profile, unmapped []types.FieldSignature, _ *tracker) ([]types.FieldMapping, int, string, error) {
		if !useCache || o.cache == nil {
			return nil, 0, "", nil
		}
		entry, ok := o.cache.Get(profile.ID, form.Domain, unmapped)
		if !ok {
			return nil, 0, "", nil
		}
		return entry.Mappings, 0, SourceCached, nil
	}
}

// fromLLM runs retrieval, prompting, generation, and validation.
func (o *Orchestrator) fromLLM(useCache bool) strategyFn {
	return func(ctx context.Context, form types.FormSignature, profile *types.Profile, unmapped []types.FieldSignature, t *tracker) ([]types.FieldMapping, int, string, error) {
		if o.chat == nil {
			return nil, 0, "", llm.ErrNotConfigured
		}

		t.to(PhaseRetrieving, fmt.Sprintf("(%d unmapped)", len(unmapped)))
		retrieved, err := o.assembler.Assemble(ctx, profile.ID, form.Domain, unmapped)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, "", ctx.Err()
			}
			// Retrieval is additive context; proceed without it.
			logging.Resolve("retrieval unavailable, prompting without context: %v", err)
			retrieved = &retrieval.Context{}
		}

		t.to(PhaseInferring, "")
		userMsg, err := o.prompts.Build(profile, unmapped, retrieved)
		if err != nil {
			return nil, 0, "", fmt.Errorf("prompt build failed: %w", err)
		}
		completion, err := o.chat.Complete(ctx, llm.Request{
			Messages: []llm.Message{
				{Role: "system", Content: prompt.SystemInstruction},
				{Role: "user", Content: userMsg},
			},
			Temperature: o.temperature,
			MaxTokens:   o.maxTokens,
			JSONMode:    true,
		})
		if err != nil {
			return nil, 0, "", err
		}

		// Validate against the full form, not just the unmapped fields: a
		// response naming a denylisted field id must block even though such
		// fields are never prompted for.
		res := validate.Validate(completion.Text, form)
		if !res.Valid() {
			reason := res.BlockingReason()
			if reason == "" {
				reason = "model returned no usable mappings"
			}
			return nil, 0, "", fmt.Errorf("llm response rejected: %s", reason)
		}

		tokens := completion.Usage.TotalTokens
		if useCache && o.cache != nil && ctx.Err() == nil {
			if err := o.cache.Put(profile.ID, form.Domain, unmapped, res.Mappings, tokens); err != nil {
				logging.Resolve("cache write failed: %v", err)
			}
		}
		return res.Mappings, tokens, SourceHybrid, nil
	}
}

// ReportEdit buffers a user correction made during review.
func (o *Orchestrator) ReportEdit(profile *types.Profile, field types.FieldSignature, value string, originalConfidence float64) {
	o.learning.RecordEdit(profile.ID, field, value, originalConfidence)
}

// CommitReview ends the review phase, learning from any buffered edits.
func (o *Orchestrator) CommitReview(ctx context.Context, profile *types.Profile, domain string) error {
	t := newTracker(profile.ID, o.progress)
	if o.learning.PendingCount(profile.ID) == 0 {
		t.to(PhaseIdle, "review closed, nothing to learn")
		return nil
	}
	t.to(PhaseLearning, "")
	if _, err := o.learning.CommitEdits(ctx, profile, domain); err != nil {
		t.fail(err.Error())
		return err
	}
	t.to(PhaseIdle, "")
	return nil
}

// CancelReview discards buffered edits without learning.
func (o *Orchestrator) CancelReview(profileID string) {
	o.learning.CancelEdits(profileID)
}

// takeover registers a fill for the profile, canceling any in-flight fill
// for the same profile first. The returned release only unregisters its own
// flight, so a superseded fill cannot evict its successor.
func (o *Orchestrator) takeover(ctx context.Context, profileID string) (context.Context, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	f := &flight{cancel: cancel}

	o.mu.Lock()
	if prior, ok := o.inflight[profileID]; ok {
		logging.Resolve("taking over in-flight fill for profile %s", profileID)
		prior.cancel()
	}
	o.inflight[profileID] = f
	o.mu.Unlock()

	release := func() {
		o.mu.Lock()
		if o.inflight[profileID] == f {
			delete(o.inflight, profileID)
		}
		o.mu.Unlock()
		cancel()
	}
	return ctx, release, nil
}

// unmappedFields returns the fields with no mapping yet, preserving form
// order.
func unmappedFields(fields []types.FieldSignature, mappings []types.FieldMapping) []types.FieldSignature {
	mapped := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		mapped[m.Field.ID] = true
	}
	out := make([]types.FieldSignature, 0, len(fields))
	for _, f := range fields {
		if !mapped[f.ID] {
			out = append(out, f)
		}
	}
	return out
}
