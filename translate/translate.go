// Package translate drives translation runs: one baseline content tree is
// sent to a chat-completion model, the raw reply is saved for recovery, and
// the repaired reply is merged against the baseline before it is persisted.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/lumenworks/sitetrans/artifact"
	"github.com/lumenworks/sitetrans/jsonrepair"
	"github.com/lumenworks/sitetrans/langmeta"
	"github.com/lumenworks/sitetrans/merge"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrTruncatedResponse means the model stopped at its token limit. The
	// reply is not repaired because text near the cut is unreliable.
	ErrTruncatedResponse = errors.New("model response truncated")
	// ErrInvalidTranslationJSON means the repaired reply still did not
	// decode into a JSON object.
	ErrInvalidTranslationJSON = errors.New("invalid translation JSON")
	// ErrRemoteCall wraps network, auth and timeout failures talking to
	// the completion endpoint.
	ErrRemoteCall = errors.New("remote call failed")
)

// InvalidJSONError carries the location of the raw reply so an operator can
// inspect it.
type InvalidJSONError struct {
	RawPath string
	Err     error
}

func (e *InvalidJSONError) Error() string {
	if e.RawPath == "" {
		return fmt.Sprintf("%v: %v", ErrInvalidTranslationJSON, e.Err)
	}
	return fmt.Sprintf("%v: %v (raw response: %s)", ErrInvalidTranslationJSON, e.Err, e.RawPath)
}

func (e *InvalidJSONError) Unwrap() []error {
	return []error{ErrInvalidTranslationJSON, e.Err}
}

// ---------------------------------------------------------------------------
// Remote completion capability
// ---------------------------------------------------------------------------

// FinishReason tells whether the model finished on its own.
type FinishReason int

const (
	FinishComplete FinishReason = iota
	FinishLength
	FinishOther
)

func (f FinishReason) String() string {
	switch f {
	case FinishComplete:
		return "complete"
	case FinishLength:
		return "length"
	default:
		return "other"
	}
}

// Request is one system+user exchange.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float32
}

// Completion is the model's reply.
type Completion struct {
	Text         string
	FinishReason FinishReason
	TotalTokens  int
}

// Completer invokes a chat-completion model.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// Lock tracks which baselines were already translated per language.
type Lock interface {
	IsChanged(target, key, sourceContent string) bool
	Update(target, key, sourceContent string)
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

// Budget selects how the response token ceiling is computed.
type Budget int

const (
	// BudgetDocument scales the ceiling with the payload size.
	BudgetDocument Budget = iota
	// BudgetRecord uses the fixed Options.RecordMaxTokens ceiling.
	BudgetRecord
)

// Sink persists a merged tree.
type Sink interface {
	Persist(ctx context.Context, tree any) (artifact.Receipt, error)
}

// ArtifactSink writes the merged tree as a named artifact.
type ArtifactSink struct {
	Store artifact.Store
	Name  string
}

func (s ArtifactSink) Persist(ctx context.Context, tree any) (artifact.Receipt, error) {
	return s.Store.PutArtifact(ctx, s.Name, tree)
}

// Job is one translation run.
type Job struct {
	// Scope identifies the content in logs and the lock file, e.g. "ui" or
	// "service/cloud-migration".
	Scope string
	// Lang is the target language code.
	Lang string
	// Baseline is the source-language tree; it must be a JSON object.
	Baseline map[string]any
	Budget   Budget
	// Artifact names the production artifact; the raw reply is saved
	// under artifact.RawName(Artifact).
	Artifact string
	Sink     Sink
}

// Result reports the outcome of one run. Err is nil exactly when Success
// is set.
type Result struct {
	Scope         string
	Lang          string
	Success       bool
	Skipped       bool
	Err           error
	Tokens        int
	Substitutions []merge.Substitution
	Hydrated      []string
	RawPath       string
	ArtifactPath  string
	// Fallback is set when any artifact of the run went to the recovery
	// directory.
	Fallback bool
	Duration time.Duration

	called bool
}

// ---------------------------------------------------------------------------
// Translation options
// ---------------------------------------------------------------------------

// Options controls translation behavior.
type Options struct {
	// Logger receives one structured summary per run.
	Logger *zap.Logger
	// Temperature is the sampling temperature. Default: 0.3.
	Temperature float32
	// RecordMaxTokens is the response ceiling for BudgetRecord jobs. Default: 8000.
	RecordMaxTokens int
	// Timeout bounds each remote call. Default: 120s.
	Timeout time.Duration
	// RequestDelay is the pause between remote calls in a batch.
	RequestDelay time.Duration
	// Acronyms are left untranslated. Default: DefaultAcronyms.
	Acronyms []string
	// Hydrations are applied to every candidate before merging.
	Hydrations []HydrationRule
	// Prompts overrides the built-in prompts by name (see PromptDocument).
	Prompts map[string]string
	// Lock, when set, skips jobs whose baseline is unchanged since the
	// last successful run.
	Lock Lock
	// Force disables Lock skipping.
	Force bool
	// OnResult is called after each job of a batch.
	OnResult func(done, total int, res Result)
}

func (o *Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

func (o *Options) effectiveTemperature() float32 {
	if o.Temperature > 0 {
		return o.Temperature
	}
	return 0.3
}

func (o *Options) effectiveRecordMaxTokens() int {
	if o.RecordMaxTokens > 0 {
		return o.RecordMaxTokens
	}
	return 8000
}

func (o *Options) effectiveTimeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return 120 * time.Second
}

func (o *Options) effectiveAcronyms() []string {
	if len(o.Acronyms) > 0 {
		return o.Acronyms
	}
	return DefaultAcronyms
}

func (o *Options) prompt(budget Budget) string {
	name := PromptDocument
	if budget == BudgetRecord {
		name = PromptRecord
	}
	if p, ok := o.Prompts[name]; ok && p != "" {
		return p
	}
	return DefaultPrompts()[name]
}

// ---------------------------------------------------------------------------
// Budget
// ---------------------------------------------------------------------------

const (
	charsPerToken     = 3.5
	documentHeadroom  = 4000
	documentMinTokens = 32000
	documentMaxTokens = 64000
)

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / charsPerToken))
}

// DocumentCeiling is the response ceiling for a whole-document payload.
// Translations can run longer than the source, so it keeps headroom above
// the estimate.
func DocumentCeiling(estimate int) int {
	return min(max(estimate+documentHeadroom, documentMinTokens), documentMaxTokens)
}

// Estimate describes the request a job would send.
type Estimate struct {
	Scope        string
	Lang         string
	PayloadBytes int
	Tokens       int
	MaxTokens    int
	Skipped      bool
}

// ---------------------------------------------------------------------------
// Translator
// ---------------------------------------------------------------------------

// Translator runs jobs against one completer. Raw replies go to raw.
type Translator struct {
	client Completer
	raw    artifact.Store
	opts   Options
}

// New returns a Translator.
func New(client Completer, raw artifact.Store, opts Options) *Translator {
	return &Translator{client: client, raw: raw, opts: opts}
}

// Plan reports what Run would send for job without calling the model.
func (t *Translator) Plan(job Job) (Estimate, error) {
	payload, err := compact(job.Baseline)
	if err != nil {
		return Estimate{}, err
	}
	est := Estimate{
		Scope:        job.Scope,
		Lang:         job.Lang,
		PayloadBytes: len(payload),
		Tokens:       EstimateTokens(payload),
		MaxTokens:    t.maxTokens(job.Budget, payload),
		Skipped:      t.unchanged(job, payload),
	}
	return est, nil
}

// Run executes one job. It never panics on bad model output and never
// returns early without a Result; failures are reported in Result.Err.
func (t *Translator) Run(ctx context.Context, job Job) Result {
	start := time.Now()
	res := t.run(ctx, job)
	res.Duration = time.Since(start)
	t.logResult(res)
	return res
}

func (t *Translator) run(ctx context.Context, job Job) Result {
	res := Result{Scope: job.Scope, Lang: job.Lang}
	fail := func(err error) Result {
		res.Err = err
		return res
	}

	payload, err := compact(job.Baseline)
	if err != nil {
		return fail(err)
	}
	if t.unchanged(job, payload) {
		res.Success = true
		res.Skipped = true
		return res
	}

	req := Request{
		System:      t.systemPrompt(job),
		User:        payload,
		MaxTokens:   t.maxTokens(job.Budget, payload),
		Temperature: t.opts.effectiveTemperature(),
	}

	callCtx, cancel := context.WithTimeout(ctx, t.opts.effectiveTimeout())
	comp, err := t.client.Complete(callCtx, req)
	cancel()
	res.called = true
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrRemoteCall, err))
	}
	res.Tokens = comp.TotalTokens

	// The raw reply is saved before anything can fail on it.
	rawName := artifact.RawName(job.Artifact)
	if rec, err := t.raw.PutRaw(ctx, rawName, comp.Text); err != nil {
		t.opts.logger().Error("raw response not saved",
			zap.String("scope", job.Scope),
			zap.String("lang", job.Lang),
			zap.String("artifact", rawName),
			zap.Error(err),
		)
	} else {
		res.RawPath = rec.Path
		res.Fallback = rec.Fallback
	}

	if comp.FinishReason == FinishLength {
		return fail(fmt.Errorf("%w at %d tokens (ceiling %d)", ErrTruncatedResponse, comp.TotalTokens, req.MaxTokens))
	}

	candidate, err := decodeCandidate(comp.Text)
	if err != nil {
		if errors.Is(err, jsonrepair.ErrNoJSON) {
			return fail(fmt.Errorf("%w (raw response: %s)", err, res.RawPath))
		}
		return fail(&InvalidJSONError{RawPath: res.RawPath, Err: err})
	}

	res.Hydrated = Hydrate(job.Baseline, candidate, t.opts.Hydrations)
	for _, path := range res.Hydrated {
		t.opts.logger().Warn("hydrated section from top-level key",
			zap.String("scope", job.Scope),
			zap.String("lang", job.Lang),
			zap.String("path", path),
		)
	}

	merged := merge.Merge(job.Baseline, candidate)
	res.Substitutions = merged.Substitutions

	rec, err := job.Sink.Persist(ctx, merged.Tree)
	if err != nil {
		return fail(err)
	}
	res.ArtifactPath = rec.Path
	res.Fallback = res.Fallback || rec.Fallback
	res.Success = true

	// Output parked in the recovery directory is retried on the next run.
	if t.opts.Lock != nil && !rec.Fallback {
		t.opts.Lock.Update(job.Lang, job.Scope, payload)
	}
	return res
}

func (t *Translator) unchanged(job Job, payload string) bool {
	if t.opts.Lock == nil || t.opts.Force {
		return false
	}
	return !t.opts.Lock.IsChanged(job.Lang, job.Scope, payload)
}

func (t *Translator) maxTokens(budget Budget, payload string) int {
	if budget == BudgetRecord {
		return t.opts.effectiveRecordMaxTokens()
	}
	return DocumentCeiling(EstimateTokens(payload))
}

func (t *Translator) systemPrompt(job Job) string {
	return renderPrompt(t.opts.prompt(job.Budget), langmeta.EnglishName(job.Lang), t.opts.effectiveAcronyms())
}

func (t *Translator) logResult(res Result) {
	fields := []zap.Field{
		zap.String("scope", res.Scope),
		zap.String("lang", res.Lang),
		zap.Int("tokens", res.Tokens),
		zap.Duration("duration", res.Duration),
	}
	log := t.opts.logger()
	switch {
	case res.Skipped:
		log.Info("translation skipped, baseline unchanged", fields...)
	case res.Success:
		fields = append(fields,
			zap.String("status", "ok"),
			zap.Int("substitutions", len(res.Substitutions)),
			zap.String("artifact", res.ArtifactPath),
		)
		if res.Fallback {
			fields = append(fields, zap.Bool("fallback", true))
		}
		log.Info("translation finished", fields...)
		for _, s := range res.Substitutions {
			log.Debug("substituted baseline value",
				zap.String("scope", res.Scope),
				zap.String("lang", res.Lang),
				zap.Stringer("path", s.Path),
				zap.String("reason", string(s.Reason)),
			)
		}
	default:
		fields = append(fields,
			zap.String("status", "failed"),
			zap.Error(res.Err),
		)
		if res.RawPath != "" {
			fields = append(fields, zap.String("raw", res.RawPath))
		}
		log.Error("translation failed", fields...)
	}
}

// ---------------------------------------------------------------------------
// Payload helpers
// ---------------------------------------------------------------------------

// compact renders tree without whitespace or HTML escaping.
func compact(tree map[string]any) (string, error) {
	if tree == nil {
		return "", errors.New("baseline is empty")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tree); err != nil {
		return "", fmt.Errorf("encoding baseline: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// decodeCandidate turns a model reply into an object tree.
func decodeCandidate(text string) (map[string]any, error) {
	repaired, err := jsonrepair.Repair(jsonrepair.StripFences(text))
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(strings.NewReader(repaired))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top-level value is %T, want object", v)
	}
	return obj, nil
}
