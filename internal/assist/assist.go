// Package assist implements the AI query gateway: fingerprint-keyed
// response caching, bounded retries against OpenRouter, and permissive
// parsing of model output into structured recipe data.
package assist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dishdazzle/assistant/internal/cache"
	"github.com/dishdazzle/assistant/internal/fingerprint"
	"github.com/dishdazzle/assistant/internal/logger"
	"github.com/dishdazzle/assistant/internal/metrics"
	"github.com/dishdazzle/assistant/internal/openrouter"
	"github.com/dishdazzle/assistant/internal/retry"
)

// ErrRateLimited is returned when the local outbound request budget is
// exhausted before any upstream call is made.
var ErrRateLimited = errors.New("assist: local request rate limit exceeded")

// Chatter is the upstream completion client. *openrouter.Client satisfies
// it; tests substitute fakes.
type Chatter interface {
	Chat(ctx context.Context, req *openrouter.ChatRequest) (*openrouter.ChatResponse, error)
}

// Limiter gates outbound upstream calls. A nil limiter allows everything.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RecipeContext describes what the user is cooking right now. It shapes
// the system prompt for assistance queries.
type RecipeContext struct {
	Name        string `json:"name"`
	CurrentStep string `json:"current_step,omitempty"`
}

// Query is a single assistant request.
type Query struct {
	Kind fingerprint.Kind

	// Model optionally overrides the configured default ("deepseek" or
	// "llama"). Empty means use the default.
	Model string

	// Prompt carries the user text: the question for assist queries, or
	// the missing ingredient for substitution queries.
	Prompt string

	// Ingredients is the pantry contents for suggestion queries.
	Ingredients []string

	Recipe *RecipeContext

	// Conversation is the full message history for chat queries.
	Conversation []openrouter.Message
}

// Recipe is one structured recipe suggestion decoded from model output.
type Recipe struct {
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	Ingredients  []RecipeIngredient `json:"ingredients,omitempty"`
	Instructions []string           `json:"instructions,omitempty"`
	CookingTime  int                `json:"cooking_time,omitempty"`
	Difficulty   string             `json:"difficulty,omitempty"`
}

// RecipeIngredient is a single line item inside a suggested recipe.
type RecipeIngredient struct {
	Name      string `json:"name"`
	Amount    string `json:"amount,omitempty"`
	Available bool   `json:"available"`
}

// Substitution is one ingredient replacement decoded from model output.
type Substitution struct {
	Name  string `json:"name"`
	Ratio string `json:"ratio,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// Result is the outcome of one successful query. Raw always holds the
// model text; the structured fields are populated when parsing succeeds,
// otherwise Unparsed is set and the caller falls back to Raw.
type Result struct {
	RequestID string `json:"request_id"`
	Model     string `json:"model"`

	Raw           string         `json:"raw"`
	Recipes       []Recipe       `json:"recipes,omitempty"`
	Substitutions []Substitution `json:"substitutions,omitempty"`
	Unparsed      bool           `json:"unparsed,omitempty"`

	Cached bool             `json:"cached"`
	Usage  openrouter.Usage `json:"-"`
}

// Outcome is delivered on the channel returned by Submit.
type Outcome struct {
	Result *Result
	Err    error
}

// ValidationError marks a request the caller got wrong; it is never
// retried and maps to HTTP 400.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string   { return e.msg }
func (e *ValidationError) HTTPStatus() int { return http.StatusBadRequest }

func invalidf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Options configures a Gateway. Zero-value fields fall back to defaults;
// nil Cache disables caching entirely.
type Options struct {
	Cache      cache.Cache
	Exclusions *cache.ExclusionList
	Limiter    Limiter
	Retry      retry.Policy
	Metrics    *metrics.Registry
	Events     logger.EventSink
	Logger     *slog.Logger

	// DefaultModel is the user-facing model choice used when a query
	// does not override it.
	DefaultModel string

	CacheTTL time.Duration

	// ProviderTimeout bounds each individual upstream attempt.
	ProviderTimeout time.Duration
}

const (
	defaultCacheTTL        = time.Hour
	defaultProviderTimeout = 60 * time.Second
	defaultModel           = "deepseek"
)

// Gateway coordinates cache lookups, rate limiting, and retried upstream
// calls for assistant queries.
type Gateway struct {
	chatter    Chatter
	cache      cache.Cache
	exclusions *cache.ExclusionList
	limiter    Limiter
	retry      retry.Policy
	metrics    *metrics.Registry
	events     logger.EventSink
	log        *slog.Logger

	defaultModel    string
	cacheTTL        time.Duration
	providerTimeout time.Duration
}

func New(chatter Chatter, opts Options) *Gateway {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = defaultModel
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = defaultProviderTimeout
	}
	return &Gateway{
		chatter:         chatter,
		cache:           opts.Cache,
		exclusions:      opts.Exclusions,
		limiter:         opts.Limiter,
		retry:           opts.Retry,
		metrics:         opts.Metrics,
		events:          opts.Events,
		log:             opts.Logger,
		defaultModel:    opts.DefaultModel,
		cacheTTL:        opts.CacheTTL,
		providerTimeout: opts.ProviderTimeout,
	}
}

// Do runs a query to completion: cache lookup, then a retried upstream
// call on a miss. It blocks until a result is available or the context
// is cancelled.
func (g *Gateway) Do(ctx context.Context, q *Query) (*Result, error) {
	start := time.Now()
	g.metrics.IncInFlight()
	defer g.metrics.DecInFlight()

	res, cacheLabel, err := g.do(ctx, q)

	status := "ok"
	if err != nil {
		status = retry.Classify(err)
	}
	dur := time.Since(start)
	g.metrics.ObserveRequest(string(q.Kind), cacheLabel, status, dur)
	if g.events != nil {
		ev := logger.Event{
			Time:     start,
			Kind:     string(q.Kind),
			Cache:    cacheLabel,
			Status:   status,
			Duration: dur,
		}
		if res != nil {
			ev.RequestID = res.RequestID
			ev.Model = res.Model
			ev.InputTokens = res.Usage.InputTokens
			ev.OutputTokens = res.Usage.OutputTokens
		}
		g.events.Record(ev)
	}
	return res, err
}

// Submit runs the query asynchronously and returns a channel that yields
// exactly one Outcome. The channel is buffered so the worker never blocks
// on a caller that stopped listening. If ctx is cancelled before the query
// finishes, nothing is delivered and nothing is cached.
func (g *Gateway) Submit(ctx context.Context, q *Query) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		res, err := g.Do(ctx, q)
		if ctx.Err() != nil {
			return
		}
		out <- Outcome{Result: res, Err: err}
	}()
	return out
}

func (g *Gateway) do(ctx context.Context, q *Query) (*Result, string, error) {
	if err := validate(q); err != nil {
		return nil, "bypass", err
	}

	alias := q.Model
	if alias == "" {
		alias = g.defaultModel
	}
	modelID, err := openrouter.ResolveModel(alias)
	if err != nil {
		return nil, "bypass", invalidf("%v", err)
	}

	requestID := uuid.NewString()
	ingredients := fingerprint.NormalizeIngredients(q.Ingredients)

	cacheable := q.Kind.Cacheable() && g.cache != nil && !g.exclusions.Matches(modelID)
	var key string
	if cacheable {
		key = fingerprint.Key(fingerprint.Input{
			Kind:        q.Kind,
			Model:       modelID,
			Prompt:      fingerprint.NormalizeText(q.Prompt),
			Ingredients: ingredients,
		})
		if raw, ok := g.cache.Get(ctx, key); ok {
			g.metrics.CacheGetHit()
			res := &Result{RequestID: requestID, Model: modelID, Cached: true}
			parseInto(res, q.Kind, string(raw))
			return res, "hit", nil
		}
		g.metrics.CacheGetMiss()
	} else if q.Kind.Cacheable() {
		g.metrics.CacheGetBypass()
	}

	cacheLabel := "bypass"
	if cacheable {
		cacheLabel = "miss"
	}

	if g.limiter != nil {
		allowed, lerr := g.limiter.Allow(ctx, "openrouter")
		switch {
		case lerr != nil:
			// Limiter backend failure never blocks the user.
			g.metrics.RecordRateLimit("error")
			g.log.WarnContext(ctx, "rate_limiter_error", "error", lerr)
		case !allowed:
			g.metrics.RecordRateLimit("blocked")
			return nil, cacheLabel, ErrRateLimited
		default:
			g.metrics.RecordRateLimit("allowed")
		}
	}

	msgs := buildMessages(q, ingredients)

	var resp *openrouter.ChatResponse
	err = g.retry.Execute(ctx, func(ctx context.Context) error {
		actx, cancel := context.WithTimeout(ctx, g.providerTimeout)
		defer cancel()

		attemptStart := time.Now()
		r, cerr := g.chatter.Chat(actx, &openrouter.ChatRequest{
			Model:       modelID,
			Messages:    msgs,
			Temperature: defaultTemperature,
			MaxTokens:   maxTokensFor(q.Kind),
		})
		outcome := "success"
		if cerr != nil {
			outcome = retry.Classify(cerr)
		}
		g.metrics.ObserveUpstreamAttempt(outcome, time.Since(attemptStart))
		if cerr != nil {
			return cerr
		}
		resp = r
		return nil
	})
	if err != nil {
		g.log.WarnContext(ctx, "upstream_failed",
			"request_id", requestID,
			"kind", q.Kind,
			"model", modelID,
			"error", err,
		)
		return nil, cacheLabel, err
	}

	// A cancelled caller gets nothing: no result, no cache write.
	if ctx.Err() != nil {
		return nil, cacheLabel, ctx.Err()
	}

	if cacheable {
		if serr := g.cache.Set(ctx, key, []byte(resp.Content), g.cacheTTL); serr != nil {
			g.metrics.CacheSetError()
			g.log.WarnContext(ctx, "cache_set_error", "request_id", requestID, "error", serr)
		} else {
			g.metrics.CacheSetOK()
		}
	}

	res := &Result{
		RequestID: requestID,
		Model:     resp.Model,
		Usage:     resp.Usage,
	}
	if res.Model == "" {
		res.Model = modelID
	}
	parseInto(res, q.Kind, resp.Content)
	if res.Unparsed {
		g.metrics.RecordParseFailure(string(q.Kind))
		g.log.WarnContext(ctx, "response_parse_failed", "request_id", requestID, "kind", q.Kind)
	}
	g.metrics.AddTokens(string(q.Kind), resp.Usage.InputTokens, resp.Usage.OutputTokens)

	return res, cacheLabel, nil
}

func validate(q *Query) error {
	if q == nil {
		return invalidf("assist: nil query")
	}
	if !q.Kind.Valid() {
		return invalidf("assist: unknown query kind %q", q.Kind)
	}
	switch q.Kind {
	case fingerprint.KindSuggestions:
		if len(fingerprint.NormalizeIngredients(q.Ingredients)) == 0 {
			return invalidf("assist: suggestions require at least one ingredient")
		}
	case fingerprint.KindSubstitutions:
		if fingerprint.NormalizeText(q.Prompt) == "" {
			return invalidf("assist: substitutions require an ingredient name")
		}
	case fingerprint.KindAssist:
		if fingerprint.NormalizeText(q.Prompt) == "" {
			return invalidf("assist: a question is required")
		}
	case fingerprint.KindChat:
		if len(q.Conversation) == 0 {
			return invalidf("assist: chat requires at least one message")
		}
	}
	return nil
}
