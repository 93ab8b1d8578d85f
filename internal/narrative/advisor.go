// Package narrative turns a scored unit into short, farmer-friendly advice
// using a language model. It is a best-effort collaborator: every failure
// degrades to a static fallback and never returns an error.
package narrative

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/agri-esg/internal/config"
	"github.com/sells-group/agri-esg/internal/model"
	"github.com/sells-group/agri-esg/internal/resilience"
	"github.com/sells-group/agri-esg/pkg/anthropic"
)

const (
	maxLines     = 4
	minLineChars = 20
)

// listMarker matches a leading bullet or "1." / "2)" style number. A number
// must be followed by a space so quantities like "10 bags" or "2.5 t" survive.
var listMarker = regexp.MustCompile(`^(?:[•*-]|\d+[.)])\s+`)

const systemPrompt = `You are a helpful farming advisor speaking to farmers with basic education.

Rules:
- Use simple words and no technical jargon or abbreviations.
- Give 3-4 specific, actionable tips they can do this season.
- Be encouraging and positive.
- Use actual numbers from their farm data.
- Each tip should be 1-2 short sentences, one tip per line.

Good: "Your fertilizer use is high. Try using 10 bags less next month to save money and help the soil."
Bad: "Optimize your nitrogen input to reduce your carbon footprint."`

// Advice is the narrative for one scored unit.
type Advice struct {
	Key      string   `json:"key"`
	Lines    []string `json:"lines"`
	Degraded bool     `json:"degraded"`
	Reason   string   `json:"reason,omitempty"`
}

// Options configures an Advisor.
type Options struct {
	Model             string
	MaxTokens         int64
	Temperature       float64
	Timeout           time.Duration
	RequestsPerMinute int
	Retry             resilience.RetryConfig
	BreakerThreshold  int
	BreakerCooldown   time.Duration
}

// OptionsFromConfig builds Options from the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Model:             cfg.Anthropic.Model,
		MaxTokens:         cfg.Anthropic.MaxTokens,
		Temperature:       cfg.Anthropic.Temperature,
		Timeout:           time.Duration(cfg.Narrative.TimeoutSecs) * time.Second,
		RequestsPerMinute: cfg.Anthropic.RequestsPerMinute,
		Retry:             resilience.FromConfig(cfg.Retry),
	}
}

// Advisor generates advice through an Anthropic client.
type Advisor struct {
	client  anthropic.Client
	opts    Options
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// NewAdvisor creates an Advisor. A nil client means no API key is configured
// and every call returns the setup fallback.
func NewAdvisor(client anthropic.Client, opts Options) *Advisor {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 600
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}
	if opts.Retry.ShouldRetry == nil {
		opts.Retry.ShouldRetry = retryable
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("anthropic", "narrative")
	}
	return &Advisor{
		client:  client,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		breaker: resilience.NewBreaker("anthropic", opts.BreakerThreshold, opts.BreakerCooldown),
	}
}

// Advise returns 3-4 recommendations for r, or a fallback.
func (a *Advisor) Advise(ctx context.Context, r model.ScoredRecord) Advice {
	key := r.Key.String()
	log := zap.L().With(zap.String("key", key))

	if a.client == nil {
		return Advice{Key: key, Lines: setupFallback(), Degraded: true, Reason: "no api key"}
	}
	if err := a.breaker.Allow(); err != nil {
		log.Warn("narrative: skipped, breaker open")
		return Advice{Key: key, Lines: Fallback(r), Degraded: true, Reason: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	text, err := a.generate(ctx, r)
	a.breaker.Record(err)
	if err != nil {
		log.Warn("narrative: falling back", zap.Error(err))
		return Advice{Key: key, Lines: Fallback(r), Degraded: true, Reason: err.Error()}
	}

	lines := ParseLines(text)
	if len(lines) == 0 {
		return Advice{Key: key, Lines: []string{"Unable to generate insights. Please try again."}, Degraded: true, Reason: "empty response"}
	}
	return Advice{Key: key, Lines: lines}
}

// AdviseAll advises every record in order. Calls are paced by the limiter.
func (a *Advisor) AdviseAll(ctx context.Context, scored []model.ScoredRecord) []Advice {
	out := make([]Advice, len(scored))
	for i, r := range scored {
		out[i] = a.Advise(ctx, r)
	}
	return out
}

func (a *Advisor) generate(ctx context.Context, r model.ScoredRecord) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "narrative: rate limit wait")
	}

	temp := a.opts.Temperature
	req := anthropic.MessageRequest{
		Model:       a.opts.Model,
		MaxTokens:   a.opts.MaxTokens,
		System:      systemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: Prompt(r)}},
		Temperature: &temp,
	}
	resp, err := resilience.DoVal(ctx, a.opts.Retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

func retryable(err error) bool {
	return resilience.IsTransient(err) || resilience.IsTransientHTTPStatus(anthropic.StatusCode(err))
}

// Prompt renders the farm data block sent to the model.
func Prompt(r model.ScoredRecord) string {
	var b strings.Builder
	b.WriteString("Farm Data:\n")
	fmt.Fprintf(&b, "- Overall Score: %.0f/100\n", r.ESGScore)
	fmt.Fprintf(&b, "- Environment Score: %.0f/100 (pollution, fertilizer, water)\n", r.EScore)
	fmt.Fprintf(&b, "- Social Score: %.0f/100 (workers, safety)\n", r.SScore)
	fmt.Fprintf(&b, "- Governance Score: %.0f/100\n", r.GScore)
	fmt.Fprintf(&b, "- Pollution: %s kg per hectare\n", metric(r.Metrics, model.KPIEmissionsPerHa, 1, 1))
	fmt.Fprintf(&b, "- Crop Yield: %s tonnes per hectare\n", metric(r.Metrics, model.KPIYieldPerHa, 1, 1))
	fmt.Fprintf(&b, "- Women Workers: %s%%\n", metric(r.Metrics, model.KPIFemaleShare, 100, 0))
	fmt.Fprintf(&b, "- Accidents: %s per 100 workers\n", metric(r.Metrics, model.KPIAccidentRate, 1, 1))
	b.WriteString("\nGive me 3-4 simple actions to improve my farm this season.")
	return b.String()
}

func metric(m model.Metrics, name string, scale float64, decimals int) string {
	v, ok := m.Get(name)
	if !ok {
		return "not recorded"
	}
	return fmt.Sprintf("%.*f", decimals, v*scale)
}

// ParseLines splits model output into advice lines: bullets and numbering
// are stripped, lines of 20 characters or fewer dropped, and at most four kept.
func ParseLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = listMarker.ReplaceAllString(strings.TrimSpace(line), "")
		if utf8.RuneCountInString(line) <= minLineChars {
			continue
		}
		out = append(out, line)
		if len(out) == maxLines {
			break
		}
	}
	return out
}

// Fallback is the static advice used when the model is unavailable.
func Fallback(r model.ScoredRecord) []string {
	return []string{
		"AI advice is temporarily unavailable.",
		fmt.Sprintf("Your overall score is %.0f/100.", math.Round(r.ESGScore)),
		"Try uploading your data again later or contact support.",
	}
}

func setupFallback() []string {
	return []string{
		"Set up your Anthropic API key to get personalised advice.",
		"Add anthropic.key to config.yaml or set AGRIESG_ANTHROPIC_KEY.",
		"Contact support for help with AI features.",
	}
}
