// Package classification maps free-text problem descriptions to catalog
// categories by blending keyword scoring with an optional AI opinion.
package classification

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cidadao-ai/citizen-intake/internal/catalog"
	"github.com/cidadao-ai/citizen-intake/internal/domain"
	"github.com/cidadao-ai/citizen-intake/internal/observability"
	"github.com/cidadao-ai/citizen-intake/internal/provider"
)

// Completer is the slice of the provider façade the engine needs.
type Completer interface {
	IsAvailable() bool
	GenerateCompletion(ctx context.Context, messages []provider.Message, opts provider.Options) (string, error)
}

// Default blending cut points.
const (
	DefaultProviderThreshold = 0.7
	DefaultKeywordThreshold  = 0.6
)

// Dependencies wires an Engine.
type Dependencies struct {
	Catalog           *catalog.Catalog
	Completer         Completer
	ProviderThreshold float64
	KeywordThreshold  float64
	Logger            *zap.Logger
	Metrics           *observability.Metrics
}

// Engine classifies descriptions against a fixed catalog.
type Engine struct {
	catalog           *catalog.Catalog
	ai                Completer
	providerThreshold float64
	keywordThreshold  float64
	logger            *zap.Logger
	metrics           *observability.Metrics
}

// NewEngine builds an engine. Zero thresholds take the defaults.
func NewEngine(deps Dependencies) *Engine {
	e := &Engine{
		catalog:           deps.Catalog,
		ai:                deps.Completer,
		providerThreshold: deps.ProviderThreshold,
		keywordThreshold:  deps.KeywordThreshold,
		logger:            observability.Named(deps.Logger, "classification"),
		metrics:           deps.Metrics,
	}
	if e.catalog == nil {
		e.catalog = catalog.Default()
	}
	if e.providerThreshold <= 0 {
		e.providerThreshold = DefaultProviderThreshold
	}
	if e.keywordThreshold <= 0 {
		e.keywordThreshold = DefaultKeywordThreshold
	}
	return e
}

// Catalog exposes the categories the engine classifies against.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// ClassifyByKeyword scores each category as matched keywords over keyword
// count and keeps the highest. Only a strictly greater score replaces the
// current best, so ties go to the category seen first.
func ClassifyByKeyword(text string, categories []domain.Category) domain.ClassificationResult {
	folded := Fold(text)
	best := domain.ClassificationResult{Method: domain.MethodKeyword}
	for _, cat := range categories {
		if len(cat.Keywords) == 0 {
			continue
		}
		matched := 0
		for _, kw := range cat.Keywords {
			if kw = Fold(kw); kw != "" && strings.Contains(folded, kw) {
				matched++
			}
		}
		score := float64(matched) / float64(len(cat.Keywords))
		if score > best.Confidence {
			best.Category = cat.Code
			best.Confidence = score
		}
	}
	return best
}

// ClassifyWithProvider asks the AI backend for "category|confidence". The
// second return is false when no provider is available, the call fails or
// the reply does not parse into a known category and a confidence in [0,1].
func (e *Engine) ClassifyWithProvider(ctx context.Context, text string) (domain.ClassificationResult, bool) {
	if e.ai == nil || !e.ai.IsAvailable() {
		return domain.ClassificationResult{}, false
	}
	reply, err := e.ai.GenerateCompletion(ctx, e.prompt(text), provider.Options{
		MaxTokens:   50,
		Temperature: provider.Float(0.3),
	})
	if err != nil {
		e.logger.Warn("provider classification failed", zap.Error(err))
		return domain.ClassificationResult{}, false
	}
	res, ok := parseReply(reply, e.catalog)
	if !ok {
		e.logger.Debug("unparseable provider classification", zap.String("reply", reply))
	}
	return res, ok
}

// Classify runs keyword scoring and, when a provider is available, the
// provider path, then picks:
//  1. the provider result if its confidence exceeds the provider threshold;
//  2. else the keyword result if its confidence exceeds the keyword threshold;
//  3. else the provider result if any, otherwise the keyword result.
func (e *Engine) Classify(ctx context.Context, text string) domain.ClassificationResult {
	keyword := ClassifyByKeyword(text, e.catalog.All())
	ai, ok := e.ClassifyWithProvider(ctx, text)

	var out domain.ClassificationResult
	switch {
	case ok && ai.Confidence > e.providerThreshold:
		out = ai
	case keyword.Confidence > e.keywordThreshold:
		out = keyword
	case ok:
		out = ai
		out.Method = domain.MethodBlended
	default:
		out = keyword
	}
	out = e.Decorate(out)
	e.metrics.RecordClassification(string(out.Method), out.Classified())
	return out
}

// Decorate copies priority, SLA and team from the catalog entry. An
// unclassified result gets the general defaults.
func (e *Engine) Decorate(res domain.ClassificationResult) domain.ClassificationResult {
	if cat, ok := e.catalog.Get(res.Category); ok {
		res.Category = cat.Code
		res.Priority = cat.Priority
		res.SLAHours = cat.SLAHours
		res.TeamName = cat.TeamName
		return res
	}
	res.Category = ""
	res.Priority = domain.DefaultPriority
	res.SLAHours = domain.DefaultSLAHours
	res.TeamName = domain.DefaultTeamName
	return res
}

// MatchCategory resolves a citizen-typed category name to a catalog entry,
// ignoring case, accents and spacing ("Assistência Social" matches
// assistencia_social).
func (e *Engine) MatchCategory(input string) (domain.ClassificationResult, bool) {
	want := compact(input)
	if want == "" {
		return domain.ClassificationResult{}, false
	}
	for _, cat := range e.catalog.All() {
		if want == compact(cat.Code) || want == compact(cat.DisplayName()) {
			return e.Decorate(domain.ClassificationResult{Category: cat.Code, Confidence: 1, Method: domain.MethodManual}), true
		}
	}
	for _, cat := range e.catalog.All() {
		if strings.Contains(want, compact(cat.Code)) || strings.Contains(want, compact(cat.DisplayName())) {
			return e.Decorate(domain.ClassificationResult{Category: cat.Code, Confidence: 1, Method: domain.MethodManual}), true
		}
	}
	return domain.ClassificationResult{}, false
}

func compact(s string) string {
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(Fold(s))
}

func (e *Engine) prompt(text string) []provider.Message {
	var b strings.Builder
	b.WriteString("Analise a seguinte mensagem de um cidadão e categorize-a:\n\n")
	fmt.Fprintf(&b, "Mensagem: %q\n\nCategorias disponíveis:\n", text)
	for _, cat := range e.catalog.All() {
		kws := cat.Keywords
		if len(kws) > 3 {
			kws = kws[:3]
		}
		desc := cat.Description
		if desc == "" {
			desc = cat.DisplayName()
		}
		fmt.Fprintf(&b, "- %s: %s (%s)\n", cat.Code, desc, strings.Join(kws, ", "))
	}
	b.WriteString("\nResponda apenas no formato: categoria|confiança\nExemplo: infraestrutura|0.85")

	return []provider.Message{
		{Role: provider.RoleSystem, Content: "Você é um especialista em categorização de problemas públicos."},
		{Role: provider.RoleUser, Content: b.String()},
	}
}

func parseReply(reply string, cat *catalog.Catalog) (domain.ClassificationResult, bool) {
	for _, line := range strings.Split(reply, "\n") {
		parts := strings.Split(strings.TrimSpace(line), "|")
		if len(parts) != 2 {
			continue
		}
		code := strings.ToLower(strings.TrimSpace(parts[0]))
		def, ok := cat.Get(code)
		if !ok {
			return domain.ClassificationResult{}, false
		}
		conf, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || math.IsNaN(conf) || conf < 0 || conf > 1 {
			return domain.ClassificationResult{}, false
		}
		return domain.ClassificationResult{Category: def.Code, Confidence: conf, Method: domain.MethodAI}, true
	}
	return domain.ClassificationResult{}, false
}
