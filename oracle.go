package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Verdict is the oracle's judgment for one candidate item.
type Verdict struct {
	ItemID        int64  `json:"id"`
	Score         int    `json:"score"`
	Category      string `json:"signal_type"`
	Rationale     string `json:"rationale"`
	DealRelevance string `json:"deal_relevance"`
}

// SurfaceDecision is the oracle's judgment on whether a promoted signal
// should be pushed to humans now.
type SurfaceDecision struct {
	SignalID         int64  `json:"signal_id"`
	Surface          bool   `json:"surface"`
	Urgency          string `json:"urgency"`
	ActionSuggestion string `json:"action_suggestion"`
	DossierUpdate    string `json:"dossier_update_needed"`
	Rationale        string `json:"rationale"`
}

// PipelineContext is the compact context handed to the oracle with every
// batch: active deal names plus tracked subjects and their threat levels.
type PipelineContext struct {
	Deals    []Deal
	Subjects []Subject
}

func (p PipelineContext) dealsBlock() string {
	if len(p.Deals) == 0 {
		return "None"
	}
	var b strings.Builder
	deals := p.Deals
	if len(deals) > 10 {
		deals = deals[:10]
	}
	for _, d := range deals {
		fmt.Fprintf(&b, "- %s (%s)\n", d.AccountName, d.Stage)
	}
	return b.String()
}

func (p PipelineContext) subjectsBlock() string {
	if len(p.Subjects) == 0 {
		return "None"
	}
	var b strings.Builder
	subjects := p.Subjects
	if len(subjects) > 15 {
		subjects = subjects[:15]
	}
	for _, s := range subjects {
		fmt.Fprintf(&b, "- %s (%s, %s)\n", s.Name, s.Category, s.ThreatLevel)
	}
	return b.String()
}

// Classifier is the relevance oracle capability. Implementations are
// opaque judgment services; the pipeline trusts their output
// probabilistically and survives their failure modes.
type Classifier interface {
	// ScoreBatch returns one verdict per parseable item. An unreachable
	// oracle returns an error and the items stay unscored for the next
	// cycle; a malformed element is dropped, not the whole batch.
	ScoreBatch(ctx context.Context, items []CandidateItem, pctx PipelineContext) ([]Verdict, error)

	// SurfaceBatch decides which promoted signals should be pushed now.
	SurfaceBatch(ctx context.Context, signals []Signal, pctx PipelineContext) ([]SurfaceDecision, error)
}

// --- Anthropic implementation ---

type anthropicOracle struct {
	model string

	// call is swapped out in tests.
	call func(ctx context.Context, prompt string) (string, error)

	client anthropic.Client
}

func newAnthropicOracle(cfg Config) *anthropicOracle {
	o := &anthropicOracle{
		model:  cfg.OracleModel,
		client: anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey)),
	}
	o.call = o.callAnthropic
	return o
}

func NewClassifier(cfg Config) Classifier {
	return newAnthropicOracle(cfg)
}

func (o *anthropicOracle) callAnthropic(ctx context.Context, prompt string) (string, error) {
	message, err := o.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(o.model),
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("oracle API error: %w", err)
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("oracle response size=%d tokens_in=%d tokens_out=%d",
				len(block.Text), message.Usage.InputTokens, message.Usage.OutputTokens)
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in oracle response")
}

// callWithWebSearch is used by the search connector and the people sweep;
// web search interleaves tool blocks with text blocks, so all text parts
// are joined.
func (o *anthropicOracle) callWithWebSearch(ctx context.Context, prompt string) (string, error) {
	message, err := o.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(o.model),
		MaxTokens: 2048,
		Tools: []anthropic.ToolUnionParam{{
			OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{
				MaxUses: anthropic.Int(3),
			},
		}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("oracle API error: %w", err)
	}
	var parts []string
	for _, block := range message.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text content in oracle response")
	}
	return strings.Join(parts, "\n"), nil
}

func (o *anthropicOracle) ScoreBatch(ctx context.Context, items []CandidateItem, pctx PipelineContext) ([]Verdict, error) {
	if len(items) == 0 {
		return nil, nil
	}

	var itemLines strings.Builder
	for _, item := range items {
		date := ""
		if !item.PublishedAt.IsZero() {
			date = item.PublishedAt.Format("2006-01-02")
		}
		fmt.Fprintf(&itemLines, "[%d] %s | Source: %s | Date: %s\n",
			item.ID, strings.TrimSpace(item.Headline), item.SourceName, date)
	}

	prompt := fmt.Sprintf(`Score these news items for competitive-intelligence relevance.

Active deals:
%s
Tracked subjects:
%s
News items:
%s
Return a JSON array, one entry per item:
[{"id": <item id>, "score": <1-100>, "signal_type": "news|product_launch|exec_change|hiring|partnership|funding|customer_win", "rationale": "1-2 sentence explanation", "deal_relevance": "account name if relevant, else empty string"}]

Scoring bands:
- 90-100: directly affects an active deal account, exec change at a prospect, major competitor announcement
- 70-89: strong competitive signal, funding, major partnership, directly competing product
- 50-69: useful background, moderate competitive relevance
- 30-49: industry news, low direct relevance
- 1-29: noise

Return ONLY the JSON array.`, pctx.dealsBlock(), pctx.subjectsBlock(), itemLines.String())

	log.Printf("oracle score-batch model=%s items=%d", o.model, len(items))
	text, err := o.call(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseVerdicts(text)
}

func (o *anthropicOracle) SurfaceBatch(ctx context.Context, signals []Signal, pctx PipelineContext) ([]SurfaceDecision, error) {
	if len(signals) == 0 {
		return nil, nil
	}

	var signalLines strings.Builder
	for _, sig := range signals {
		fmt.Fprintf(&signalLines, "[%d] Score:%d Type:%s - %s\n",
			sig.ID, sig.Score, sig.Category, strings.TrimSpace(sig.Title))
	}

	prompt := fmt.Sprintf(`Evaluate which of these promoted signals should be surfaced to the team NOW.

Active deals:
%s
Tracked subjects:
%s
New signals:
%s
For each signal return:
[{"signal_id": <id>, "surface": true/false, "urgency": "immediate|batch|store_only", "action_suggestion": "one sentence action for a human", "dossier_update_needed": "SubjectName section - reason, or empty string", "rationale": "..."}]

Return ONLY the JSON array.`, pctx.dealsBlock(), pctx.subjectsBlock(), signalLines.String())

	log.Printf("oracle surface-batch model=%s signals=%d", o.model, len(signals))
	text, err := o.call(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseSurfaceDecisions(text)
}

// --- Defensive parsing ---

var (
	jsonArrayRegex  = regexp.MustCompile(`(?s)\[.*\]`)
	jsonObjectRegex = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractJSONArray pulls the first JSON array out of a response that may
// wrap it in code fences or prose. Returns "" when none is found.
func extractJSONArray(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return jsonArrayRegex.FindString(strings.TrimSpace(text))
}

func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return jsonObjectRegex.FindString(strings.TrimSpace(text))
}

// parseVerdicts decodes verdicts element by element so one malformed entry
// drops only itself, never the whole batch.
func parseVerdicts(text string) ([]Verdict, error) {
	raw := extractJSONArray(text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON array in oracle response (length=%d)", len(text))
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elements); err != nil {
		return nil, fmt.Errorf("parsing oracle verdicts: %w", err)
	}

	var verdicts []Verdict
	for i, elem := range elements {
		var v Verdict
		if err := json.Unmarshal(elem, &v); err != nil {
			log.Printf("oracle verdict %d unparseable, dropped: %v", i, err)
			continue
		}
		if v.ItemID == 0 {
			log.Printf("oracle verdict %d missing item id, dropped", i)
			continue
		}
		v.Score = clampScore(v.Score)
		v.Category = normalizeCategory(strings.TrimSpace(v.Category))
		v.DealRelevance = strings.TrimSpace(v.DealRelevance)
		verdicts = append(verdicts, v)
	}
	return verdicts, nil
}

func parseSurfaceDecisions(text string) ([]SurfaceDecision, error) {
	raw := extractJSONArray(text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON array in oracle response (length=%d)", len(text))
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elements); err != nil {
		return nil, fmt.Errorf("parsing surface decisions: %w", err)
	}

	var decisions []SurfaceDecision
	for i, elem := range elements {
		var d SurfaceDecision
		if err := json.Unmarshal(elem, &d); err != nil {
			log.Printf("surface decision %d unparseable, dropped: %v", i, err)
			continue
		}
		if d.SignalID == 0 {
			continue
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}
