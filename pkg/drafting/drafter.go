package drafting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/platinummonkey/closingroom/pkg/contextkeys"
	"github.com/platinummonkey/closingroom/pkg/observability"
	"github.com/platinummonkey/closingroom/pkg/plans"
)

var (
	// ErrDisabled is returned when no API key is configured
	ErrDisabled = errors.New("AI drafting is not configured")
	// ErrEmptyCompletion is returned when the model answers with no text
	ErrEmptyCompletion = errors.New("model returned an empty draft")
)

// Clause kinds
const (
	KindClause      = "clause"
	KindContingency = "contingency"
	KindAddendum    = "addendum"
	KindDisclosure  = "disclosure"
	KindCoverLetter = "cover_letter"
)

var kindLabels = map[string]string{
	KindClause:      "contract clause",
	KindContingency: "contingency clause",
	KindAddendum:    "addendum",
	KindDisclosure:  "disclosure statement",
	KindCoverLetter: "cover letter to the other party",
}

const systemPrompt = `You draft language for US residential real estate purchase contracts.
Reply with the requested text only: no headings, no commentary, no markdown code fences.
Write in plain, precise contract prose. Where a value is not given, insert a placeholder
such as [[contract.closing_date]] or [[buyer.name]] instead of inventing it.
Do not give legal advice.`

// Limits enforces the plan's AI draft quota
type Limits interface {
	CheckAIDraft(ctx context.Context, teamID int64) (plans.Decision, error)
	RecordAIDraft(ctx context.Context, teamID int64)
}

// Config configures the completion client
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// DraftRequest asks for one piece of contract text
type DraftRequest struct {
	Kind         string            `json:"kind" validate:"required,oneof=clause contingency addendum disclosure cover_letter"`
	Instructions string            `json:"instructions" validate:"required,max=4000"`
	Context      map[string]string `json:"context,omitempty" validate:"max=50"`
}

// Draft is the model's answer
type Draft struct {
	Kind             string `json:"kind"`
	Text             string `json:"text"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	Overage          bool   `json:"overage"`
}

// Options carries optional collaborators
type Options struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Drafter drafts clauses and records their usage
type Drafter struct {
	db      *sql.DB
	limits  Limits
	client  *openai.Client
	config  Config
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewDrafter creates a Drafter. With an empty APIKey the drafter is disabled.
func NewDrafter(db *sql.DB, limits Limits, cfg Config, opts Options) *Drafter {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 800
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	d := &Drafter{
		db:      db,
		limits:  limits,
		config:  cfg,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     time.Now,
	}
	if d.logger == nil {
		d.logger = observability.NewLogger(observability.InfoLevel, os.Stderr)
	}
	if cfg.APIKey != "" {
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
		d.client = openai.NewClientWithConfig(clientConfig)
		d.logger.WithField("model", cfg.Model).Info("AI drafting enabled")
	}
	return d
}

// Enabled reports whether an API key is configured
func (d *Drafter) Enabled() bool {
	return d.client != nil
}

// DraftClause checks the team's AI draft quota, asks the model for the text and
// records the draft. The caller's user ID is taken from ctx.
func (d *Drafter) DraftClause(ctx context.Context, teamID int64, req *DraftRequest) (*Draft, error) {
	if !d.Enabled() {
		return nil, ErrDisabled
	}
	label, ok := kindLabels[req.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown draft kind %q", req.Kind)
	}

	var decision plans.Decision
	if d.limits != nil {
		var err error
		decision, err = d.limits.CheckAIDraft(ctx, teamID)
		if err != nil {
			return nil, err
		}
		if err := decision.Err(); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	start := d.now()
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(label, req)},
		},
		MaxCompletionTokens: d.config.MaxTokens,
		Temperature:         d.config.Temperature,
	})
	if err != nil {
		d.metrics.RecordAIDraft(req.Kind, d.now().Sub(start), 0, 0, err)
		return nil, fmt.Errorf("AI completion failed: %w", err)
	}

	draft := &Draft{
		Kind:             req.Kind,
		Model:            d.config.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Overage:          decision.Overage,
	}
	if resp.Model != "" {
		draft.Model = resp.Model
	}
	if len(resp.Choices) > 0 {
		draft.Text = cleanCompletion(resp.Choices[0].Message.Content)
	}
	if draft.Text == "" {
		d.metrics.RecordAIDraft(req.Kind, d.now().Sub(start), draft.PromptTokens, draft.CompletionTokens, ErrEmptyCompletion)
		return nil, ErrEmptyCompletion
	}
	d.metrics.RecordAIDraft(req.Kind, d.now().Sub(start), draft.PromptTokens, draft.CompletionTokens, nil)

	// The completion has been paid for; a failed insert is logged and the draft returned.
	if err := d.record(ctx, teamID, draft); err != nil {
		observability.FromContext(ctx).WithError(err).WithField("team_id", teamID).Error("Failed to record AI draft")
	}
	if d.limits != nil {
		d.limits.RecordAIDraft(ctx, teamID)
	}
	return draft, nil
}

func (d *Drafter) record(ctx context.Context, teamID int64, draft *Draft) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO ai_drafts (team_id, user_id, kind, model, prompt_tokens, completion_tokens)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, teamID, contextkeys.GetUserID(ctx), draft.Kind, draft.Model, draft.PromptTokens, draft.CompletionTokens)
	if err != nil {
		return fmt.Errorf("failed to insert AI draft: %w", err)
	}
	return nil
}

func userPrompt(label string, req *DraftRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Draft a %s.\n\nInstructions:\n%s\n", label, strings.TrimSpace(req.Instructions))
	if len(req.Context) > 0 {
		keys := make([]string, 0, len(req.Context))
		for k := range req.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\nKnown details:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, req.Context[k])
		}
	}
	return b.String()
}

// cleanCompletion trims whitespace and a wrapping code fence
func cleanCompletion(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") && len(s) >= 6 {
		s = strings.TrimSuffix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	return strings.TrimSpace(s)
}
