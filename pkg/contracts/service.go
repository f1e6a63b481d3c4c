package contracts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/platinummonkey/closingroom/pkg/observability"
	"github.com/platinummonkey/closingroom/pkg/plans"
	"github.com/platinummonkey/closingroom/pkg/properties"
	"github.com/platinummonkey/closingroom/pkg/teams"
	"github.com/platinummonkey/closingroom/pkg/templates"
)

// Limits enforces the plan's contract quota
type Limits interface {
	CheckContract(ctx context.Context, teamID int64) (plans.Decision, error)
	RecordContract(ctx context.Context, teamID int64)
}

// TeamTemplates loads a team's own templates
type TeamTemplates interface {
	Get(ctx context.Context, teamID, id int64) (*templates.Template, error)
}

// Library loads built-in templates
type Library interface {
	Get(name string) (*templates.Template, error)
}

// Properties loads a team's properties
type Properties interface {
	Get(ctx context.Context, teamID, id int64) (*properties.Property, error)
}

// Teams loads team details for the template data
type Teams interface {
	GetTeam(ctx context.Context, id int64) (*teams.Team, error)
}

// Documents stores rendered documents
type Documents interface {
	PutObject(ctx context.Context, key string, content []byte, contentType string) (string, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// Notifier emails parties when a contract is sent
type Notifier interface {
	NotifyContractSent(ctx context.Context, to, partyName, contractTitle, teamName string) error
}

// Publisher emits contract events to registered webhooks
type Publisher interface {
	Publish(ctx context.Context, teamID int64, event string, data interface{})
}

// Contract events
const (
	EventCreated   = "contract.created"
	EventGenerated = "contract.generated"
	EventSent      = "contract.sent"
)

// Options wires collaborators into a Service
type Options struct {
	Limits     Limits
	Templates  TeamTemplates
	Library    Library
	Properties Properties
	Teams      Teams
	Documents  Documents
	Renderer   *templates.Renderer
	Notifier   Notifier
	Events     Publisher
	Logger     *observability.Logger
	Now        func() time.Time
}

// Service manages contracts: CRUD, document generation and the status lifecycle
type Service struct {
	db         *sql.DB
	limits     Limits
	templates  TeamTemplates
	library    Library
	properties Properties
	teams      Teams
	documents  Documents
	renderer   *templates.Renderer
	notifier   Notifier
	events     Publisher
	logger     *observability.Logger
	now        func() time.Time
}

// NewService creates a new contract Service
func NewService(db *sql.DB, opts Options) *Service {
	s := &Service{
		db:         db,
		limits:     opts.Limits,
		templates:  opts.Templates,
		library:    opts.Library,
		properties: opts.Properties,
		teams:      opts.Teams,
		documents:  opts.Documents,
		renderer:   opts.Renderer,
		notifier:   opts.Notifier,
		events:     opts.Events,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if s.renderer == nil {
		s.renderer = templates.NewRenderer()
	}
	if s.logger == nil {
		s.logger = observability.NewLogger(observability.InfoLevel, os.Stderr)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

const contractColumns = `id, team_id, property_id, template_id, template_name, title, status, parties,
	fields, document_key, revision, missing, billable_overage, created_by, sent_at, completed_at,
	created_at, updated_at`

// Create stores a draft contract. The plan's contract quota is checked first; a
// contract created past the included quota on a plan that allows overage is flagged
// billable.
func (s *Service) Create(ctx context.Context, teamID int64, createdBy string, req *CreateContractRequest) (*Contract, error) {
	if (req.TemplateID == nil) == (req.TemplateName == "") {
		return nil, ErrTemplateRequired
	}
	if _, err := s.properties.Get(ctx, teamID, req.PropertyID); err != nil {
		return nil, err
	}
	if _, err := s.template(ctx, teamID, req.TemplateID, req.TemplateName); err != nil {
		return nil, err
	}

	var decision plans.Decision
	if s.limits != nil {
		var err error
		decision, err = s.limits.CheckContract(ctx, teamID)
		if err != nil {
			return nil, err
		}
		if err := decision.Err(); err != nil {
			return nil, err
		}
	}

	c := &Contract{
		TeamID:          teamID,
		PropertyID:      req.PropertyID,
		TemplateID:      req.TemplateID,
		TemplateName:    req.TemplateName,
		Title:           strings.TrimSpace(req.Title),
		Status:          StatusDraft,
		Parties:         req.Parties,
		Fields:          req.Fields,
		Missing:         []string{},
		BillableOverage: decision.Overage,
		CreatedBy:       createdBy,
	}
	if c.Parties == nil {
		c.Parties = []Party{}
	}
	if c.Fields == nil {
		c.Fields = map[string]any{}
	}

	partiesJSON, fieldsJSON, err := marshalParts(c.Parties, c.Fields)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO contracts (team_id, property_id, template_id, template_name, title, status,
			parties, fields, billable_overage, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query, teamID, c.PropertyID, c.TemplateID, c.TemplateName,
		c.Title, c.Status, partiesJSON, fieldsJSON, c.BillableOverage, createdBy).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create contract: %w", err)
	}

	if s.limits != nil {
		s.limits.RecordContract(ctx, teamID)
	}
	s.publish(ctx, teamID, EventCreated, c)
	return c, nil
}

// Get retrieves a contract within a team
func (s *Service) Get(ctx context.Context, teamID, id int64) (*Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE team_id = $1 AND id = $2`
	return scanContract(s.db.QueryRowContext(ctx, query, teamID, id))
}

// List returns one page of a team's contracts, newest first, and the total count
func (s *Service) List(ctx context.Context, teamID int64, opts ListOptions) ([]*Contract, int, error) {
	opts = opts.Normalize()

	where := []string{"team_id = $1"}
	args := []interface{}{teamID}
	if opts.Status != "" {
		args = append(args, opts.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if opts.PropertyID > 0 {
		args = append(args, opts.PropertyID)
		where = append(where, fmt.Sprintf("property_id = $%d", len(args)))
	}
	filter := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contracts WHERE `+filter, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count contracts: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM contracts WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		contractColumns, filter, len(args)+1, len(args)+2)
	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	contracts := []*Contract{}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, 0, err
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list contracts: %w", err)
	}
	return contracts, total, nil
}

// Update edits a draft contract. Any edit detaches the generated document, so the
// contract must be generated again before it can be sent; the revision counter is kept.
func (s *Service) Update(ctx context.Context, teamID, id int64, req *UpdateContractRequest) (*Contract, error) {
	c, err := s.Get(ctx, teamID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusDraft {
		return nil, ErrNotDraft
	}
	if req.Title == nil && req.Parties == nil && req.Fields == nil {
		return c, nil
	}

	if req.Title != nil {
		c.Title = strings.TrimSpace(*req.Title)
	}
	if req.Parties != nil {
		c.Parties = req.Parties
	}
	if req.Fields != nil {
		c.Fields = req.Fields
	}

	partiesJSON, fieldsJSON, err := marshalParts(c.Parties, c.Fields)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE contracts SET title = $1, parties = $2, fields = $3, document_key = '', missing = '[]',
			updated_at = NOW()
		WHERE team_id = $4 AND id = $5 AND status = $6
		RETURNING updated_at
	`
	err = s.db.QueryRowContext(ctx, query, c.Title, partiesJSON, fieldsJSON, teamID, id, StatusDraft).
		Scan(&c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotDraft
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update contract: %w", err)
	}
	c.DocumentKey = ""
	c.Missing = nil
	return c, nil
}

// Delete voids a draft or sent contract. Contracts are never removed so that they keep
// counting toward the cycle in which they were created.
func (s *Service) Delete(ctx context.Context, teamID, id int64) (*Contract, error) {
	return s.SetStatus(ctx, teamID, id, StatusVoided)
}

// SetStatus moves a contract along its lifecycle and emits contract.<status>.
// Sending goes through Send, which has extra preconditions.
func (s *Service) SetStatus(ctx context.Context, teamID, id int64, to Status) (*Contract, error) {
	if to == StatusSent {
		return s.Send(ctx, teamID, id)
	}

	c, err := s.Get(ctx, teamID, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(c.Status, to); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.transition(ctx, c, to, now); err != nil {
		return nil, err
	}
	c.CompletedAt = &now

	s.publish(ctx, teamID, eventFor(to), c)
	return c, nil
}

// transition updates the status only if nobody changed it concurrently
func (s *Service) transition(ctx context.Context, c *Contract, to Status, at time.Time) error {
	column := "completed_at"
	if to == StatusSent {
		column = "sent_at"
	}
	query := fmt.Sprintf(`
		UPDATE contracts SET status = $1, %s = $2, updated_at = NOW()
		WHERE team_id = $3 AND id = $4 AND status = $5
		RETURNING updated_at
	`, column)

	err := s.db.QueryRowContext(ctx, query, to, at, c.TeamID, c.ID, c.Status).Scan(&c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
	}
	if err != nil {
		return fmt.Errorf("failed to update contract status: %w", err)
	}
	c.Status = to
	return nil
}

func (s *Service) template(ctx context.Context, teamID int64, id *int64, name string) (*templates.Template, error) {
	if id != nil {
		if s.templates == nil {
			return nil, templates.ErrNotFound
		}
		return s.templates.Get(ctx, teamID, *id)
	}
	if s.library == nil {
		return nil, templates.ErrNotFound
	}
	return s.library.Get(name)
}

func (s *Service) publish(ctx context.Context, teamID int64, event string, data interface{}) {
	if s.events != nil {
		s.events.Publish(ctx, teamID, event, data)
	}
}

func marshalParts(parties []Party, fields map[string]any) ([]byte, []byte, error) {
	partiesJSON, err := json.Marshal(parties)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal parties: %w", err)
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal fields: %w", err)
	}
	return partiesJSON, fieldsJSON, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContract(row rowScanner) (*Contract, error) {
	c := &Contract{}
	var (
		templateID                           sql.NullInt64
		partiesJSON, fieldsJSON, missingJSON []byte
		sentAt, completedAt                  sql.NullTime
	)
	err := row.Scan(&c.ID, &c.TeamID, &c.PropertyID, &templateID, &c.TemplateName, &c.Title,
		&c.Status, &partiesJSON, &fieldsJSON, &c.DocumentKey, &c.Revision, &missingJSON,
		&c.BillableOverage, &c.CreatedBy, &sentAt, &completedAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan contract: %w", err)
	}

	if templateID.Valid {
		c.TemplateID = &templateID.Int64
	}
	if sentAt.Valid {
		c.SentAt = &sentAt.Time
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}
	if err := json.Unmarshal(partiesJSON, &c.Parties); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parties: %w", err)
	}
	if err := json.Unmarshal(fieldsJSON, &c.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
	}
	if err := json.Unmarshal(missingJSON, &c.Missing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal missing fields: %w", err)
	}
	return c, nil
}
