package contracts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/platinummonkey/closingroom/pkg/async"
	"github.com/platinummonkey/closingroom/pkg/properties"
	"github.com/platinummonkey/closingroom/pkg/storage/objects"
	"github.com/platinummonkey/closingroom/pkg/teams"
	"github.com/platinummonkey/closingroom/pkg/templates"
)

const documentContentType = "text/html; charset=utf-8"

// GenerateResult is the outcome of rendering a contract's document
type GenerateResult struct {
	Contract *Contract          `json:"contract"`
	Missing  []string           `json:"missing"`
	Zones    []templates.Zone   `json:"zones"`
	Pages    int                `json:"pages"`
	Start    templates.Position `json:"signature_start"`
	Checksum string             `json:"checksum"`
}

// Generate renders the draft's template with the property, contract fields, parties and
// team, stores the page as a new revision in object storage and records which
// placeholders are still missing
func (s *Service) Generate(ctx context.Context, teamID, id int64) (*GenerateResult, error) {
	c, err := s.Get(ctx, teamID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusDraft {
		return nil, ErrNotDraft
	}

	tmpl, err := s.template(ctx, teamID, c.TemplateID, c.TemplateName)
	if err != nil {
		return nil, err
	}
	prop, err := s.properties.Get(ctx, teamID, c.PropertyID)
	if err != nil {
		return nil, err
	}
	var team *teams.Team
	if s.teams != nil {
		if team, err = s.teams.GetTeam(ctx, teamID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	data := BuildData(c, prop, team, now)
	doc, err := s.renderer.Render(ctx, tmpl, data, Signers(tmpl.Signers, c.Parties))
	if err != nil {
		return nil, err
	}
	page, err := doc.Standalone()
	if err != nil {
		return nil, err
	}

	revision := c.Revision + 1
	key := objects.DocumentKey(teamID, c.ID, revision)
	checksum, err := s.documents.PutObject(ctx, key, page, documentContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	if doc.Missing == nil {
		doc.Missing = []string{}
	}
	missingJSON, err := json.Marshal(doc.Missing)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal missing fields: %w", err)
	}
	query := `
		UPDATE contracts SET document_key = $1, revision = $2, missing = $3, updated_at = NOW()
		WHERE team_id = $4 AND id = $5 AND status = $6 AND revision = $7
		RETURNING updated_at
	`
	err = s.db.QueryRowContext(ctx, query, key, revision, missingJSON, teamID, c.ID, StatusDraft, c.Revision).
		Scan(&c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: contract changed while generating", ErrNotDraft)
		}
		return nil, fmt.Errorf("failed to record document: %w", err)
	}

	c.DocumentKey = key
	c.Revision = revision
	c.Missing = doc.Missing

	s.logger.WithFields(map[string]interface{}{
		"team_id":     teamID,
		"contract_id": c.ID,
		"revision":    revision,
		"missing":     len(doc.Missing),
		"pages":       doc.Pages,
	}).Info("Contract document generated")
	s.publish(ctx, teamID, EventGenerated, map[string]interface{}{
		"contract_id": c.ID,
		"revision":    revision,
		"missing":     doc.Missing,
	})

	return &GenerateResult{
		Contract: c,
		Missing:  doc.Missing,
		Zones:    doc.Zones,
		Pages:    doc.Pages,
		Start:    doc.SignatureStart,
		Checksum: checksum,
	}, nil
}

// Send moves a generated draft with no missing placeholders to sent, emails every party
// that has an address and emits contract.sent
func (s *Service) Send(ctx context.Context, teamID, id int64) (*Contract, error) {
	c, err := s.Get(ctx, teamID, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(c.Status, StatusSent); err != nil {
		return nil, err
	}
	if c.DocumentKey == "" {
		return nil, ErrNotGenerated
	}
	if len(c.Missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(c.Missing, ", "))
	}

	now := s.now().UTC()
	if err := s.transition(ctx, c, StatusSent, now); err != nil {
		return nil, err
	}
	c.SentAt = &now

	if s.notifier != nil {
		teamName := ""
		if s.teams != nil {
			if team, err := s.teams.GetTeam(ctx, teamID); err == nil {
				teamName = team.Name
			}
		}
		recipients := make([]Party, 0, len(c.Parties))
		for _, p := range c.Parties {
			if p.Email != "" {
				recipients = append(recipients, p)
			}
		}
		errs := async.Batch(ctx, recipients, 4, "contract notification", 30*time.Second,
			func(ctx context.Context, p Party) error {
				if err := s.notifier.NotifyContractSent(ctx, p.Email, p.Name, c.Title, teamName); err != nil {
					return fmt.Errorf("failed to email %s: %w", p.Role, err)
				}
				return nil
			})
		for _, err := range errs {
			s.logger.WithError(err).WithField("contract_id", c.ID).Warn("Failed to email contract party")
		}
	}

	s.publish(ctx, teamID, EventSent, c)
	return c, nil
}

// Document returns the stored HTML of the latest generated revision
func (s *Service) Document(ctx context.Context, teamID, id int64) ([]byte, error) {
	c, err := s.Get(ctx, teamID, id)
	if err != nil {
		return nil, err
	}
	if c.DocumentKey == "" {
		return nil, ErrNotGenerated
	}
	return s.documents.GetObject(ctx, c.DocumentKey)
}

// BuildData assembles the values a contract template can reference: property.*,
// contract.* (the free-form fields plus id and title), parties.<role>.*, team.* and
// today. String fields whose key ends in _date or _on are parsed as YYYY-MM-DD dates.
func BuildData(c *Contract, prop *properties.Property, team *teams.Team, now time.Time) map[string]any {
	contract := make(map[string]any, len(c.Fields)+3)
	for k, v := range c.Fields {
		if str, ok := v.(string); ok && (strings.HasSuffix(k, "_date") || strings.HasSuffix(k, "_on")) {
			if t, err := time.Parse("2006-01-02", str); err == nil {
				v = t
			}
		}
		contract[k] = v
	}
	contract["id"] = c.ID
	contract["title"] = c.Title
	contract["status"] = string(c.Status)

	// The first party of a role fills parties.<role>, matching Signers
	parties := make(map[string]any, len(c.Parties))
	for _, p := range c.Parties {
		if _, seen := parties[p.Role]; seen {
			continue
		}
		parties[p.Role] = map[string]any{
			"name":  p.Name,
			"email": p.Email,
			"role":  p.Role,
		}
	}

	data := map[string]any{
		"contract": contract,
		"parties":  parties,
		"today":    now,
	}
	if prop != nil {
		data["property"] = prop.TemplateData()
	}
	if team != nil {
		data["team"] = map[string]any{
			"id":   team.ID,
			"name": team.Name,
			"slug": team.Slug,
		}
	}
	return data
}

// Signers returns the template's signers with names filled in from the contract
// parties of the same role. Party order wins over template order when it is set.
func Signers(roles []templates.Signer, parties []Party) []templates.Signer {
	byRole := make(map[string]Party, len(parties))
	for _, p := range parties {
		if _, seen := byRole[p.Role]; !seen {
			byRole[p.Role] = p
		}
	}

	out := make([]templates.Signer, len(roles))
	for i, r := range roles {
		out[i] = r
		if p, ok := byRole[r.Role]; ok {
			out[i].Name = p.Name
			if p.Order != 0 {
				out[i].Order = p.Order
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
