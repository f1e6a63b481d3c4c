package templates

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/platinummonkey/closingroom/pkg/plans"
)

// LimitChecker enforces the team's template limit
type LimitChecker interface {
	CheckTemplate(ctx context.Context, teamID int64) (plans.Decision, error)
	Invalidate(ctx context.Context, teamID int64)
}

// Store persists team templates
type Store interface {
	Create(ctx context.Context, teamID int64, createdBy string, req *CreateTemplateRequest) (*Template, error)
	Get(ctx context.Context, teamID, id int64) (*Template, error)
	List(ctx context.Context, teamID int64) ([]*Template, error)
	Update(ctx context.Context, teamID, id int64, req *UpdateTemplateRequest) (*Template, error)
	Delete(ctx context.Context, teamID, id int64) error
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	limits LimitChecker
	index  *Library
}

// NewPostgresStore creates a new PostgresStore. limits may be nil to skip plan checks
// and library may be nil to parse placeholders without memoization.
func NewPostgresStore(db *sql.DB, limits LimitChecker, library *Library) *PostgresStore {
	return &PostgresStore{db: db, limits: limits, index: library}
}

const templateColumns = `id, team_id, name, title, kind, body, signers, created_by, created_at, updated_at`

// Create stores a new template after checking the team's template limit
func (s *PostgresStore) Create(ctx context.Context, teamID int64, createdBy string, req *CreateTemplateRequest) (*Template, error) {
	tmpl := &Template{
		TeamID:    teamID,
		Name:      req.Name,
		Title:     req.Title,
		Kind:      req.Kind,
		Body:      req.Body,
		Signers:   req.Signers,
		CreatedBy: createdBy,
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}

	if s.limits != nil {
		decision, err := s.limits.CheckTemplate(ctx, teamID)
		if err != nil {
			return nil, err
		}
		if err := decision.Err(); err != nil {
			return nil, err
		}
	}

	signersJSON, err := json.Marshal(tmpl.Signers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signers: %w", err)
	}

	query := `
		INSERT INTO templates (team_id, name, title, kind, body, signers, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query, teamID, tmpl.Name, tmpl.Title, tmpl.Kind,
		tmpl.Body, signersJSON, createdBy).
		Scan(&tmpl.ID, &tmpl.CreatedAt, &tmpl.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	if s.limits != nil {
		s.limits.Invalidate(ctx, teamID)
	}
	if err := s.fillPlaceholders(tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// Get retrieves a team template by ID
func (s *PostgresStore) Get(ctx context.Context, teamID, id int64) (*Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE team_id = $1 AND id = $2`
	tmpl, err := scanTemplate(s.db.QueryRowContext(ctx, query, teamID, id))
	if err != nil {
		return nil, err
	}
	if err := s.fillPlaceholders(tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// List returns a team's templates ordered by name
func (s *PostgresStore) List(ctx context.Context, teamID int64) ([]*Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE team_id = $1 ORDER BY name`
	rows, err := s.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	templates := []*Template{}
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		if err := s.fillPlaceholders(tmpl); err != nil {
			return nil, err
		}
		templates = append(templates, tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// Update applies the non-nil fields of req
func (s *PostgresStore) Update(ctx context.Context, teamID, id int64, req *UpdateTemplateRequest) (*Template, error) {
	tmpl, err := s.Get(ctx, teamID, id)
	if err != nil {
		return nil, err
	}

	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if req.Title != nil {
		tmpl.Title = *req.Title
		setClauses = append(setClauses, fmt.Sprintf("title = $%d", argPos))
		args = append(args, *req.Title)
		argPos++
	}
	if req.Kind != nil {
		tmpl.Kind = *req.Kind
		setClauses = append(setClauses, fmt.Sprintf("kind = $%d", argPos))
		args = append(args, *req.Kind)
		argPos++
	}
	if req.Body != nil {
		tmpl.Body = *req.Body
		setClauses = append(setClauses, fmt.Sprintf("body = $%d", argPos))
		args = append(args, *req.Body)
		argPos++
	}
	if req.Signers != nil {
		tmpl.Signers = req.Signers
		signersJSON, err := json.Marshal(req.Signers)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal signers: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("signers = $%d", argPos))
		args = append(args, signersJSON)
		argPos++
	}

	if len(setClauses) == 0 {
		return tmpl, nil
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}

	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, teamID, id)
	query := fmt.Sprintf("UPDATE templates SET %s WHERE team_id = $%d AND id = $%d RETURNING updated_at",
		strings.Join(setClauses, ", "), argPos, argPos+1)

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&tmpl.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	if err := s.fillPlaceholders(tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// Delete removes a team template. Contracts keep their rendered documents.
func (s *PostgresStore) Delete(ctx context.Context, teamID, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE team_id = $1 AND id = $2`, teamID, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if s.limits != nil {
		s.limits.Invalidate(ctx, teamID)
	}
	return nil
}

func (s *PostgresStore) fillPlaceholders(tmpl *Template) error {
	var err error
	if s.index != nil {
		tmpl.Placeholders, err = s.index.PlaceholdersFor(tmpl.Body)
	} else {
		tmpl.Placeholders, err = Placeholders(tmpl.Body)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(row rowScanner) (*Template, error) {
	tmpl := &Template{}
	var signersJSON []byte
	err := row.Scan(&tmpl.ID, &tmpl.TeamID, &tmpl.Name, &tmpl.Title, &tmpl.Kind, &tmpl.Body,
		&signersJSON, &tmpl.CreatedBy, &tmpl.CreatedAt, &tmpl.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}
	if err := json.Unmarshal(signersJSON, &tmpl.Signers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signers: %w", err)
	}
	return tmpl, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
