package properties

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Service manages a team's properties
type Service interface {
	Create(ctx context.Context, teamID int64, req *CreatePropertyRequest) (*Property, error)
	Get(ctx context.Context, teamID, id int64) (*Property, error)
	List(ctx context.Context, teamID int64, opts ListOptions) ([]*Property, int, error)
	Update(ctx context.Context, teamID, id int64, req *UpdatePropertyRequest) (*Property, error)
	Delete(ctx context.Context, teamID, id int64) error
}

// PostgresService implements Service using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

const propertyColumns = `id, team_id, line1, line2, city, state, postal_code, mls_number,
	list_price_cents, bedrooms, bathrooms, square_feet, notes, created_at, updated_at`

// Create stores a new property
func (s *PostgresService) Create(ctx context.Context, teamID int64, req *CreatePropertyRequest) (*Property, error) {
	p := &Property{
		TeamID:         teamID,
		Address:        req.Address,
		MLSNumber:      req.MLSNumber,
		ListPriceCents: req.ListPriceCents,
		Bedrooms:       req.Bedrooms,
		Bathrooms:      req.Bathrooms,
		SquareFeet:     req.SquareFeet,
		Notes:          req.Notes,
	}

	query := `
		INSERT INTO properties (team_id, line1, line2, city, state, postal_code, mls_number,
			list_price_cents, bedrooms, bathrooms, square_feet, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, teamID, p.Address.Line1, p.Address.Line2, p.Address.City,
		p.Address.State, p.Address.PostalCode, p.MLSNumber, p.ListPriceCents, p.Bedrooms,
		p.Bathrooms, p.SquareFeet, p.Notes).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create property: %w", err)
	}
	return p, nil
}

// Get retrieves a property by ID within a team
func (s *PostgresService) Get(ctx context.Context, teamID, id int64) (*Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE team_id = $1 AND id = $2`
	return scanProperty(s.db.QueryRowContext(ctx, query, teamID, id))
}

// List returns one page of a team's properties, newest first, and the total count
func (s *PostgresService) List(ctx context.Context, teamID int64, opts ListOptions) ([]*Property, int, error) {
	opts = opts.Normalize()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM properties WHERE team_id = $1`, teamID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count properties: %w", err)
	}

	query := `SELECT ` + propertyColumns + ` FROM properties WHERE team_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`
	rows, err := s.db.QueryContext(ctx, query, teamID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list properties: %w", err)
	}
	defer rows.Close()

	props := []*Property{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, 0, err
		}
		props = append(props, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list properties: %w", err)
	}
	return props, total, nil
}

// Update applies the non-nil fields of req
func (s *PostgresService) Update(ctx context.Context, teamID, id int64, req *UpdatePropertyRequest) (*Property, error) {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	set := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	if req.Address != nil {
		set("line1", req.Address.Line1)
		set("line2", req.Address.Line2)
		set("city", req.Address.City)
		set("state", req.Address.State)
		set("postal_code", req.Address.PostalCode)
	}
	if req.MLSNumber != nil {
		set("mls_number", *req.MLSNumber)
	}
	if req.ListPriceCents != nil {
		set("list_price_cents", *req.ListPriceCents)
	}
	if req.Bedrooms != nil {
		set("bedrooms", *req.Bedrooms)
	}
	if req.Bathrooms != nil {
		set("bathrooms", *req.Bathrooms)
	}
	if req.SquareFeet != nil {
		set("square_feet", *req.SquareFeet)
	}
	if req.Notes != nil {
		set("notes", *req.Notes)
	}

	if len(setClauses) == 0 {
		return s.Get(ctx, teamID, id)
	}

	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, teamID, id)
	query := fmt.Sprintf("UPDATE properties SET %s WHERE team_id = $%d AND id = $%d RETURNING %s",
		strings.Join(setClauses, ", "), argPos, argPos+1, propertyColumns)

	return scanProperty(s.db.QueryRowContext(ctx, query, args...))
}

// Delete removes a property. Properties referenced by contracts cannot be deleted.
func (s *PostgresService) Delete(ctx context.Context, teamID, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM properties WHERE team_id = $1 AND id = $2`, teamID, id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrInUse
		}
		return fmt.Errorf("failed to delete property: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProperty(row rowScanner) (*Property, error) {
	p := &Property{}
	err := row.Scan(&p.ID, &p.TeamID, &p.Address.Line1, &p.Address.Line2, &p.Address.City,
		&p.Address.State, &p.Address.PostalCode, &p.MLSNumber, &p.ListPriceCents, &p.Bedrooms,
		&p.Bathrooms, &p.SquareFeet, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan property: %w", err)
	}
	return p, nil
}
