package templates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/closingroom/pkg/plans"
)

type fakeLimits struct {
	decision    plans.Decision
	err         error
	invalidated []int64
}

func (f *fakeLimits) CheckTemplate(ctx context.Context, teamID int64) (plans.Decision, error) {
	return f.decision, f.err
}

func (f *fakeLimits) Invalidate(ctx context.Context, teamID int64) {
	f.invalidated = append(f.invalidated, teamID)
}

var templateCols = []string{
	"id", "team_id", "name", "title", "kind", "body", "signers", "created_by", "created_at", "updated_at",
}

func newTestStore(t *testing.T, limits LimitChecker) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, limits, nil), mock
}

func createRequest() *CreateTemplateRequest {
	return &CreateTemplateRequest{
		Name:    "counter-offer",
		Title:   "Counter Offer",
		Kind:    KindAddendum,
		Body:    "Counter price {{contract.price_cents}}",
		Signers: []Signer{{Role: "buyer"}, {Role: "seller"}},
	}
}

func TestStore_Create(t *testing.T) {
	limits := &fakeLimits{decision: plans.Decision{Allowed: true}}
	store, mock := newTestStore(t, limits)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO templates").
		WithArgs(int64(4), "counter-offer", "Counter Offer", "addendum",
			"Counter price {{contract.price_cents}}", sqlmock.AnyArg(), "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(11), now, now))

	tmpl, err := store.Create(context.Background(), 4, "user-1", createRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(11), tmpl.ID)
	assert.Equal(t, []string{"contract.price_cents"}, tmpl.Placeholders)
	assert.Equal(t, []int64{4}, limits.invalidated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Create_LimitReached(t *testing.T) {
	limits := &fakeLimits{decision: plans.Decision{Resource: plans.ResourceTemplates, Current: 3, Limit: 3}}
	store, mock := newTestStore(t, limits)

	_, err := store.Create(context.Background(), 4, "user-1", createRequest())
	assert.True(t, plans.IsLimitError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Create_Invalid(t *testing.T) {
	store, _ := newTestStore(t, nil)

	req := createRequest()
	req.Body = "{{contract.price"
	_, err := store.Create(context.Background(), 4, "user-1", req)
	assert.True(t, errors.Is(err, ErrInvalid))

	req = createRequest()
	req.Signers = []Signer{{Role: "buyer"}, {Role: "buyer"}}
	_, err = store.Create(context.Background(), 4, "user-1", req)
	assert.True(t, errors.Is(err, ErrInvalid))

	req = createRequest()
	req.Name = "Counter Offer"
	_, err = store.Create(context.Background(), 4, "user-1", req)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestStore_Create_Duplicate(t *testing.T) {
	store, mock := newTestStore(t, nil)

	mock.ExpectQuery("INSERT INTO templates").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := store.Create(context.Background(), 4, "user-1", createRequest())
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestStore_Get(t *testing.T) {
	store, mock := newTestStore(t, nil)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM templates WHERE team_id = \\$1 AND id = \\$2").
		WithArgs(int64(4), int64(11)).
		WillReturnRows(sqlmock.NewRows(templateCols).AddRow(
			int64(11), int64(4), "counter-offer", "Counter Offer", "addendum", "{{a}}",
			[]byte(`[{"role":"buyer","order":1}]`), "user-1", now, now))

	tmpl, err := store.Get(context.Background(), 4, 11)
	require.NoError(t, err)
	assert.Equal(t, KindAddendum, tmpl.Kind)
	assert.Equal(t, []Signer{{Role: "buyer", Order: 1}}, tmpl.Signers)
	assert.Equal(t, []string{"a"}, tmpl.Placeholders)

	mock.ExpectQuery("SELECT (.+) FROM templates").
		WithArgs(int64(4), int64(12)).
		WillReturnRows(sqlmock.NewRows(templateCols))

	_, err = store.Get(context.Background(), 4, 12)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_List(t *testing.T) {
	store, mock := newTestStore(t, nil)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM templates WHERE team_id = \\$1 ORDER BY name").
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(templateCols).
			AddRow(int64(1), int64(4), "a", "A", "other", "x", []byte(`[]`), "u", now, now).
			AddRow(int64(2), int64(4), "b", "B", "other", "{{y}}", []byte(`[]`), "u", now, now))

	list, err := store.List(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[1].Name)
	assert.Equal(t, []string{"y"}, list[1].Placeholders)
}

func TestStore_Update(t *testing.T) {
	store, mock := newTestStore(t, nil)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM templates").
		WithArgs(int64(4), int64(11)).
		WillReturnRows(sqlmock.NewRows(templateCols).AddRow(
			int64(11), int64(4), "counter-offer", "Counter Offer", "addendum", "{{a}}",
			[]byte(`[{"role":"buyer"}]`), "user-1", now, now))
	mock.ExpectQuery("UPDATE templates SET title = \\$1, body = \\$2, updated_at = NOW\\(\\) WHERE team_id = \\$3 AND id = \\$4").
		WithArgs("Final Counter", "{{b}}", int64(4), int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))

	title, body := "Final Counter", "{{b}}"
	tmpl, err := store.Update(context.Background(), 4, 11, &UpdateTemplateRequest{Title: &title, Body: &body})
	require.NoError(t, err)
	assert.Equal(t, "Final Counter", tmpl.Title)
	assert.Equal(t, []string{"b"}, tmpl.Placeholders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Delete(t *testing.T) {
	limits := &fakeLimits{}
	store, mock := newTestStore(t, limits)

	mock.ExpectExec("DELETE FROM templates").
		WithArgs(int64(4), int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM templates").
		WithArgs(int64(4), int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Delete(context.Background(), 4, 11))
	assert.ErrorIs(t, store.Delete(context.Background(), 4, 12), ErrNotFound)
	assert.Equal(t, []int64{4}, limits.invalidated)
}
