package clinics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresGetBySlug(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "name", "slug", "logo_url", "phone", "address", "description", "specialties", "created_at"}).
		AddRow(id, "Sonrisa Perfecta", "sonrisa-perfecta", "", "+52 55 1234 5678", "Av. Reforma 1", "", []string{"Ortodoncia", "Endodoncia"}, time.Now())
	mock.ExpectQuery("FROM clinics WHERE slug").WithArgs("sonrisa-perfecta").WillReturnRows(rows)

	c, err := repo.GetBySlug(context.Background(), "Sonrisa-Perfecta")
	require.NoError(t, err)
	assert.Equal(t, id, c.ID)
	assert.Equal(t, []string{"Ortodoncia", "Endodoncia"}, c.Specialties)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetBySlugNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	mock.ExpectQuery("FROM clinics WHERE slug").WithArgs("ghost").WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetBySlug(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
