package retrieval

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/support-agent/internal/model"
)

const tenantA = "6f1c1d2e-8a4b-4c3d-9e5f-0a1b2c3d4e5f"

type staticEmbedder struct {
	vec []float32
	err error
}

func (s staticEmbedder) Embed(context.Context, string) ([]float32, error) {
	return s.vec, s.err
}

func TestPGVector_SearchIsTenantScoped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM knowledge_chunks
WHERE tenant_id = $1
ORDER BY embedding <=> $2::vector
LIMIT $3`)).
		WithArgs(tenantA, "[0.25,0.75]", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content", "source", "score"}).
			AddRow("c1", "Open File > Export > PDF.", "manual.pdf", 0.91).
			AddRow("c2", "DOCX files are created from New.", "", 0.84))

	p := NewPGVector(db, staticEmbedder{vec: []float32{0.25, 0.75}}, "")
	chunks, err := p.Search(context.Background(), tenantA, "export docx to pdf", 2)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "c1", chunks[0].ID)
	assert.Equal(t, "manual.pdf", chunks[0].Source)
	assert.InDelta(t, 0.91, chunks[0].Score, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVector_Unavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

	p := NewPGVector(db, staticEmbedder{vec: []float32{1}}, "")
	_, err = p.Search(context.Background(), tenantA, "q", 4)
	assert.ErrorIs(t, err, model.ErrRetrievalUnavailable)

	p = NewPGVector(db, staticEmbedder{err: errors.New("no embedder")}, "")
	_, err = p.Search(context.Background(), tenantA, "q", 4)
	assert.ErrorIs(t, err, model.ErrRetrievalUnavailable)
}
