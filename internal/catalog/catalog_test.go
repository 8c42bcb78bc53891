package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cidadao-ai/citizen-intake/internal/domain"
)

func TestDefaultCatalogOrderAndValues(t *testing.T) {
	c := Default()

	assert.Equal(t, []string{"infraestrutura", "saude", "educacao", "assistencia_social", "obras"}, c.Codes())

	saude, ok := c.Get("SAUDE")
	require.True(t, ok)
	assert.Equal(t, domain.PriorityCritical, saude.Priority)
	assert.Equal(t, 4, saude.SLAHours)
	assert.Equal(t, "Secretaria de Saúde", saude.TeamName)
	assert.Contains(t, saude.Keywords, "emergência")
}

func TestNewRejectsInvalidDefinitions(t *testing.T) {
	_, err := New([]domain.Category{{Code: "x", Priority: domain.PriorityHigh, SLAHours: 1}})
	assert.Error(t, err, "empty keyword set")

	_, err = New([]domain.Category{{Code: "x", Keywords: []string{"a"}, Priority: domain.PriorityHigh}})
	assert.Error(t, err, "non-positive sla")

	_, err = New([]domain.Category{
		{Code: "x", Keywords: []string{"a"}, Priority: domain.PriorityHigh, SLAHours: 1},
		{Code: "X", Keywords: []string{"b"}, Priority: domain.PriorityHigh, SLAHours: 1},
	})
	assert.Error(t, err, "duplicate code")

	_, err = New([]domain.Category{{Code: "x", Keywords: []string{"  "}, Priority: domain.PriorityHigh, SLAHours: 1}})
	assert.Error(t, err, "blank keywords only")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cats.yaml")
	doc := `categories:
  - code: Limpeza
    priority: BAIXA
    sla_hours: 96
    team: Secretaria de Serviços Urbanos
    keywords: [Lixo, entulho]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)

	cat, ok := c.Get("limpeza")
	require.True(t, ok)
	assert.Equal(t, domain.PriorityLow, cat.Priority)
	assert.Equal(t, []string{"lixo", "entulho"}, cat.Keywords)
	assert.Equal(t, "limpeza", cat.DisplayName())
}

type stubSource struct {
	defs []domain.Category
	err  error
}

func (s stubSource) ListActive(context.Context) ([]domain.Category, error) { return s.defs, s.err }

func TestLoadPrefersStorage(t *testing.T) {
	c, err := Load(context.Background(), stubSource{defs: []domain.Category{
		{Code: "iluminacao", Keywords: []string{"poste"}, Priority: domain.PriorityMedium, SLAHours: 12},
	}}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"iluminacao"}, c.Codes())

	c, err = Load(context.Background(), stubSource{}, "")
	require.NoError(t, err)
	assert.Equal(t, 5, c.Len())

	_, err = Load(context.Background(), stubSource{err: errors.New("db down")}, "")
	assert.Error(t, err)
}
