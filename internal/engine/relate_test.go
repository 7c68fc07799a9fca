package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/memory-engine/internal/index"
	"github.com/rcliao/memory-engine/internal/model"
)

func TestRelateSharedKeywords(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, Options{})
	a := mustStore(t, m, model.KindCodeAnalysis, "first", model.Metadata{Keywords: []string{"react", "hooks", "state"}}, 0.5)
	b := mustStore(t, m, model.KindCodeAnalysis, "second", model.Metadata{Keywords: []string{"react", "hooks"}}, 0.5)

	assert.Equal(t, []string{a.ID}, b.RelatedEntries)
	got, err := m.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, got.RelatedEntries)
}

func TestRelateNeedsTwoKeywords(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	mustStore(t, m, model.KindContext, "first", model.Metadata{Keywords: []string{"react", "hooks"}}, 0.5)
	b := mustStore(t, m, model.KindContext, "second", model.Metadata{Keywords: []string{"react", "vue"}}, 0.5)
	assert.Empty(t, b.RelatedEntries)
}

func TestRelateSharedEntity(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	goEntity := model.Entity{Type: "technology", Name: "Go", Confidence: 0.8}
	a := mustStore(t, m, model.KindContext, "first", model.Metadata{Entities: []model.Entity{goEntity}}, 0.5)
	mustStore(t, m, model.KindContext, "other", model.Metadata{Entities: []model.Entity{{Type: "language", Name: "Go"}}}, 0.5)
	c := mustStore(t, m, model.KindContext, "third", model.Metadata{Entities: []model.Entity{goEntity}}, 0.5)

	assert.Equal(t, []string{a.ID}, c.RelatedEntries, "entity type and name must both match")
}

func TestRelateEntitiesBeforeKeywords(t *testing.T) {
	table := []*model.Entry{
		{ID: "kw", Metadata: model.Metadata{Keywords: []string{"alpha", "beta"}}},
		{ID: "ent", Metadata: model.Metadata{Entities: []model.Entity{{Type: "file", Name: "main.go"}}}},
	}
	e := &model.Entry{ID: "new", Metadata: model.Metadata{
		Keywords: []string{"alpha", "beta"},
		Entities: []model.Entity{{Type: "file", Name: "main.go"}},
	}}
	assert.Equal(t, []string{"ent", "kw"}, relate(e, table, 10, 2))
	assert.Equal(t, []string{"ent"}, relate(e, table, 1, 2))
	assert.Nil(t, relate(e, table, 0, 2))
}

func TestRelateCapsAtLimit(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	shared := model.Metadata{Entities: []model.Entity{{Type: "project", Name: "engine"}}}

	var ids []string
	for i := 0; i < 12; i++ {
		e := mustStore(t, m, model.KindContext, fmt.Sprintf("entry %d", i), shared, 0.5)
		ids = append(ids, e.ID)
	}
	last := mustStore(t, m, model.KindContext, "last", shared, 0.5)
	assert.Equal(t, ids[:DefaultMaxRelations], last.RelatedEntries, "first matches in scan order")

	for _, e := range m.Export(context.Background()).Entries {
		assert.LessOrEqual(t, len(e.RelatedEntries), DefaultMaxRelations)
	}
}

func TestRelateDisabledByZeroLimit(t *testing.T) {
	none := 0
	m, _ := newTestManager(t, Options{MaxRelations: &none})
	shared := model.Metadata{Entities: []model.Entity{{Type: "project", Name: "engine"}}}

	first := mustStore(t, m, model.KindContext, "first", shared, 0.5)
	second := mustStore(t, m, model.KindContext, "second", shared, 0.5)
	assert.Empty(t, second.RelatedEntries)

	got, err := m.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Empty(t, got.RelatedEntries, "no back-links either")
}

func TestOptionsRejectOutOfRange(t *testing.T) {
	neg := -1
	_, err := New(Options{MaxRelations: &neg})
	assert.ErrorContains(t, err, "max relations")

	decay := 1.5
	_, err = New(Options{RelatedDecay: &decay})
	assert.ErrorContains(t, err, "related decay")

	threshold := -2.0
	_, err = New(Options{Index: index.Options{SimilarityThreshold: &threshold}})
	assert.ErrorContains(t, err, "similarity threshold")
}

func TestRelateWithKeywordAnalyzer(t *testing.T) {
	m, err := New(Options{Now: (&clock{now: t0}).Now})
	require.NoError(t, err)
	ctx := context.Background()

	a, err := m.Store(ctx, model.KindCodeAnalysis, "The cart uses React context for state.", model.Metadata{}, 0.5)
	require.NoError(t, err)
	b, err := m.Store(ctx, model.KindResearch, "Comparing React and Svelte rendering.", model.Metadata{}, 0.5)
	require.NoError(t, err)

	assert.Contains(t, b.RelatedEntries, a.ID, "both mention the React technology entity")
	assert.Contains(t, m.Bucket("entity", "technology:React"), a.ID)
}
