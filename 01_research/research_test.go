package research

import (
	"context"
	"path/filepath"
	"testing"

	"autocast-pipeline/config"
	"autocast-pipeline/types"

	"github.com/stretchr/testify/require"
)

func TestHistory_PersistsAcrossLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "used_topics.json")

	h := NewHistory(path)
	require.False(t, h.Used("curated_the_ocean"))

	h.MarkUsed("curated_the_ocean")
	require.True(t, h.Used("curated_the_ocean"))

	// a fresh load sees the persisted entry
	h2 := NewHistory(path)
	require.True(t, h2.Used("curated_the_ocean"))
	require.False(t, h2.Used("curated_something_else"))

	h2.Reset()
	require.False(t, NewHistory(path).Used("curated_the_ocean"))
}

func TestSlug_StableDedupKey(t *testing.T) {
	require.Equal(t, "the_oceans_hidden_engine", slug("The Ocean's Hidden Engine"))
	require.Equal(t, slug("  Spaced Out  "), slug("Spaced Out"))

	// degenerate headlines still get a usable key
	require.NotEmpty(t, slug("!!!"))
	require.Len(t, slug("!!!"), 8)
}

func TestCleanJSON_StripsMarkdownFences(t *testing.T) {
	require.Equal(t, `[{"headline":"x"}]`, cleanJSON("```json\n[{\"headline\":\"x\"}]\n```"))
	require.Equal(t, `[{"headline":"x"}]`, cleanJSON("```\n[{\"headline\":\"x\"}]\n```"))
	require.Equal(t, `[{"headline":"x"}]`, cleanJSON(`[{"headline":"x"}]`))
}

type stubStrategy struct {
	name  string
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Discover(ctx context.Context, forcedConcept string) ([]types.Topic, error) {
	s.calls++
	return []types.Topic{{ID: s.name + "_1", Headline: s.name}}, nil
}

func TestService_ForcedConceptAlwaysRoutesToCurated(t *testing.T) {
	cfg := &config.Config{}
	cfg.Research.TrendingWeight = 1.0 // would always pick trending otherwise

	trending := &stubStrategy{name: "trending"}
	curated := &stubStrategy{name: "curated"}
	svc := NewService(cfg, trending, curated, nil)
	svc.randFloat = func() float64 { return 0 }

	_, err := svc.Discover(context.Background(), "volcanoes")
	require.NoError(t, err)
	require.Zero(t, trending.calls)
	require.Equal(t, 1, curated.calls)
}

func TestService_ResetHistoryClearsUsedTopics(t *testing.T) {
	h := NewHistory(filepath.Join(t.TempDir(), "used_topics.json"))
	svc := NewService(&config.Config{}, nil, nil, h)

	svc.MarkUsed("curated_the_ocean")
	require.True(t, h.Used("curated_the_ocean"))

	svc.ResetHistory()
	require.False(t, h.Used("curated_the_ocean"))
}

func TestService_WeightedStrategyChoice(t *testing.T) {
	cfg := &config.Config{}
	cfg.Research.TrendingWeight = 0.3

	trending := &stubStrategy{name: "trending"}
	curated := &stubStrategy{name: "curated"}
	svc := NewService(cfg, trending, curated, nil)

	svc.randFloat = func() float64 { return 0.1 }
	_, err := svc.Discover(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 1, trending.calls)

	svc.randFloat = func() float64 { return 0.9 }
	_, err = svc.Discover(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 1, curated.calls)
}
