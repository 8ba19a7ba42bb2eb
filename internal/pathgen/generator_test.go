package pathgen

import (
	"context"
	"strings"
	"testing"

	"github.com/aixgo-dev/codenav/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := NewGenerator()
	require.NoError(t, err)
	return g
}

func titles(p *Path) []string {
	out := make([]string, len(p.Modules))
	for i, m := range p.Modules {
		out[i] = m.Title
	}
	return out
}

func TestGeneratePath_ByLevel(t *testing.T) {
	g := newTestGenerator(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		tech        string
		level       session.Level
		wantModules int
		wantWeeks   int
	}{
		{"spring beginner", "Spring", session.LevelBeginner, 4, 7},
		{"spring intermediate", "Spring", session.LevelIntermediate, 4, 8},
		{"java advanced", "Java", session.LevelAdvanced, 2, 4},
		{"case insensitive lookup", "spring boot", session.LevelBeginner, 4, 8},
		{"generic template", "Rust", session.LevelIntermediate, 3, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := g.GeneratePath(ctx, tt.tech, tt.level, nil)
			require.NoError(t, err)

			assert.Equal(t, tt.tech, p.Technology)
			assert.Equal(t, tt.level, p.Level)
			assert.Len(t, p.Modules, tt.wantModules)
			assert.Equal(t, tt.wantWeeks, p.TotalWeeks)
			assert.Contains(t, p.Summary, "个模块")
			assert.Equal(t, StageProject, p.Modules[len(p.Modules)-1].Stage)
		})
	}
}

func TestGeneratePath_Summary(t *testing.T) {
	g := newTestGenerator(t)

	p, err := g.GeneratePath(context.Background(), "Spring", session.LevelBeginner, nil)
	require.NoError(t, err)
	assert.Equal(t, "共 4 个模块，预计 7 周完成", p.Summary)
}

func TestGeneratePath_GenericTitles(t *testing.T) {
	g := newTestGenerator(t)

	p, err := g.GeneratePath(context.Background(), "Rust", session.LevelAdvanced, nil)
	require.NoError(t, err)
	for _, title := range titles(p) {
		assert.Contains(t, title, "Rust")
		assert.NotContains(t, title, "{tech}")
	}
}

func TestGeneratePath_FitsPlannedDuration(t *testing.T) {
	g := newTestGenerator(t)
	ctx := context.Background()

	tests := []struct {
		duration  string
		wantWeeks int
	}{
		{"3个月", 12},
		{"10周", 10},
		{"30天", 5},
		{"1周", 4}, // one week per module at minimum
	}

	for _, tt := range tests {
		t.Run(tt.duration, func(t *testing.T) {
			p, err := g.GeneratePath(ctx, "Spring", session.LevelBeginner, map[string]string{"time_duration": tt.duration})
			require.NoError(t, err)

			assert.Equal(t, tt.wantWeeks, p.TotalWeeks)
			sum := 0
			for _, m := range p.Modules {
				assert.GreaterOrEqual(t, m.Weeks, 1)
				sum += m.Weeks
			}
			assert.Equal(t, p.TotalWeeks, sum)
			assert.True(t, strings.Contains(p.Summary, tt.duration))
		})
	}
}

func TestGeneratePath_IgnoresUnparseableDuration(t *testing.T) {
	g := newTestGenerator(t)

	p, err := g.GeneratePath(context.Background(), "Spring", session.LevelBeginner, map[string]string{"time_duration": "很快"})
	require.NoError(t, err)
	assert.Equal(t, 7, p.TotalWeeks)
}

func TestGeneratePath_IgnoresOversizedDuration(t *testing.T) {
	g := newTestGenerator(t)

	for _, d := range []string{"5000000000000000000周", "4611686018427387904个月", "11年"} {
		t.Run(d, func(t *testing.T) {
			p, err := g.GeneratePath(context.Background(), "Spring", session.LevelBeginner, map[string]string{"time_duration": d})
			require.NoError(t, err)
			assert.Equal(t, 7, p.TotalWeeks)
			assert.NotContains(t, p.Summary, "计划")
		})
	}
}

func TestGeneratePath_DoesNotShareTemplates(t *testing.T) {
	g := newTestGenerator(t)
	ctx := context.Background()

	p, err := g.GeneratePath(ctx, "Go", session.LevelBeginner, map[string]string{"time_duration": "6个月"})
	require.NoError(t, err)
	p.Modules[0].Topics[0] = "mutated"

	again, err := g.GeneratePath(ctx, "Go", session.LevelBeginner, nil)
	require.NoError(t, err)
	assert.Equal(t, "go mod", again.Modules[0].Topics[0])
	assert.Equal(t, 1, again.Modules[0].Weeks)
}

func TestGeneratePath_Errors(t *testing.T) {
	g := newTestGenerator(t)

	_, err := g.GeneratePath(context.Background(), "  ", session.LevelBeginner, nil)
	assert.ErrorIs(t, err, ErrMissingTechnology)

	_, err = g.GeneratePath(context.Background(), "Go", "GURU", nil)
	assert.ErrorIs(t, err, ErrInvalidLevel)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.GeneratePath(ctx, "Go", session.LevelBeginner, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseWeeks(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"7天", 1, true},
		{"8天", 2, true},
		{"4周", 4, true},
		{"2个月", 8, true},
		{"0周", 0, false},
		{"520周", 520, true},
		{"521周", 0, false},
		{"130个月", 520, true},
		{"131个月", 0, false},
		{"3640天", 520, true},
		{"3641天", 0, false},
		{"5000000000000000000周", 0, false},
		{"2305843009213693952个月", 0, false},
		{"99999999999999999999999个月", 0, false},
		{"两周", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseWeeks(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseCatalog_Invalid(t *testing.T) {
	_, err := ParseCatalog([]byte("technologies: {}"))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("generic: [{title: x, stage: core, weeks: 1}]\ntechnologies: {Go: [{title: y, stage: core, weeks: 0}]}"))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("generic: [unclosed"))
	assert.Error(t, err)
}
