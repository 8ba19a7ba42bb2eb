// Package pathgen builds learning paths from module templates.
package pathgen

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aixgo-dev/codenav/pkg/session"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Stage groups modules by difficulty.
type Stage string

const (
	StageFoundation Stage = "foundation"
	StageCore       Stage = "core"
	StageAdvanced   Stage = "advanced"
	StageProject    Stage = "project"
)

// stagesByLevel lists the stages a learner at each level works through.
var stagesByLevel = map[session.Level][]Stage{
	session.LevelBeginner:     {StageFoundation, StageCore, StageProject},
	session.LevelIntermediate: {StageCore, StageAdvanced, StageProject},
	session.LevelAdvanced:     {StageAdvanced, StageProject},
}

var (
	// ErrMissingTechnology is returned when no technology is given.
	ErrMissingTechnology = errors.New("technology is required")
	// ErrInvalidLevel is returned for an unknown skill level.
	ErrInvalidLevel = errors.New("invalid skill level")
)

var durationSlot = regexp.MustCompile(`^(\d+)(天|周|个月)$`)

// maxPlanWeeks caps a learner-supplied schedule. Longer plans are ignored.
const maxPlanWeeks = 520

// Module is one unit of a learning path.
type Module struct {
	Title  string   `json:"title" yaml:"title"`
	Stage  Stage    `json:"stage" yaml:"stage"`
	Weeks  int      `json:"weeks" yaml:"weeks"`
	Topics []string `json:"topics" yaml:"topics"`
}

// Path is a generated learning plan.
type Path struct {
	Technology string        `json:"technology"`
	Level      session.Level `json:"level"`
	Modules    []Module      `json:"modules"`
	TotalWeeks int           `json:"totalWeeks"`
	Summary    string        `json:"summary"`
}

type catalogFile struct {
	Technologies map[string][]Module `yaml:"technologies"`
	Generic      []Module            `yaml:"generic"`
}

// Generator produces paths from a template catalog. It is immutable and safe
// for concurrent use.
type Generator struct {
	catalog map[string][]Module
	generic []Module
}

// NewGenerator returns a generator over the built-in catalog.
func NewGenerator() (*Generator, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// ParseCatalog builds a generator from a YAML catalog.
func ParseCatalog(data []byte) (*Generator, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse path catalog: %w", err)
	}
	if len(f.Generic) == 0 {
		return nil, fmt.Errorf("path catalog has no generic modules")
	}

	g := &Generator{
		catalog: make(map[string][]Module, len(f.Technologies)),
		generic: f.Generic,
	}
	for tech, modules := range f.Technologies {
		for _, m := range modules {
			if m.Weeks < 1 {
				return nil, fmt.Errorf("module %q of %s must last at least one week", m.Title, tech)
			}
		}
		g.catalog[strings.ToLower(tech)] = modules
	}
	return g, nil
}

// GeneratePath builds a path for technology at level. The time_duration slot,
// when present (e.g. "3个月"), stretches or compresses the schedule to fit.
func (g *Generator) GeneratePath(ctx context.Context, technology string, level session.Level, slots map[string]string) (*Path, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	technology = strings.TrimSpace(technology)
	if technology == "" {
		return nil, ErrMissingTechnology
	}
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}

	templates, ok := g.catalog[strings.ToLower(technology)]
	if !ok {
		templates = g.generic
	}

	var modules []Module
	for _, stage := range stagesByLevel[level] {
		for _, t := range templates {
			if t.Stage != stage {
				continue
			}
			modules = append(modules, Module{
				Title:  strings.ReplaceAll(t.Title, "{tech}", technology),
				Stage:  t.Stage,
				Weeks:  t.Weeks,
				Topics: append([]string(nil), t.Topics...),
			})
		}
	}
	if len(modules) == 0 {
		return nil, fmt.Errorf("no modules for %s at level %s", technology, level)
	}

	planned, hasPlan := parseWeeks(slots["time_duration"])
	if hasPlan {
		fitSchedule(modules, planned)
	}

	total := 0
	for _, m := range modules {
		total += m.Weeks
	}

	summary := fmt.Sprintf("共 %d 个模块，预计 %d 周完成", len(modules), total)
	if hasPlan {
		summary += fmt.Sprintf("（按你计划的%s安排）", slots["time_duration"])
	}

	return &Path{
		Technology: technology,
		Level:      level,
		Modules:    modules,
		TotalWeeks: total,
		Summary:    summary,
	}, nil
}

// parseWeeks converts a normalized duration ("30天", "4周", "3个月") to weeks,
// rounding days up. Durations over maxPlanWeeks are rejected.
func parseWeeks(d string) (int, bool) {
	m := durationSlot.FindStringSubmatch(d)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 || n > maxPlanWeeks*7 {
		return 0, false
	}

	var weeks int
	switch m[2] {
	case "天":
		weeks = (n + 6) / 7
	case "周":
		weeks = n
	default:
		weeks = n * 4
	}
	if weeks > maxPlanWeeks {
		return 0, false
	}
	return weeks, true
}

// fitSchedule rescales module weeks to sum to target, keeping every module at
// least one week long. A target shorter than the module count leaves one week
// per module.
func fitSchedule(modules []Module, target int) {
	base := 0
	for _, m := range modules {
		base += m.Weeks
	}
	if target < len(modules) {
		target = len(modules)
	}

	sum := 0
	for i := range modules {
		w := max(1, modules[i].Weeks*target/base)
		modules[i].Weeks = w
		sum += w
	}

	for i := 0; sum < target; i = (i + 1) % len(modules) {
		modules[i].Weeks++
		sum++
	}
	for i := len(modules) - 1; sum > target; i = (i - 1 + len(modules)) % len(modules) {
		if modules[i].Weeks > 1 {
			modules[i].Weeks--
			sum--
		}
	}
}
