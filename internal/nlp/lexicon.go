package nlp

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aixgo-dev/codenav/pkg/session"
	"gopkg.in/yaml.v3"
)

const maxLexiconFileSize = 1024 * 1024 // 1MB

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// ErrInvalidLexicon is returned when a lexicon fails validation.
var ErrInvalidLexicon = errors.New("invalid lexicon")

// lexiconFile is the YAML layout of a lexicon.
type lexiconFile struct {
	Featured        []string            `yaml:"featured"`
	Technologies    []technologyEntry   `yaml:"technologies"`
	SkillLevels     map[string][]string `yaml:"skill_levels"`
	QuestionMarkers []string            `yaml:"question_markers"`
	PhaseIntents    map[string]string   `yaml:"phase_intents"`
	Intents         []intentEntry       `yaml:"intents"`
}

type technologyEntry struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

type intentEntry struct {
	Intent   string   `yaml:"intent"`
	Keywords []string `yaml:"keywords"`
	Command  bool     `yaml:"command"`
}

// phrase is a lower-cased keyword bound to the value it stands for.
type phrase struct {
	text  string
	value string
}

// Lexicon holds the compiled keyword tables. It is immutable after loading
// and safe to share between goroutines.
type Lexicon struct {
	featured        []string
	technologies    []phrase
	skillLevels     []phrase
	questionMarkers []string
	phaseIntents    map[session.Phase]Intent
	intents         []intentRule
}

// intentRule is one row of the generic intent table. A command rule never
// matches a message that contains a question marker.
type intentRule struct {
	intent   Intent
	keywords []string
	command  bool
}

// DefaultLexicon returns the built-in lexicon.
func DefaultLexicon() (*Lexicon, error) {
	return ParseLexicon(defaultLexiconYAML)
}

// LoadLexicon reads a lexicon from a YAML file.
func LoadLexicon(path string) (*Lexicon, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat lexicon file: %w", err)
	}
	if info.Size() > maxLexiconFileSize {
		return nil, fmt.Errorf("lexicon file too large: %d bytes", info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon file: %w", err)
	}
	return ParseLexicon(data)
}

// ParseLexicon decodes and validates a YAML lexicon.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var f lexiconFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon: %w", err)
	}
	return compile(f)
}

func compile(f lexiconFile) (*Lexicon, error) {
	lex := &Lexicon{
		phaseIntents: make(map[session.Phase]Intent, len(f.PhaseIntents)),
	}

	known := make(map[string]string, len(f.Technologies))
	for _, tech := range f.Technologies {
		if tech.Name == "" {
			return nil, fmt.Errorf("%w: technology without a name", ErrInvalidLexicon)
		}
		known[strings.ToLower(tech.Name)] = tech.Name
		aliases := tech.Aliases
		if len(aliases) == 0 {
			aliases = []string{tech.Name}
		}
		for _, alias := range aliases {
			if alias = normalize(alias); alias != "" {
				lex.technologies = append(lex.technologies, phrase{text: alias, value: tech.Name})
			}
		}
	}

	if len(f.Featured) < 3 {
		return nil, fmt.Errorf("%w: need at least 3 featured technologies, got %d", ErrInvalidLexicon, len(f.Featured))
	}
	for _, name := range f.Featured {
		canonical, ok := known[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("%w: featured technology %q is not defined", ErrInvalidLexicon, name)
		}
		lex.featured = append(lex.featured, canonical)
	}

	// Iterate levels in a fixed order so ties resolve the same way every load.
	for _, level := range []session.Level{session.LevelBeginner, session.LevelIntermediate, session.LevelAdvanced} {
		for _, p := range f.SkillLevels[string(level)] {
			if p = normalize(p); p != "" {
				lex.skillLevels = append(lex.skillLevels, phrase{text: p, value: string(level)})
			}
		}
	}
	for level := range f.SkillLevels {
		if !session.Level(level).Valid() {
			return nil, fmt.Errorf("%w: unknown skill level %q", ErrInvalidLexicon, level)
		}
	}

	for _, m := range f.QuestionMarkers {
		if m = normalize(m); m != "" {
			lex.questionMarkers = append(lex.questionMarkers, m)
		}
	}

	for phase, intent := range f.PhaseIntents {
		p := session.Phase(phase)
		if !p.Valid() {
			return nil, fmt.Errorf("%w: unknown phase %q", ErrInvalidLexicon, phase)
		}
		if !Intent(intent).Valid() {
			return nil, fmt.Errorf("%w: unknown intent %q for phase %s", ErrInvalidLexicon, intent, phase)
		}
		lex.phaseIntents[p] = Intent(intent)
	}

	for _, entry := range f.Intents {
		intent := Intent(entry.Intent)
		if !intent.Valid() {
			return nil, fmt.Errorf("%w: unknown intent %q", ErrInvalidLexicon, entry.Intent)
		}
		rule := intentRule{intent: intent, command: entry.Command}
		for _, kw := range entry.Keywords {
			if kw = normalize(kw); kw != "" {
				rule.keywords = append(rule.keywords, kw)
			}
		}
		lex.intents = append(lex.intents, rule)
	}

	return lex, nil
}

// Featured returns the technologies suggested at the start of a conversation.
func (l *Lexicon) Featured() []string {
	out := make([]string, len(l.featured))
	copy(out, l.featured)
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// longestMatch returns the value of the longest phrase contained in text.
// Ties go to the phrase listed first.
func longestMatch(text string, phrases []phrase) (string, bool) {
	best := -1
	for i, p := range phrases {
		if !containsWord(text, p.text) {
			continue
		}
		if best < 0 || len(p.text) > len(phrases[best].text) {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return phrases[best].value, true
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if containsWord(text, kw) {
			return true
		}
	}
	return false
}

// containsWord reports whether kw occurs in text without an ASCII letter
// directly before or after a keyword edge that is itself an ASCII letter.
// "hi" matches "hi!" and "嗨hi" but not "this"; CJK keywords match anywhere.
func containsWord(text, kw string) bool {
	if kw == "" {
		return false
	}
	for from := 0; ; {
		i := strings.Index(text[from:], kw)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(kw)
		if (!isASCIILetter(kw[0]) || start == 0 || !isASCIILetter(text[start-1])) &&
			(!isASCIILetter(kw[len(kw)-1]) || end == len(text) || !isASCIILetter(text[end])) {
			return true
		}
		from = start + 1
	}
}

func isASCIILetter(b byte) bool {
	return 'a' <= b && b <= 'z' || 'A' <= b && b <= 'Z'
}
