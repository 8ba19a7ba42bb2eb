// Package nlp implements the deterministic, rule-based message classifier
// that feeds the dialogue state machine. The same text and phase always
// produce the same intent, entities and confidence.
package nlp

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/aixgo-dev/codenav/pkg/session"
)

// Intent tags the purpose of a message.
type Intent string

const (
	IntentGreeting         Intent = "greeting"
	IntentSetLearningGoal  Intent = "set_learning_goal"
	IntentAssessSkill      Intent = "assess_skill"
	IntentAskQuestion      Intent = "ask_question"
	IntentGeneralQuestion  Intent = "general_question"
	IntentRequestReview    Intent = "request_review"
	IntentGiveFeedback     Intent = "give_feedback"
	IntentContinueLearning Intent = "continue_learning"
	IntentRestart          Intent = "restart"
)

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	switch i {
	case IntentGreeting, IntentSetLearningGoal, IntentAssessSkill, IntentAskQuestion,
		IntentGeneralQuestion, IntentRequestReview, IntentGiveFeedback,
		IntentContinueLearning, IntentRestart:
		return true
	default:
		return false
	}
}

// Entity keys.
const (
	EntityTechnology   = "technology"
	EntitySkillLevel   = "skill_level"
	EntityTimeDuration = "time_duration"
)

// Entities maps entity keys to recognized values.
type Entities map[string]string

// Result is the classification of one message.
type Result struct {
	Intent     Intent   `json:"intent"`
	Entities   Entities `json:"entities"`
	Confidence float64  `json:"confidence"`
}

// MaxInputRunes bounds the length of a classifiable message.
const MaxInputRunes = 4000

var (
	// ErrInvalidInput is returned for text that is not valid UTF-8.
	ErrInvalidInput = errors.New("message is not valid UTF-8")
	// ErrInputTooLong is returned for text longer than MaxInputRunes.
	ErrInputTooLong = errors.New("message too long")
)

var (
	durationPattern   = regexp.MustCompile(`(\d+)\s*(?:个)?\s*(天|周|星期|月)`)
	experiencePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*年`)
)

// Confidence scoring.
const (
	baseConfidence   = 0.5
	entityBonus      = 0.1
	anchorBonus      = 0.3
	maxConfidence    = 1.0
	beginnerMaxYears = 2
	middleMaxYears   = 5
)

// anchors names the entity that confirms an intent.
var anchors = map[Intent]string{
	IntentSetLearningGoal: EntityTechnology,
	IntentAssessSkill:     EntitySkillLevel,
}

// Classifier maps messages to intents and entities using a Lexicon.
// It has no mutable state and is safe for concurrent use.
type Classifier struct {
	lex *Lexicon
}

// NewClassifier creates a classifier over lex.
func NewClassifier(lex *Lexicon) *Classifier {
	return &Classifier{lex: lex}
}

// Lexicon returns the tables the classifier was built with.
func (c *Classifier) Lexicon() *Lexicon {
	return c.lex
}

// Classify resolves intent, entities and confidence for text in the given phase.
func (c *Classifier) Classify(text string, phase session.Phase) (Result, error) {
	if !utf8.ValidString(text) {
		return Result{}, ErrInvalidInput
	}
	if n := utf8.RuneCountInString(text); n > MaxInputRunes {
		return Result{}, fmt.Errorf("%w: %d runes", ErrInputTooLong, n)
	}

	intent := c.ExtractIntent(text, phase)
	entities := c.ExtractEntities(text)
	return Result{
		Intent:     intent,
		Entities:   entities,
		Confidence: CalculateConfidence(intent, entities),
	}, nil
}

// ExtractIntent applies, in order:
//  1. a question marker during GREETING yields ask_question;
//  2. a phase-forced intent (e.g. GOAL_IDENTIFICATION → set_learning_goal);
//  3. the first matching rule of the generic intent table, skipping command
//     rules (restart) when the message contains a question marker;
//  4. general_question.
//
// ASCII keywords only match as whole words.
func (c *Classifier) ExtractIntent(text string, phase session.Phase) Intent {
	t := normalize(text)
	question := containsAny(t, c.lex.questionMarkers)

	if phase == session.PhaseGreeting && question {
		return IntentAskQuestion
	}
	if forced, ok := c.lex.phaseIntents[phase]; ok {
		return forced
	}
	for _, rule := range c.lex.intents {
		if rule.command && question {
			continue
		}
		if containsAny(t, rule.keywords) {
			return rule.intent
		}
	}
	return IntentGeneralQuestion
}

// ExtractEntities recognizes technology, skill level and duration.
func (c *Classifier) ExtractEntities(text string) Entities {
	t := normalize(text)
	entities := make(Entities)

	if tech, ok := longestMatch(t, c.lex.technologies); ok {
		entities[EntityTechnology] = tech
	}
	if level, ok := c.skillLevel(t); ok {
		entities[EntitySkillLevel] = string(level)
	}
	if d, ok := extractDuration(t); ok {
		entities[EntityTimeDuration] = d
	}
	return entities
}

// ExtractLearningGoal returns the technology named in text, if any.
func (c *Classifier) ExtractLearningGoal(text string) (string, bool) {
	return longestMatch(normalize(text), c.lex.technologies)
}

// AssessUserLevel returns the level described by text, defaulting to
// INTERMEDIATE when nothing is recognized.
func (c *Classifier) AssessUserLevel(text string) session.Level {
	if level, ok := c.skillLevel(normalize(text)); ok {
		return level
	}
	return session.LevelIntermediate
}

// skillLevel prefers explicit level phrases over years of experience.
func (c *Classifier) skillLevel(t string) (session.Level, bool) {
	if v, ok := longestMatch(t, c.lex.skillLevels); ok {
		return session.Level(v), true
	}
	m := experiencePattern.FindStringSubmatch(t)
	if m == nil {
		return "", false
	}
	years, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return "", false
	}
	return LevelForYears(years), true
}

// LevelForYears maps years of experience to a level.
func LevelForYears(years float64) session.Level {
	switch {
	case years < beginnerMaxYears:
		return session.LevelBeginner
	case years < middleMaxYears:
		return session.LevelIntermediate
	default:
		return session.LevelAdvanced
	}
}

func extractDuration(t string) (string, bool) {
	m := durationPattern.FindStringSubmatch(t)
	if m == nil {
		return "", false
	}
	switch m[2] {
	case "天":
		return m[1] + "天", true
	case "周", "星期":
		return m[1] + "周", true
	default:
		return m[1] + "个月", true
	}
}

// CalculateConfidence scores a classification: a base of 0.5, 0.1 per entity,
// and 0.3 when the intent's anchor entity is present, capped at 1.0.
func CalculateConfidence(intent Intent, entities Entities) float64 {
	score := baseConfidence + entityBonus*float64(len(entities))
	if anchor, ok := anchors[intent]; ok {
		if _, present := entities[anchor]; present {
			score += anchorBonus
		}
	}
	if score > maxConfidence {
		return maxConfidence
	}
	return score
}
