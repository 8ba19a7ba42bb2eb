package chat

import (
	"context"
	"strings"
)

// LearningContext describes what the learner is studying. The dialogue engine
// attaches it to the request context so replies stay on topic.
type LearningContext struct {
	Goal  string
	Level string
}

type learningContextKey struct{}

// WithLearningContext returns a copy of ctx carrying lc
func WithLearningContext(ctx context.Context, lc LearningContext) context.Context {
	return context.WithValue(ctx, learningContextKey{}, lc)
}

// LearningContextFrom returns the learning context attached to ctx, if any
func LearningContextFrom(ctx context.Context) (LearningContext, bool) {
	lc, ok := ctx.Value(learningContextKey{}).(LearningContext)
	if !ok || (lc.Goal == "" && lc.Level == "") {
		return LearningContext{}, false
	}
	return lc, true
}

// String renders the context as a prompt fragment
func (lc LearningContext) String() string {
	var b strings.Builder
	if lc.Goal != "" {
		b.WriteString("学习目标: ")
		b.WriteString(lc.Goal)
	}
	if lc.Level != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("当前水平: ")
		b.WriteString(lc.Level)
	}
	return b.String()
}
