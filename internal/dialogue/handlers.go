package dialogue

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/aixgo-dev/codenav/internal/chat"
	"github.com/aixgo-dev/codenav/internal/llm/provider"
	"github.com/aixgo-dev/codenav/internal/nlp"
	"github.com/aixgo-dev/codenav/pkg/session"
	"go.uber.org/zap"
)

// Confidence reported per outcome.
const (
	confidenceGreeting      = 1.0
	confidenceGoalResolved  = 0.8
	confidenceClarification = 0.3
	confidenceLevelAssessed = 0.9
	confidencePathGenerated = 0.85
	confidenceTask          = 0.7
)

// Actions
const (
	ActionSetLearningGoal  = "set_learning_goal"
	ActionAssessSkill      = "assess_skill"
	ActionGeneratePath     = "generate_path"
	ActionStartModule      = "start_module"
	ActionAskQuestion      = "ask_question"
	ActionContinueLearning = "continue_learning"
)

const maxFeedbackRunes = 500

const (
	msgGreeting        = "你好！我是你的编程学习助手。告诉我你想学习的技术，我会先了解你的基础，再为你制定学习路径。"
	msgGreetingGoal    = "太好了，我们先确定学习目标。你想学习哪项技术？可以从下面选一个，也可以直接告诉我。"
	msgGreetingAsk     = "我可以解答编程学习中的问题。先告诉我你想学习的技术，这样回答会更有针对性："
	msgGoalResolved    = "很好，我们来学习 %s！请简单介绍一下你的基础，比如学了多久、做过哪些项目？"
	msgGoalUnresolved  = "抱歉，我没能识别出你想学习的技术。可以说得具体一些吗？例如："
	msgLevelAssessed   = "了解，你目前是%s水平。接下来我会为你制定 %s 学习路径，准备好了就告诉我。"
	msgPathGenerated   = "已为你生成 %s 学习路径：%s。"
	msgPathFailed      = "抱歉，生成学习路径时出现了问题，请稍后再试。"
	msgMissingGoal     = "我们还没有确定学习目标。你想学习哪项技术？"
	msgMissingLevel    = "我还不了解你的基础。请简单介绍一下你的学习或工作经验。"
	msgReview          = "收到代码审查请求。请直接粘贴代码片段，我会从可读性、命名和常见错误几个方面给出建议。"
	msgFeedbackOpen    = "谢谢你愿意分享反馈！哪些内容对你有帮助，哪些地方还需要改进？"
	msgContinue        = "继续加油！当前计划：%s。遇到问题随时提问。"
	msgFeedbackNoted   = "感谢你的反馈，我已经记录下来。说“继续学习”就可以回到学习任务。"
	msgBackToTask      = "欢迎回来！当前计划：%s。有问题随时问我。"
	msgRestart         = "好的，我们重新开始。你想学习哪项技术？"
	msgChatTimeout     = "抱歉，回答超时了，请稍后再试或换个问法。"
	msgChatUnavailable = "抱歉，暂时无法回答这个问题，请稍后再试。"
	msgInternalError   = "抱歉，处理你的消息时出现了问题，请稍后再试。"
)

var levelNames = map[session.Level]string{
	session.LevelBeginner:     "初学者",
	session.LevelIntermediate: "中级",
	session.LevelAdvanced:     "高级",
}

func (e *Engine) technologyActions() []SuggestedAction {
	actions := make([]SuggestedAction, len(e.featured))
	for i, tech := range e.featured {
		actions[i] = SuggestedAction{Label: tech, Action: ActionSetLearningGoal, Value: tech}
	}
	return actions
}

func levelActions() []SuggestedAction {
	return []SuggestedAction{
		{Label: "我是新手", Action: ActionAssessSkill, Value: string(session.LevelBeginner)},
		{Label: "有一些经验", Action: ActionAssessSkill, Value: string(session.LevelIntermediate)},
		{Label: "很熟练", Action: ActionAssessSkill, Value: string(session.LevelAdvanced)},
	}
}

func (e *Engine) handleGreeting(t *turn) Response {
	msg := msgGreeting
	switch t.result.Intent {
	case nlp.IntentSetLearningGoal:
		t.sess.Phase = session.PhaseGoalIdentification
		msg = msgGreetingGoal
	case nlp.IntentAskQuestion:
		msg = msgGreetingAsk
	}

	return Response{
		Type:             TypeTextResponse,
		Message:          msg,
		Confidence:       confidenceGreeting,
		SuggestedActions: e.technologyActions(),
	}
}

func (e *Engine) handleGoalIdentification(t *turn) Response {
	goal, ok := t.result.Entities[nlp.EntityTechnology]
	if !ok {
		return Response{
			Type:             TypeClarificationNeeded,
			Message:          msgGoalUnresolved,
			Confidence:       confidenceClarification,
			SuggestedActions: e.technologyActions(),
		}
	}

	t.sess.LearningGoal = goal
	t.sess.Phase = session.PhaseSkillAssessment

	return Response{
		Type:             TypeTextResponse,
		Message:          fmt.Sprintf(msgGoalResolved, goal),
		Confidence:       confidenceGoalResolved,
		Data:             map[string]any{"learningGoal": goal},
		SuggestedActions: levelActions(),
	}
}

// handleSkillAssessment always succeeds: a message without a recognizable
// level is taken as INTERMEDIATE.
func (e *Engine) handleSkillAssessment(t *turn) Response {
	level := session.LevelIntermediate
	if v, ok := t.result.Entities[nlp.EntitySkillLevel]; ok && session.Level(v).Valid() {
		level = session.Level(v)
	}

	t.sess.UserLevel = level
	t.sess.Phase = session.PhasePathPlanning

	return Response{
		Type:       TypeTextResponse,
		Message:    fmt.Sprintf(msgLevelAssessed, levelNames[level], t.sess.LearningGoal),
		Confidence: confidenceLevelAssessed,
		Data:       map[string]any{"userLevel": string(level)},
		SuggestedActions: []SuggestedAction{
			{Label: "生成学习路径", Action: ActionGeneratePath},
		},
	}
}

func (e *Engine) handlePathPlanning(ctx context.Context, t *turn) Response {
	// Guard the TASK_EXECUTION invariant: send the learner back to whichever
	// step is missing.
	if t.sess.LearningGoal == "" {
		t.sess.Phase = session.PhaseGoalIdentification
		return Response{
			Type:             TypeClarificationNeeded,
			Message:          msgMissingGoal,
			Confidence:       confidenceClarification,
			SuggestedActions: e.technologyActions(),
		}
	}
	if !t.sess.UserLevel.Valid() {
		t.sess.Phase = session.PhaseSkillAssessment
		return Response{
			Type:             TypeClarificationNeeded,
			Message:          msgMissingLevel,
			Confidence:       confidenceClarification,
			SuggestedActions: levelActions(),
		}
	}

	path, err := e.paths.GeneratePath(ctx, t.sess.LearningGoal, t.sess.UserLevel, maps.Clone(t.sess.Context))
	if err == nil && path == nil {
		err = errors.New("path generator returned no path")
	}
	if err != nil {
		e.logger.Warn("learning path generation failed",
			zap.String("session_id", t.sess.ID),
			zap.String("goal", t.sess.LearningGoal),
			zap.Error(err),
		)
		return errorResponse("", msgPathFailed)
	}

	t.sess.Phase = session.PhaseTaskExecution
	t.sess.Context[ContextPathSummary] = path.Summary

	first := ""
	if len(path.Modules) > 0 {
		first = path.Modules[0].Title
	}

	return Response{
		Type:       TypeLearningPathGenerated,
		Message:    fmt.Sprintf(msgPathGenerated, t.sess.LearningGoal, path.Summary),
		Confidence: confidencePathGenerated,
		Data: map[string]any{
			"path":    path,
			"summary": path.Summary,
		},
		SuggestedActions: []SuggestedAction{
			{Label: "开始第一个模块", Action: ActionStartModule, Value: first},
			{Label: "我有问题", Action: ActionAskQuestion},
		},
	}
}

func (e *Engine) handleTaskExecution(ctx context.Context, t *turn) Response {
	switch t.result.Intent {
	case nlp.IntentRestart:
		return e.restart(t)
	case nlp.IntentRequestReview:
		return Response{Type: TypeTextResponse, Message: msgReview, Confidence: confidenceTask}
	case nlp.IntentGiveFeedback:
		t.sess.Phase = session.PhaseReviewFeedback
		return Response{Type: TypeTextResponse, Message: msgFeedbackOpen, Confidence: confidenceTask}
	case nlp.IntentContinueLearning:
		return Response{
			Type:       TypeTextResponse,
			Message:    fmt.Sprintf(msgContinue, t.sess.Context[ContextPathSummary]),
			Confidence: confidenceTask,
		}
	default:
		return e.answer(ctx, t)
	}
}

func (e *Engine) handleReviewFeedback(t *turn) Response {
	switch t.result.Intent {
	case nlp.IntentRestart:
		return e.restart(t)
	case nlp.IntentContinueLearning:
		t.sess.Phase = session.PhaseTaskExecution
		return Response{
			Type:             TypeTextResponse,
			Message:          fmt.Sprintf(msgBackToTask, t.sess.Context[ContextPathSummary]),
			Confidence:       confidenceTask,
			SuggestedActions: []SuggestedAction{{Label: "我有问题", Action: ActionAskQuestion}},
		}
	default:
		t.sess.Context[ContextLastFeedback] = truncateRunes(t.req.Message, maxFeedbackRunes)
		return Response{
			Type:             TypeTextResponse,
			Message:          msgFeedbackNoted,
			Confidence:       confidenceTask,
			SuggestedActions: []SuggestedAction{{Label: "继续学习", Action: ActionContinueLearning}},
		}
	}
}

// restart returns the session to GREETING, keeping its id and message count.
func (e *Engine) restart(t *turn) Response {
	t.sess.Phase = session.PhaseGreeting
	t.sess.LearningGoal = ""
	t.sess.UserLevel = ""
	t.sess.Context = make(map[string]string)

	return Response{
		Type:             TypeTextResponse,
		Message:          msgRestart,
		Confidence:       confidenceGreeting,
		SuggestedActions: e.technologyActions(),
	}
}

// answer delegates the question to the chat backend under the engine's own
// timeout.
func (e *Engine) answer(ctx context.Context, t *turn) Response {
	ctx, cancel := context.WithTimeout(ctx, e.chatTimeout)
	defer cancel()

	ctx = chat.WithLearningContext(ctx, chat.LearningContext{
		Goal:  t.sess.LearningGoal,
		Level: string(t.sess.UserLevel),
	})

	reply, err := e.ask(ctx, t)
	if err != nil {
		e.logger.Warn("chat backend failed",
			zap.String("session_id", t.sess.ID),
			zap.String("provider", t.req.PreferredProvider),
			zap.Error(err),
		)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, chat.ErrTimeout) {
			return errorResponse("", msgChatTimeout)
		}
		return errorResponse("", msgChatUnavailable)
	}

	return Response{
		Type:       TypeTextResponse,
		Message:    reply,
		Confidence: confidenceTask,
	}
}

// ask sends the question to the preferred provider, retrying once against the
// default provider when the preferred one is unsupported or unavailable.
func (e *Engine) ask(ctx context.Context, t *turn) (string, error) {
	if t.req.PreferredProvider == "" {
		return e.chat.SendMessage(ctx, t.req.Message)
	}

	reply, err := e.chat.SendMessageWithProvider(ctx, t.req.Message, t.req.PreferredProvider)
	if errors.Is(err, provider.ErrUnsupportedProvider) || errors.Is(err, provider.ErrProviderUnavailable) {
		e.logger.Info("preferred provider not usable, using default",
			zap.String("session_id", t.sess.ID),
			zap.String("provider", t.req.PreferredProvider),
			zap.Error(err),
		)
		return e.chat.SendMessage(ctx, t.req.Message)
	}
	return reply, err
}
