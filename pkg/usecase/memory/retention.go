package memory

import (
	"bytes"
	"context"
	_ "embed"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/interfaces"
	"github.com/m-mizutani/hearth/pkg/model"
	"github.com/m-mizutani/hearth/pkg/utils/logging"
)

//go:embed prompt/evaluate.md
var evaluatePromptRaw string

var evaluatePromptTmpl = template.Must(template.New("evaluate").Parse(evaluatePromptRaw))

// scorePattern finds the first standalone 0-9 or 10. Alternation is leftmost
// first, so "10" falls back to the second branch and is read whole.
var scorePattern = regexp.MustCompile(`\b([0-9]|10)\b`)

// ParseScore extracts the first standalone integer 0-10 from a scoring reply
func ParseScore(text string) (int, bool) {
	m := scorePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Evaluator decides whether a finished exchange is kept as a memory
type Evaluator struct {
	llm    interfaces.ChatModel
	policy interfaces.RetentionPolicy
	audit  interfaces.AuditSink
	cfg    Config
}

type EvaluatorOption func(*Evaluator)

// WithRetentionPolicy adds a policy consulted before the scoring call
func WithRetentionPolicy(policy interfaces.RetentionPolicy) EvaluatorOption {
	return func(x *Evaluator) {
		x.policy = policy
	}
}

// WithAuditSink records every verdict
func WithAuditSink(sink interfaces.AuditSink) EvaluatorOption {
	return func(x *Evaluator) {
		x.audit = sink
	}
}

func WithEvaluatorConfig(cfg Config) EvaluatorOption {
	return func(x *Evaluator) {
		x.cfg = cfg
	}
}

func NewEvaluator(llm interfaces.ChatModel, opts ...EvaluatorOption) *Evaluator {
	x := &Evaluator{
		llm: llm,
		cfg: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Evaluate returns STORE or SKIP for the exchange. It never fails: scoring
// errors and unreadable replies both resolve to STORE.
func (x *Evaluator) Evaluate(ctx context.Context, ex model.Exchange) model.Verdict {
	verdict := x.evaluate(ctx, ex)

	logging.From(ctx).Debug("retention verdict",
		"session_id", ex.SessionID,
		"decision", verdict.Decision,
		"score", verdict.Score,
		"reason", verdict.Reason)

	if x.audit != nil {
		row := &model.RetentionAudit{
			SessionID:   string(ex.SessionID),
			Decision:    string(verdict.Decision),
			Score:       int64(verdict.Score),
			Reason:      verdict.Reason,
			EvaluatedAt: time.Now().UTC(),
		}
		if err := x.audit.Put(ctx, row); err != nil {
			logging.From(ctx).Warn("failed to record retention audit", "error", err)
		}
	}

	return verdict
}

func (x *Evaluator) evaluate(ctx context.Context, ex model.Exchange) model.Verdict {
	if utf8.RuneCountInString(strings.TrimSpace(ex.UserMessage)) < x.cfg.MinUserChars ||
		utf8.RuneCountInString(strings.TrimSpace(ex.AIResponse)) < x.cfg.MinResponseChars {
		return model.Verdict{Decision: model.DecisionSkip, Score: -1, Reason: "too short"}
	}

	if x.policy != nil {
		reasons, err := x.policy.Deny(ctx, ex)
		if err != nil {
			logging.From(ctx).Warn("retention policy failed, continuing to scoring", "error", err)
		} else if len(reasons) > 0 {
			return model.Verdict{Decision: model.DecisionSkip, Score: -1, Reason: "policy: " + strings.Join(reasons, "; ")}
		}
	}

	reply, err := x.score(ctx, ex)
	if err != nil {
		logging.From(ctx).Error("scoring call failed, defaulting to store", "error", err)
		return model.Verdict{Decision: model.DecisionStore, Score: -1, Reason: "scoring failed"}
	}

	score, ok := ParseScore(reply)
	if !ok {
		logging.From(ctx).Warn("could not parse retention score, defaulting to store", "reply", reply)
		return model.Verdict{Decision: model.DecisionStore, Score: -1, Reason: "unparseable score"}
	}

	if score >= x.cfg.ScoreThreshold {
		return model.Verdict{Decision: model.DecisionStore, Score: score, Reason: "score " + strconv.Itoa(score) + "/10"}
	}
	return model.Verdict{Decision: model.DecisionSkip, Score: score, Reason: "score " + strconv.Itoa(score) + "/10"}
}

func (x *Evaluator) score(ctx context.Context, ex model.Exchange) (string, error) {
	var buf bytes.Buffer
	if err := evaluatePromptTmpl.Execute(&buf, ex); err != nil {
		return "", goerr.Wrap(err, "failed to execute evaluate prompt template")
	}

	reply, err := x.llm.Complete(ctx, &model.Completion{
		Messages: []model.CompletionMessage{
			{Role: model.RoleUser, Content: buf.String()},
		},
		MaxTokens:   x.cfg.ScoreMaxTokens,
		Temperature: x.cfg.ScoreTemperature,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to score exchange", goerr.V("session_id", ex.SessionID))
	}

	return strings.TrimSpace(reply), nil
}
