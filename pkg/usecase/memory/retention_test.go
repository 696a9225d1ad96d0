package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hearth/pkg/model"
	"github.com/m-mizutani/hearth/pkg/usecase/memory"
)

func scoringModel(reply string, err error) *mockChatModel {
	return &mockChatModel{
		completeFunc: func(ctx context.Context, req *model.Completion) (string, error) {
			return reply, err
		},
	}
}

var meaningful = model.Exchange{
	SessionID:   "s1",
	UserMessage: "I've been having panic attacks before work presentations",
	AIResponse:  "That sounds really hard. What usually happens right before one starts?",
}

func TestEvaluatorPreFilter(t *testing.T) {
	testCases := []struct {
		name string
		user string
		ai   string
	}{
		{"short user message", "ok", "That is good to hear, tell me more."},
		{"whitespace padded user message", "  hi  ", "That is good to hear, tell me more."},
		{"short reply", "I feel anxious about my job", "I see."},
		{"four rune user message", "ありがとう"[:12], "That is good to hear, tell me more."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			llm := scoringModel("9", nil)
			ev := memory.NewEvaluator(llm)

			v := ev.Evaluate(context.Background(), model.Exchange{SessionID: "s1", UserMessage: tc.user, AIResponse: tc.ai})
			gt.Equal(t, v.Decision, model.DecisionSkip)
			gt.Equal(t, llm.calls.Load(), int32(0))
		})
	}
}

func TestEvaluatorThreshold(t *testing.T) {
	testCases := []struct {
		reply  string
		expect model.Decision
		score  int
	}{
		{"0", model.DecisionSkip, 0},
		{"5", model.DecisionSkip, 5},
		{"6", model.DecisionStore, 6},
		{"10", model.DecisionStore, 10},
		{"Score: 8", model.DecisionStore, 8},
		{"3/10", model.DecisionSkip, 3},
		{"I'd say 7.", model.DecisionStore, 7},
	}

	for _, tc := range testCases {
		t.Run(tc.reply, func(t *testing.T) {
			llm := scoringModel(tc.reply, nil)
			v := memory.NewEvaluator(llm).Evaluate(context.Background(), meaningful)
			gt.Equal(t, v.Decision, tc.expect)
			gt.Equal(t, v.Score, tc.score)
			gt.Equal(t, llm.calls.Load(), int32(1))
		})
	}
}

func TestEvaluatorScoringRequest(t *testing.T) {
	var captured *model.Completion
	llm := &mockChatModel{
		completeFunc: func(ctx context.Context, req *model.Completion) (string, error) {
			captured = req
			return "7", nil
		},
	}

	memory.NewEvaluator(llm).Evaluate(context.Background(), meaningful)
	gt.V(t, captured).NotNil()
	gt.Equal(t, captured.MaxTokens, 10)
	gt.Equal(t, captured.Temperature, 0.1)
	gt.A(t, captured.Messages).Length(1)
	gt.S(t, captured.Messages[0].Content).Contains(meaningful.UserMessage)
	gt.S(t, captured.Messages[0].Content).Contains(meaningful.AIResponse)
}

func TestEvaluatorFailOpen(t *testing.T) {
	t.Run("call error", func(t *testing.T) {
		v := memory.NewEvaluator(scoringModel("", errors.New("quota exceeded"))).Evaluate(context.Background(), meaningful)
		gt.Equal(t, v.Decision, model.DecisionStore)
		gt.Equal(t, v.Score, -1)
	})

	t.Run("unparseable reply", func(t *testing.T) {
		v := memory.NewEvaluator(scoringModel("definitely worth keeping", nil)).Evaluate(context.Background(), meaningful)
		gt.Equal(t, v.Decision, model.DecisionStore)
	})

	t.Run("out of range number", func(t *testing.T) {
		v := memory.NewEvaluator(scoringModel("42", nil)).Evaluate(context.Background(), meaningful)
		gt.Equal(t, v.Decision, model.DecisionStore)
	})
}

func TestEvaluatorPolicy(t *testing.T) {
	t.Run("deny skips without scoring", func(t *testing.T) {
		llm := scoringModel("9", nil)
		policy := &mockPolicy{denyFunc: func(ctx context.Context, ex model.Exchange) ([]string, error) {
			return []string{"contains credentials"}, nil
		}}

		v := memory.NewEvaluator(llm, memory.WithRetentionPolicy(policy)).Evaluate(context.Background(), meaningful)
		gt.Equal(t, v.Decision, model.DecisionSkip)
		gt.S(t, v.Reason).Contains("contains credentials")
		gt.Equal(t, llm.calls.Load(), int32(0))
	})

	t.Run("policy error falls through to scoring", func(t *testing.T) {
		llm := scoringModel("2", nil)
		policy := &mockPolicy{denyFunc: func(ctx context.Context, ex model.Exchange) ([]string, error) {
			return nil, errors.New("broken policy")
		}}

		v := memory.NewEvaluator(llm, memory.WithRetentionPolicy(policy)).Evaluate(context.Background(), meaningful)
		gt.Equal(t, v.Decision, model.DecisionSkip)
		gt.Equal(t, llm.calls.Load(), int32(1))
	})
}

func TestEvaluatorAudit(t *testing.T) {
	audit := &mockAudit{}
	ev := memory.NewEvaluator(scoringModel("8", nil), memory.WithAuditSink(audit))

	ev.Evaluate(context.Background(), meaningful)
	ev.Evaluate(context.Background(), model.Exchange{SessionID: "s2", UserMessage: "ok", AIResponse: "ok"})

	gt.A(t, audit.rows).Length(2)
	gt.Equal(t, audit.rows[0].Decision, "store")
	gt.Equal(t, audit.rows[0].Score, int64(8))
	gt.Equal(t, audit.rows[1].SessionID, "s2")
	gt.Equal(t, audit.rows[1].Decision, "skip")
}

func TestParseScore(t *testing.T) {
	testCases := []struct {
		text  string
		score int
		ok    bool
	}{
		{"7", 7, true},
		{"10", 10, true},
		{"Score: 10", 10, true},
		{"10/10", 10, true},
		{"between 4 and 6", 4, true},
		{"11", 0, false},
		{"none", 0, false},
		{"", 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			score, ok := memory.ParseScore(tc.text)
			gt.Equal(t, ok, tc.ok)
			gt.Equal(t, score, tc.score)
		})
	}
}
