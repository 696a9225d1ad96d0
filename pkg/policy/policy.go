package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/model"
	"github.com/m-mizutani/hearth/pkg/utils/logging"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

const denyQuery = "data.retention.deny"

type regoPrintHook struct {
	ctx context.Context
}

func (h *regoPrintHook) Print(ctx print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message)
	return nil
}

// Retention evaluates Rego rules that veto storing an exchange. Rules are
// written in package retention as a set of deny reasons:
//
//	package retention
//
//	deny contains "contains a phone number" if {
//		regex.match(`\d{3}-\d{4}-\d{4}`, input.user_message)
//	}
type Retention struct {
	query rego.PreparedEvalQuery
}

// Load reads every .rego file in dir. It returns nil without error when the
// directory holds no policy, meaning no exchange is vetoed.
func Load(ctx context.Context, dir string) (*Retention, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", dir))
	}
	if len(files) == 0 {
		return nil, nil
	}

	options := []func(*rego.Rego){rego.Query(denyQuery)}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	return prepare(ctx, options)
}

// New builds a policy from in-memory module sources keyed by file name
func New(ctx context.Context, modules map[string]string) (*Retention, error) {
	options := []func(*rego.Rego){rego.Query(denyQuery)}
	for name, src := range modules {
		options = append(options, rego.Module(name, src))
	}
	return prepare(ctx, options)
}

func prepare(ctx context.Context, options []func(*rego.Rego)) (*Retention, error) {
	query, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare retention policy", goerr.V("query", denyQuery))
	}
	return &Retention{query: query}, nil
}

// Deny returns the reasons the exchange must not be stored
func (x *Retention) Deny(ctx context.Context, ex model.Exchange) ([]string, error) {
	input := map[string]any{
		"session_id":   string(ex.SessionID),
		"user_message": ex.UserMessage,
		"ai_response":  ex.AIResponse,
	}

	rs, err := x.query.Eval(ctx, rego.EvalInput(input), rego.EvalPrintHook(&regoPrintHook{ctx: ctx}))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate retention policy", goerr.V("session_id", ex.SessionID))
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}

	values, ok := rs[0].Expressions[0].Value.([]any)
	if !ok {
		return nil, goerr.New("retention deny must be a set",
			goerr.V("value", rs[0].Expressions[0].Value),
			goerr.T(model.ErrTagParse))
	}

	reasons := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			reasons = append(reasons, s)
		} else {
			reasons = append(reasons, fmt.Sprint(v))
		}
	}
	return reasons, nil
}
