// Package policy evaluates submission rules written in Rego before a turn
// reaches the model.
package policy

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// Input is the document a submission is judged on.
type Input struct {
	SessionID       int64
	ModelID         string
	Content         string
	EstimatedTokens int
	ContextWindow   int
}

// Decision is the outcome of evaluating a submission.
type Decision struct {
	Allowed bool
	Reasons []string
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.submission_policy.deny"),
		rego.Module("submission_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewDefaultEngine creates an engine running DefaultPolicy.
func NewDefaultEngine(ctx context.Context) (*Engine, error) {
	return NewEngine(ctx, DefaultPolicy)
}

// Evaluate checks a submission. Every deny rule that fires contributes one
// reason; no reasons means the submission is allowed.
func (e *Engine) Evaluate(ctx context.Context, in Input) (Decision, error) {
	input := map[string]interface{}{
		"session_id":       in.SessionID,
		"model_id":         in.ModelID,
		"content":          in.Content,
		"estimated_tokens": in.EstimatedTokens,
		"context_window":   in.ContextWindow,
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	decision := Decision{Allowed: true}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return decision, nil
	}

	values, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}
	for _, v := range values {
		decision.Reasons = append(decision.Reasons, fmt.Sprint(v))
	}
	sort.Strings(decision.Reasons)
	decision.Allowed = len(decision.Reasons) == 0
	return decision, nil
}

// EstimateTokens approximates a token count at four characters per token.
func EstimateTokens(texts ...string) int {
	chars := 0
	for _, t := range texts {
		chars += utf8.RuneCountInString(t)
	}
	return (chars + 3) / 4
}

// DefaultPolicy rejects blank messages and conversations that no longer fit
// the model's context window. Unknown models report a zero window and are
// not size-checked.
const DefaultPolicy = `
package submission_policy

deny[msg] {
	count(trim_space(input.content)) == 0
	msg := "message must not be empty"
}

deny[msg] {
	input.context_window > 0
	input.estimated_tokens > input.context_window
	msg := sprintf("conversation of about %d tokens exceeds the %d token context window of %s", [input.estimated_tokens, input.context_window, input.model_id])
}
`
