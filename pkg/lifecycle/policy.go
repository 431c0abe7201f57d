package lifecycle

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// ApprovalPolicy is an optional CEL predicate evaluated on top of the
// built-in approval preconditions. Deployments use it to tighten approval,
// never to loosen it.
type ApprovalPolicy struct {
	program cel.Program
	source  string
}

// CompileApprovalPolicy compiles a CEL expression over the approval context.
// Available variables: quality (string grade), completeness (double),
// source (string), pii_count (int), statement_type (string).
func CompileApprovalPolicy(expr string) (*ApprovalPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("quality", cel.StringType),
		cel.Variable("completeness", cel.DoubleType),
		cel.Variable("source", cel.StringType),
		cel.Variable("pii_count", cel.IntType),
		cel.Variable("statement_type", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("policy env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("policy compile: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("policy must evaluate to bool, got %s", ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("policy program: %w", err)
	}
	return &ApprovalPolicy{program: program, source: expr}, nil
}

// Allows evaluates the policy for one record. A nil policy allows everything.
func (p *ApprovalPolicy) Allows(record *TrainingRecord) (bool, error) {
	if p == nil {
		return true, nil
	}
	completeness := 0.0
	grade := ""
	if record.Quality != nil {
		completeness = record.Quality.Completeness
		grade = string(record.Quality.Overall)
	}
	piiCount := 0
	if record.Anonymization != nil {
		piiCount = record.Anonymization.PIICount
	}
	out, _, err := p.program.Eval(map[string]interface{}{
		"quality":        grade,
		"completeness":   completeness,
		"source":         record.Source,
		"pii_count":      piiCount,
		"statement_type": string(record.StatementType),
	})
	if err != nil {
		return false, fmt.Errorf("policy eval: %w", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy returned %T, want bool", out.Value())
	}
	return allowed, nil
}
