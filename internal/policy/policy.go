// Package policy provides the CEL-Go based account policy engine.
//
// Policies run after scoring and before ring aggregation: a suppress policy
// removes a matching account from the report (settlement accounts, known
// processors), a boost policy scales its score. With no policies loaded the
// engine is a no-op and scoring behaves exactly as configured.
package policy

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/mulerift/internal/domain"
	"github.com/opensource-finance/mulerift/internal/graph"
)

// Action is what a matching policy does to an account.
type Action string

const (
	ActionSuppress Action = "suppress"
	ActionBoost    Action = "boost"
)

// Policy is one operator-defined account rule.
type Policy struct {
	ID          string  `json:"id"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Action      Action  `json:"action"`
	Weight      float64 `json:"weight,omitempty"` // boost multiplier
	Enabled     bool    `json:"enabled"`
}

// CompiledPolicy holds a pre-compiled CEL program.
type CompiledPolicy struct {
	Policy  Policy
	Program cel.Program
}

// Engine evaluates compiled policies against scored accounts.
type Engine struct {
	env      *cel.Env
	compiled []*CompiledPolicy
}

// NewEngine creates a policy engine with the account evaluation environment.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("account_id", cel.StringType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("patterns", cel.ListType(cel.StringType)),
		cel.Variable("in_volume", cel.DoubleType),
		cel.Variable("out_volume", cel.DoubleType),
		cel.Variable("in_degree", cel.IntType),
		cel.Variable("out_degree", cel.IntType),
		cel.Variable("fan_in", cel.IntType),
		cel.Variable("fan_out", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Engine{env: env}, nil
}

// LoadFile reads a JSON policy file and compiles its enabled policies.
// Compilation failures are fatal at startup, never mid-run.
func (e *Engine) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: cannot read policy file %s: %v", domain.ErrInput, path, err)
	}
	var policies []Policy
	if err := json.Unmarshal(data, &policies); err != nil {
		return fmt.Errorf("%w: cannot parse policy file %s: %v", domain.ErrInput, path, err)
	}
	return e.Load(policies)
}

// Load compiles and loads the enabled policies.
func (e *Engine) Load(policies []Policy) error {
	for _, p := range policies {
		if !p.Enabled {
			continue
		}
		compiled, err := e.compile(p)
		if err != nil {
			return err
		}
		e.compiled = append(e.compiled, compiled)
	}
	return nil
}

// PolicyCount returns the number of loaded policies.
func (e *Engine) PolicyCount() int {
	return len(e.compiled)
}

// Apply evaluates every policy against every reported account. Suppressed
// accounts are removed; boosts multiply the score, capped at 100.
func (e *Engine) Apply(accounts []domain.SuspiciousAccount, g *graph.Graph) []domain.SuspiciousAccount {
	if len(e.compiled) == 0 {
		return accounts
	}

	out := make([]domain.SuspiciousAccount, 0, len(accounts))
	suppressed := 0

	for _, account := range accounts {
		activation := e.activation(&account, g)

		keep := true
		multiplier := 1.0

		for _, cp := range e.compiled {
			val, _, err := cp.Program.Eval(activation)
			if err != nil {
				slog.Warn("policy evaluation failed",
					"policy_id", cp.Policy.ID,
					"account_id", account.AccountID,
					"error", err,
				)
				continue
			}
			matched, ok := val.(types.Bool)
			if !ok || !bool(matched) {
				continue
			}

			switch cp.Policy.Action {
			case ActionSuppress:
				keep = false
			case ActionBoost:
				w := cp.Policy.Weight
				if w <= 0 {
					w = 1.0
				}
				multiplier *= w
			}
		}

		if !keep {
			suppressed++
			continue
		}
		if multiplier != 1.0 {
			account.SuspicionScore = math.Round(math.Min(100, account.SuspicionScore*multiplier)*10) / 10
		}
		out = append(out, account)
	}

	if suppressed > 0 {
		slog.Info("accounts suppressed by policy", "count", suppressed)
	}
	return out
}

func (e *Engine) activation(account *domain.SuspiciousAccount, g *graph.Graph) map[string]any {
	activation := map[string]any{
		"account_id": account.AccountID,
		"score":      account.SuspicionScore,
		"patterns":   account.DetectedPatterns,
		"in_volume":  0.0,
		"out_volume": 0.0,
		"in_degree":  0,
		"out_degree": 0,
		"fan_in":     0,
		"fan_out":    0,
	}
	if node := g.Node(account.AccountID); node != nil {
		inVol, _ := node.InVolume.Float64()
		outVol, _ := node.OutVolume.Float64()
		activation["in_volume"] = inVol
		activation["out_volume"] = outVol
		activation["in_degree"] = node.InDegree
		activation["out_degree"] = node.OutDegree
		activation["fan_in"] = node.DistinctIn
		activation["fan_out"] = node.DistinctOut
	}
	return activation
}

func (e *Engine) compile(p Policy) (*CompiledPolicy, error) {
	if p.Action != ActionSuppress && p.Action != ActionBoost {
		return nil, fmt.Errorf("%w: policy %s: unknown action %q", domain.ErrInput, p.ID, p.Action)
	}

	ast, issues := e.env.Compile(p.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: failed to compile policy %s: %v", domain.ErrInput, p.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: policy %s: expression must return bool, got %s", domain.ErrInput, p.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create program for policy %s: %v", domain.ErrInput, p.ID, err)
	}

	return &CompiledPolicy{Policy: p, Program: program}, nil
}
