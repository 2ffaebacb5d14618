package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/open-policy-agent/opa/v1/rego"
)

const defaultPolicyPackage = "admin.session"

// DefaultStatusPolicy admits active, unbanned staff accounts, requiring a
// verified email when the caller asks for it.
const DefaultStatusPolicy = `package admin.session

default allow := false

staff_roles := {"super_admin", "admin", "editor"}

allow if {
	input.status == "active"
	not input.banned
	staff_roles[input.role]
	email_ok
}

email_ok if not input.require_email_verified

email_ok if input.email_verified
`

var errNoDecision = errors.New("policy returned no decision")

// OPAEvaluator evaluates the session-status policy with OPA Rego. The query is
// prepared once; evaluation is safe for concurrent use.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (DefaultStatusPolicy when empty). The policy
// must define data.admin.session.allow.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultStatusPolicy
	}
	q, err := rego.New(
		rego.Query("data."+defaultPolicyPackage+".allow"),
		rego.Module("admin_session.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: compile: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// AllowSession implements Evaluator. Any evaluation failure denies.
func (e *OPAEvaluator) AllowSession(ctx context.Context, in StatusInput) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"status":                 string(in.Status),
		"banned":                 in.Banned,
		"role":                   string(in.Role),
		"email_verified":         in.EmailVerified,
		"require_email_verified": in.RequireEmailVerified,
	}))
	if err != nil {
		log.Printf("policy: evaluation failed: %v", err)
		return false, fmt.Errorf("policy: eval: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, errNoDecision
	}
	allow, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy: allow is %T, want bool", rs[0].Expressions[0].Value)
	}
	return allow, nil
}

// HealthCheck evaluates the prepared policy against a known-good account.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	ok, err := e.AllowSession(ctx, StatusInput{Status: "active", Role: "admin", EmailVerified: true})
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("policy: health check denied")
	}
	return nil
}
