package mock

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
)

// IAMClient is a mock permission simulator. Allowed maps a principal ARN to
// the set of actions it may perform; everything else is an implicit deny.
type IAMClient struct {
	Allowed map[string]map[string]bool
}

// NewIAMClient creates a mock with no permissions.
func NewIAMClient() *IAMClient {
	return &IAMClient{Allowed: make(map[string]map[string]bool)}
}

// Allow grants actions to principal.
func (m *IAMClient) Allow(principal string, actions ...string) {
	if m.Allowed[principal] == nil {
		m.Allowed[principal] = make(map[string]bool)
	}
	for _, a := range actions {
		m.Allowed[principal][a] = true
	}
}

// SimulatePrincipalPolicy evaluates every requested action against Allowed.
func (m *IAMClient) SimulatePrincipalPolicy(ctx context.Context, params *iam.SimulatePrincipalPolicyInput, optFns ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error) {
	principal := aws.ToString(params.PolicySourceArn)
	out := &iam.SimulatePrincipalPolicyOutput{}
	for _, action := range params.ActionNames {
		decision := types.PolicyEvaluationDecisionTypeImplicitDeny
		if m.Allowed[principal][action] {
			decision = types.PolicyEvaluationDecisionTypeAllowed
		}
		out.EvaluationResults = append(out.EvaluationResults, types.EvaluationResult{
			EvalActionName: aws.String(action),
			EvalDecision:   decision,
		})
	}
	return out, nil
}
