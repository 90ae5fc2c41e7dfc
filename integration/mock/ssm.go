package mock

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSMClient is a mock of SSM Parameter Store backed by a map.
type SSMClient struct {
	mu sync.Mutex

	Values map[string]string
	// Errors forces specific parameter names to fail with the given error.
	Errors map[string]error

	Requested []string
}

// NewSSMClient creates a mock holding values.
func NewSSMClient(values map[string]string) *SSMClient {
	if values == nil {
		values = make(map[string]string)
	}
	return &SSMClient{Values: values, Errors: make(map[string]error)}
}

// GetParameter returns the stored value or ParameterNotFound.
func (m *SSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := aws.ToString(params.Name)
	m.Requested = append(m.Requested, name)

	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	v, ok := m.Values[name]
	if !ok {
		return nil, &types.ParameterNotFound{Message: aws.String("parameter not found: " + name)}
	}
	return &ssm.GetParameterOutput{
		Parameter: &types.Parameter{Name: aws.String(name), Value: aws.String(v), Type: types.ParameterTypeString},
	}, nil
}
