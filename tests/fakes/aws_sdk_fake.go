package fakes

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// FakeSSMClient is an in-memory implementation of the SSM API subset used by
// the aws.ssm store.
type FakeSSMClient struct {
	mu     sync.Mutex
	params map[string]ssmtypes.Parameter
	// Err, when set, fails every call.
	Err error
}

func NewFakeSSMClient() *FakeSSMClient {
	return &FakeSSMClient{params: make(map[string]ssmtypes.Parameter)}
}

// Seed stores a parameter directly, bypassing the API surface.
func (f *FakeSSMClient) Seed(name, value string, secure bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	paramType := ssmtypes.ParameterTypeString
	if secure {
		paramType = ssmtypes.ParameterTypeSecureString
	}
	now := time.Now()
	f.params[name] = ssmtypes.Parameter{
		Name:             aws.String(name),
		Value:            aws.String(value),
		Type:             paramType,
		LastModifiedDate: &now,
	}
}

func (f *FakeSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	p, ok := f.params[aws.ToString(params.Name)]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{}
	}
	return &ssm.GetParameterOutput{Parameter: &p}, nil
}

func (f *FakeSSMClient) GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	prefix := strings.TrimSuffix(aws.ToString(params.Path), "/") + "/"
	var out []ssmtypes.Parameter
	for name, p := range f.params {
		if strings.HasPrefix(name, prefix) {
			out = append(out, p)
		}
	}
	return &ssm.GetParametersByPathOutput{Parameters: out}, nil
}

func (f *FakeSSMClient) PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	now := time.Now()
	f.params[aws.ToString(params.Name)] = ssmtypes.Parameter{
		Name:             params.Name,
		Value:            params.Value,
		Type:             params.Type,
		LastModifiedDate: &now,
	}
	return &ssm.PutParameterOutput{}, nil
}

func (f *FakeSSMClient) DeleteParameter(ctx context.Context, params *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	name := aws.ToString(params.Name)
	if _, ok := f.params[name]; !ok {
		return nil, &ssmtypes.ParameterNotFound{}
	}
	delete(f.params, name)
	return &ssm.DeleteParameterOutput{}, nil
}

// FakeSecretsManagerClient is an in-memory implementation of the Secrets
// Manager API subset used by the aws.secretsmanager store.
type FakeSecretsManagerClient struct {
	mu      sync.Mutex
	secrets map[string]string
	Err     error
}

func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{secrets: make(map[string]string)}
}

// Seed stores a secret document directly.
func (f *FakeSecretsManagerClient) Seed(name, secretString string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secrets[name] = secretString
}

// Raw returns the stored document for assertions.
func (f *FakeSecretsManagerClient) Raw(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.secrets[name]
	return s, ok
}

func (f *FakeSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	s, ok := f.secrets[aws.ToString(params.SecretId)]
	if !ok {
		return nil, &smtypes.ResourceNotFoundException{}
	}
	now := time.Now()
	return &secretsmanager.GetSecretValueOutput{
		Name:         params.SecretId,
		SecretString: aws.String(s),
		CreatedDate:  &now,
	}, nil
}

func (f *FakeSecretsManagerClient) CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.secrets[aws.ToString(params.Name)] = aws.ToString(params.SecretString)
	return &secretsmanager.CreateSecretOutput{Name: params.Name}, nil
}

func (f *FakeSecretsManagerClient) UpdateSecret(ctx context.Context, params *secretsmanager.UpdateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	name := aws.ToString(params.SecretId)
	if _, ok := f.secrets[name]; !ok {
		return nil, &smtypes.ResourceNotFoundException{}
	}
	f.secrets[name] = aws.ToString(params.SecretString)
	return &secretsmanager.UpdateSecretOutput{}, nil
}

func (f *FakeSecretsManagerClient) ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var list []smtypes.SecretListEntry
	for name := range f.secrets {
		matches := true
		for _, filter := range params.Filters {
			if filter.Key == smtypes.FilterNameStringTypeName {
				matches = false
				for _, v := range filter.Values {
					if strings.HasPrefix(name, v) {
						matches = true
					}
				}
			}
		}
		if matches {
			list = append(list, smtypes.SecretListEntry{Name: aws.String(name)})
		}
	}
	return &secretsmanager.ListSecretsOutput{SecretList: list}, nil
}
