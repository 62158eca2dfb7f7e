// Package paramstore reads the Gemini API key from AWS SSM Parameter Store.
package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

var (
	ErrNotFound = errors.New("paramstore: parameter has no value")
	ErrNoKey    = errors.New("paramstore: parameter holds no api key")
)

// *ssm.Client satisfies ssmAPI.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type Store struct {
	api ssmAPI
}

func New(api ssmAPI) (*Store, error) {
	if api == nil {
		return nil, errors.New("paramstore: nil ssm client")
	}
	return &Store{api: api}, nil
}

// APIKey reads the SecureString parameter name and returns the key it holds.
// The value is either the bare key or a JSON object with "api_key" or "key".
func (s *Store) APIKey(ctx context.Context, name string) (string, error) {
	if s == nil || s.api == nil {
		return "", errors.New("paramstore: store not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: api key parameter name is empty")
	}

	out, err := s.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: boolPtr(true),
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: read %s: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	key := parseKey(*out.Parameter.Value)
	if key == "" {
		return "", fmt.Errorf("%w: %s", ErrNoKey, name)
	}
	return key, nil
}

func parseKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") {
		return raw
	}
	var obj struct {
		APIKey string `json:"api_key"`
		Key    string `json:"key"`
	}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return ""
	}
	if obj.APIKey != "" {
		return strings.TrimSpace(obj.APIKey)
	}
	return strings.TrimSpace(obj.Key)
}

func boolPtr(b bool) *bool { return &b }
