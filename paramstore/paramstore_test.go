package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	out  *ssm.GetParameterOutput
	err  error
	seen *ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.seen = in
	return f.out, f.err
}

func strPtr(s string) *string { return &s }

func withValue(v string) *fakeSSM {
	return &fakeSSM{out: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("/bridge/gemini"), Value: strPtr(v), Type: types.ParameterTypeSecureString,
	}}}
}

func TestAPIKeyReadsDecryptedParameter(t *testing.T) {
	api := withValue("abc")
	s, err := New(api)
	require.NoError(t, err)

	key, err := s.APIKey(context.Background(), " /bridge/gemini ")
	require.NoError(t, err)
	require.Equal(t, "abc", key)
	require.Equal(t, "/bridge/gemini", *api.seen.Name)
	require.True(t, *api.seen.WithDecryption)
}

func TestAPIKeyShapes(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  string
	}{
		{"bare", "  AIzaKey\n", "AIzaKey"},
		{"api_key field", `{"api_key":"AIzaKey"}`, "AIzaKey"},
		{"key field", `{"key":"AIzaOther"}`, "AIzaOther"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := New(withValue(tc.value))
			require.NoError(t, err)
			got, err := s.APIKey(context.Background(), "/bridge/gemini")
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestAPIKeyErrors(t *testing.T) {
	ctx := context.Background()

	s, err := New(&fakeSSM{err: errors.New("boom")})
	require.NoError(t, err)
	_, err = s.APIKey(ctx, "p")
	require.ErrorContains(t, err, "boom")

	_, err = s.APIKey(ctx, "  ")
	require.ErrorContains(t, err, "name is empty")

	s, err = New(&fakeSSM{out: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p")}}})
	require.NoError(t, err)
	_, err = s.APIKey(ctx, "p")
	require.ErrorIs(t, err, ErrNotFound)

	for _, v := range []string{`{"token":""}`, `{broken`, "   "} {
		s, err = New(withValue(v))
		require.NoError(t, err)
		_, err = s.APIKey(ctx, "/bridge/gemini")
		require.ErrorIs(t, err, ErrNoKey, v)
	}

	_, err = (&Store{}).APIKey(ctx, "p")
	require.ErrorContains(t, err, "not initialized")

	_, err = New(nil)
	require.ErrorContains(t, err, "nil ssm client")
}
