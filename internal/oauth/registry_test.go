package oauth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubProvider struct{ name string }

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) AuthorizationURL(context.Context, string) (string, error) {
	return "https://example.test/auth", nil
}
func (s *stubProvider) Exchange(context.Context, string) (*TokenSet, error)  { return nil, nil }
func (s *stubProvider) Refresh(context.Context, string) (*TokenSet, error)   { return nil, nil }
func (s *stubProvider) UserInfo(context.Context, string) (*UserProfile, error) { return nil, nil }
func (s *stubProvider) DefaultScopes() []string                              { return []string{"email"} }

func TestRegistry_GetUnsupported(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	_, err := r.Get("myspace")
	require.True(t, errors.Is(err, ErrUnsupportedProvider))
	require.False(t, r.Has("myspace"))
}

func TestRegistry_RegisterGetList(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	built := 0
	r.Register("google", Config{ClientID: "cid"}, func(cfg Config) (Provider, error) {
		built++
		require.Equal(t, "cid", cfg.ClientID)
		return &stubProvider{name: "google"}, nil
	})
	r.Register("github", Config{}, func(Config) (Provider, error) {
		return &stubProvider{name: "github"}, nil
	})

	require.True(t, r.Has("google"))
	require.Equal(t, []string{"github", "google"}, r.List())

	p, err := r.Get("google")
	require.NoError(t, err)
	require.Equal(t, "google", p.Name())

	// Second lookup reuses the built instance.
	_, err = r.Get("google")
	require.NoError(t, err)
	require.Equal(t, 1, built)
}

func TestSplitName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		profile     UserProfile
		first, last string
	}{
		{UserProfile{GivenName: "Ada", FamilyName: "Lovelace"}, "Ada", "Lovelace"},
		{UserProfile{GivenName: "Ada"}, "Ada", ""},
		{UserProfile{Name: "Ada Lovelace"}, "Ada", "Lovelace"},
		{UserProfile{Name: "Ada King Lovelace"}, "Ada", "King Lovelace"},
		{UserProfile{Name: "Ada"}, "Ada", ""},
		{UserProfile{}, "User", ""},
	}
	for _, tc := range cases {
		first, last := SplitName(&tc.profile)
		require.Equal(t, tc.first, first)
		require.Equal(t, tc.last, last)
	}
}
