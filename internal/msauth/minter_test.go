package msauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/answerdeskai/teamsbridge/internal/directory"
)

func TestMint(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
			"scope":         r.PostForm.Get("scope"),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "minted-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(srv.Close)

	m := NewMinter(nil, srv.URL, "")
	cred := directory.TenantCredential{BotAppID: "app-1", BotAppPassword: "s3cret"}

	token, err := m.Mint(context.Background(), cred, "org-42")
	require.NoError(t, err)
	require.Equal(t, "minted-token", token)

	require.Equal(t, "/org-42/oauth2/v2.0/token", gotPath)
	require.Equal(t, "client_credentials", gotForm["grant_type"])
	require.Equal(t, "app-1", gotForm["client_id"])
	require.Equal(t, "s3cret", gotForm["client_secret"])
	require.Equal(t, DefaultScope, gotForm["scope"])
}

func TestMintDefaultsAuthority(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok"})
	}))
	t.Cleanup(srv.Close)

	m := NewMinter(nil, srv.URL, "")
	_, err := m.Mint(context.Background(), directory.TenantCredential{BotAppID: "a", BotAppPassword: "p"}, "")
	require.NoError(t, err)
	require.Equal(t, "/"+DefaultAuthority+"/oauth2/v2.0/token", gotPath)
}

func TestMintRequiresCredential(t *testing.T) {
	t.Parallel()

	m := NewMinter(nil, "http://127.0.0.1:1", "")
	_, err := m.Mint(context.Background(), directory.TenantCredential{BotAppID: "a"}, "")
	require.Error(t, err)
	_, err = m.Mint(context.Background(), directory.TenantCredential{BotAppPassword: "p"}, "")
	require.Error(t, err)
}

func TestMintRejectedExchange(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client"})
	}))
	t.Cleanup(srv.Close)

	m := NewMinter(nil, srv.URL, "")
	_, err := m.Mint(context.Background(), directory.TenantCredential{BotAppID: "a", BotAppPassword: "wrong"}, "")
	require.Error(t, err)
}

func TestAuthorityFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		globalAppID string
		configured  string
		orgID       string
		want        string
	}{
		{name: "global app uses configured authority", globalAppID: "app", configured: "contoso.example", orgID: "org-42", want: "contoso.example"},
		{name: "global app defaults", globalAppID: "app", configured: "", orgID: "org-42", want: DefaultAuthority},
		{name: "per tenant uses org", globalAppID: "", configured: "", orgID: "org-42", want: "org-42"},
		{name: "no org falls back", globalAppID: "", configured: "", orgID: "", want: DefaultAuthority},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, AuthorityFor(tc.globalAppID, tc.configured, tc.orgID))
		})
	}
}
