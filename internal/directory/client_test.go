package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveByBotIdentity(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"tenant_id":        "tenant-7",
			"bot_app_password": "s3cret",
		})
	}))
	t.Cleanup(srv.Close)

	client := NewClient(nil, srv.URL, "anon-key", "internal-token")
	cred, err := client.ResolveByBotIdentity(context.Background(), "app-1")
	require.NoError(t, err)

	require.Equal(t, "tenant-7", cred.TenantID)
	require.Equal(t, "s3cret", cred.BotAppPassword)
	// The app id is backfilled when the directory omits it.
	require.Equal(t, "app-1", cred.BotAppID)

	require.Equal(t, "app-1", gotBody["bot_app_id"])
	require.Equal(t, "anon-key", gotHeaders.Get("apikey"))
	require.Equal(t, "internal-token", gotHeaders.Get("x-internal-token"))
	require.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
}

func TestResolveByBotIdentityNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(nil, srv.URL, "k", "t")
	_, err := client.ResolveByBotIdentity(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveByBotIdentityServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(nil, srv.URL, "k", "t")
	_, err := client.ResolveByBotIdentity(context.Background(), "app-1")
	require.Error(t, err)
	// Outages are not reported as a missing mapping.
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestResolveByBotIdentityEmptyTenant(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"tenant_id": ""})
	}))
	t.Cleanup(srv.Close)

	client := NewClient(nil, srv.URL, "k", "t")
	_, err := client.ResolveByBotIdentity(context.Background(), "app-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveByExternalOrg(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]string{"tenant_id": "tenant-7"})
	}))
	t.Cleanup(srv.Close)

	client := NewClient(nil, srv.URL, "k", "t")
	tenantID, err := client.ResolveByExternalOrg(context.Background(), "org-42", true)
	require.NoError(t, err)
	require.Equal(t, "tenant-7", tenantID)
	require.Equal(t, "org-42", gotBody["teams_tenant_id"])
	require.Equal(t, true, gotBody["auto_provision"])
}

func TestResolveByExternalOrgFailuresCollapseToNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(nil, srv.URL, "k", "t")

	_, err := client.ResolveByExternalOrg(context.Background(), "org-42", false)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = client.ResolveByExternalOrg(context.Background(), "", true)
	require.ErrorIs(t, err, ErrNotFound)

	// Unreachable endpoint.
	down := NewClient(nil, "http://127.0.0.1:1", "k", "t")
	_, err = down.ResolveByExternalOrg(context.Background(), "org-42", true)
	require.ErrorIs(t, err, ErrNotFound)
}
