package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"openpaws/pkg/errutil"

	"github.com/stretchr/testify/require"
)

func TestRemoteProfilesUpdateMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/auth/v1/user", r.URL.Path)
		require.Equal(t, "anon", r.Header.Get("apikey"))
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var body struct {
			Data map[string]any `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(remoteUser{ID: "user-1", Email: "a@example.com", Metadata: body.Data})
	}))
	defer srv.Close()

	p := NewRemoteProfiles(srv.URL, "anon", time.Second)

	id, err := p.UpdateMetadata(context.Background(), "good", map[string]any{"full_name": "Ada"})
	require.NoError(t, err)
	require.Equal(t, "user-1", id.ID)
	require.Equal(t, "Ada", profileOf(id).FullName)

	_, err = p.UpdateMetadata(context.Background(), "bad", map[string]any{"full_name": "Ada"})
	require.True(t, errutil.IsCode(err, errutil.StatusUnauthorized))
}

func TestUnconfiguredProfilesAreUnavailable(t *testing.T) {
	_, err := NewHandler(nil).profiles.UpdateMetadata(context.Background(), "t", map[string]any{"full_name": "x"})
	require.True(t, errutil.IsCode(err, errutil.StatusServiceUnavailable))
}
