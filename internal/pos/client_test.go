package pos

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

func TestFetchInventory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v3/merchants/M1/items":
			assert.Equal(t, "categories,modifierGroups", r.URL.Query().Get("expand"))
			_, _ = w.Write([]byte(inventoryJSON))
		case "/v3/merchants/M1/modifier_groups":
			_, _ = w.Write([]byte(groupsJSON))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", srv.Client())
	items, err := c.FetchInventory(context.Background(), &Credential{MerchantID: "M1", AccessToken: "tok"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Latte", items[0].Name)
	assert.Len(t, items[0].ModifierGroups, 1)
}

func TestFetchInventoryUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).FetchInventory(context.Background(), &Credential{MerchantID: "M1", AccessToken: "tok"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrExternalService))
	assert.Contains(t, err.Error(), "401")
}
