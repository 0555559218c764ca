package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trubo/mail-gateway/internal/core"
	"github.com/trubo/mail-gateway/internal/provider"
)

func mail() core.MailJob {
	return core.MailJob{To: core.Recipients{"a@b.com"}, Subject: "s", Text: "t"}
}

func TestAPI_SendSuccess(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "prov-42"})
	}))
	defer ts.Close()

	api := &provider.API{Base: ts.URL, Key: "re_shared", From: "no-reply@example.com"}
	res, err := api.Send(context.Background(), mail())
	require.NoError(t, err)
	require.Equal(t, "prov-42", res.ID)
	require.Equal(t, "/emails", gotPath)
	require.Equal(t, "Bearer re_shared", gotAuth)
	require.Equal(t, "no-reply@example.com", gotBody["from"])
}

func TestAPI_SendWithCallerKey(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "x"})
	}))
	defer ts.Close()

	api := &provider.API{Base: ts.URL, Key: "re_shared"}
	_, err := api.SendWithKey(context.Background(), mail(), "re_caller")
	require.NoError(t, err)
	require.Equal(t, "Bearer re_caller", gotAuth)
}

func TestAPI_ErrorObjectInOKBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "domain not verified"}})
	}))
	defer ts.Close()

	api := &provider.API{Base: ts.URL, Key: "k"}
	_, err := api.Send(context.Background(), mail())
	var perr *core.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "domain not verified", perr.Message)
	require.NotNil(t, perr.Diagnostic)
}

func TestAPI_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"statusCode":429}`))
	}))
	defer ts.Close()

	api := &provider.API{Base: ts.URL, Key: "k"}
	_, err := api.Send(context.Background(), mail())
	var perr *core.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Contains(t, perr.Message, "429")
}

func TestAPI_MissingKey(t *testing.T) {
	api := &provider.API{Base: "http://unused"}
	_, err := api.Send(context.Background(), mail())
	var perr *core.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "missing provider key", perr.Message)
}

func TestSelector_RoutesByVariant(t *testing.T) {
	var keys []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "x"})
	}))
	defer ts.Close()

	sel := &provider.Selector{API: &provider.API{Base: ts.URL, Key: "re_shared"}}

	shared := mail()
	shared.Delivery = core.DeliverShared
	_, err := sel.Send(context.Background(), shared)
	require.NoError(t, err)

	keyed := mail()
	keyed.Delivery = core.DeliverCallerKey
	keyed.ProviderKey = "re_caller"
	_, err = sel.Send(context.Background(), keyed)
	require.NoError(t, err)

	require.Equal(t, []string{"Bearer re_shared", "Bearer re_caller"}, keys)
}
