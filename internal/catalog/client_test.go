package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/crosswalk/internal/config"
	"github.com/agenthands/crosswalk/internal/logger"
)

type fakeCatalog struct {
	logins    atomic.Int32
	failures  atomic.Int32 // remaining 503s on /products/
	reject    atomic.Int32 // remaining 401s on authenticated calls
	loginBody map[string]interface{}
}

func (f *fakeCatalog) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.logins.Add(1)
		resp := f.loginBody
		if resp == nil {
			resp = map[string]interface{}{"token": "tok", "expires_in": 3600}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if f.reject.Load() > 0 {
				f.reject.Add(-1)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("/products/request-access/", auth(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"product_id": "p1", "status": "Approved"},
			{"product_id": "p2", "status": "pending"},
			{"product_id": "p3", "status": "approved"}
		]`))
	}))
	mux.HandleFunc("/products/", auth(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/products/":
			if f.failures.Load() > 0 {
				f.failures.Add(-1)
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`[
				{"id": "p1", "name": "Vault", "is_free": false},
				{"id": "p2", "name": "Gate", "is_free": false},
				{"id": "p3", "name": "Free Tier", "is_free": true},
				{"id": "p4", "name": "Unknown"}
			]`))
		case "/products/p1/":
			_, _ = w.Write([]byte(`{"id": "p1", "questionnaire": [
				{"question": "Encryption", "children": [{"id": "q1", "question": "Is data encrypted?", "type": "yes_no"}]}
			]}`))
		case "/products/p2/":
			_, _ = w.Write([]byte(`{"id": "p2", "questionnaire": null}`))
		default:
			http.NotFound(w, r)
		}
	}))
	return mux
}

func newTestClient(t *testing.T, f *fakeCatalog, password string) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	c, err := New(config.CatalogConfig{
		BaseURL:  srv.URL + "/",
		Email:    "ops@example.com",
		Password: password,
		Timeout:  5 * time.Second,
	}, logger.Nop())
	require.NoError(t, err)
	return c
}

func TestProducts_Flags(t *testing.T) {
	f := &fakeCatalog{}
	c := newTestClient(t, f, "secret")

	products, err := c.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 4)

	byID := map[string][2]bool{}
	for _, p := range products {
		byID[p.ID] = [2]bool{p.Premium, p.Approved}
	}
	assert.Equal(t, [2]bool{true, true}, byID["p1"])
	assert.Equal(t, [2]bool{true, false}, byID["p2"])
	assert.Equal(t, [2]bool{false, true}, byID["p3"])
	assert.Equal(t, [2]bool{false, false}, byID["p4"], "missing is_free is not premium")

	assert.Equal(t, int32(1), f.logins.Load(), "token is reused")
}

func TestQuestionnaire(t *testing.T) {
	c := newTestClient(t, &fakeCatalog{}, "secret")
	ctx := context.Background()

	raw, err := c.Questionnaire(ctx, "p1")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Is data encrypted?")

	_, err = c.Questionnaire(ctx, "p2")
	assert.ErrorIs(t, err, ErrNoQuestionnaire)

	_, err = c.Questionnaire(ctx, "missing")
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestRetriesServerErrors(t *testing.T) {
	f := &fakeCatalog{}
	f.failures.Store(2)
	c := newTestClient(t, f, "secret")

	products, err := c.Products(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 4)
}

func TestReloginOnUnauthorized(t *testing.T) {
	f := &fakeCatalog{}
	c := newTestClient(t, f, "secret")
	require.NoError(t, c.Login(context.Background()))

	f.reject.Store(1)
	_, err := c.Questionnaire(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.logins.Load())
}

func TestLoginFailure(t *testing.T) {
	c := newTestClient(t, &fakeCatalog{}, "wrong")
	err := c.Login(context.Background())
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
}

func TestLoginWithoutToken(t *testing.T) {
	f := &fakeCatalog{loginBody: map[string]interface{}{"user": "ops"}}
	c := newTestClient(t, f, "secret")
	assert.ErrorIs(t, c.Login(context.Background()), ErrNoToken)
}

func TestExpiryFor(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := &Client{now: func() time.Time { return now }}

	in := int64(600)
	assert.Equal(t, now.Add(9*time.Minute), c.expiryFor("opaque", &in))

	exp := now.Add(2 * time.Hour)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	require.NoError(t, err)
	assert.WithinDuration(t, exp.Add(-time.Minute), c.expiryFor(signed, nil), 0)

	assert.Equal(t, now.Add(59*time.Minute), c.expiryFor("opaque", nil))
}

func TestAccessTokenField(t *testing.T) {
	f := &fakeCatalog{loginBody: map[string]interface{}{"access_token": "tok2"}}
	c := newTestClient(t, f, "secret")
	require.NoError(t, c.Login(context.Background()))
	token, err := c.bearer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok2", token)
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(config.CatalogConfig{}, logger.Nop())
	assert.Error(t, err)
}
