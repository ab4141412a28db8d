package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/models"
)

func TestClient(t *testing.T) {
	t.Parallel()

	serve := func(t *testing.T, handler http.HandlerFunc) *Client {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		return NewClient(srv.URL, logger.NewNoOpLogger())
	}

	t.Run("RequestNumber", func(t *testing.T) {
		t.Run("ok", func(t *testing.T) {
			c := serve(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/numbers", r.URL.Path)

				var body map[string]string
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "wa", body["service"])

				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"ext-1","phone":"+5511999990000"}`))
			})

			n, err := c.RequestNumber(t.Context(), "wa")

			require.NoError(t, err)
			assert.Equal(t, Number{ExternalID: "ext-1", Phone: "+5511999990000"}, n)
		})

		t.Run("incomplete response", func(t *testing.T) {
			c := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"ext-1"}`))
			})

			_, err := c.RequestNumber(t.Context(), "wa")

			require.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
		})

		t.Run("server error", func(t *testing.T) {
			c := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			})

			_, err := c.RequestNumber(t.Context(), "wa")

			require.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
			var perr *Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, CodeUnavailable, perr.Code)
		})
	})

	t.Run("GetStatus", func(t *testing.T) {
		t.Run("received with code", func(t *testing.T) {
			c := serve(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/numbers/ext-1", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"status":"received","code":"123456"}`))
			})

			s, err := c.GetStatus(t.Context(), "ext-1")

			require.NoError(t, err)
			assert.Equal(t, StatusReceived, s.Status)
			require.NotNil(t, s.Code)
			assert.Equal(t, "123456", *s.Code)
		})

		t.Run("received without code", func(t *testing.T) {
			c := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"status":"received"}`))
			})

			_, err := c.GetStatus(t.Context(), "ext-1")

			require.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
		})

		t.Run("unknown status", func(t *testing.T) {
			c := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"status":"lost"}`))
			})

			_, err := c.GetStatus(t.Context(), "ext-1")

			require.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
		})

		t.Run("not found", func(t *testing.T) {
			c := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			})

			_, err := c.GetStatus(t.Context(), "ext-1")

			var perr *Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, CodeNotFound, perr.Code)
		})
	})

	t.Run("throttled", func(t *testing.T) {
		tests := []struct {
			name     string
			header   string
			expected time.Duration
		}{
			{"with header", "5", 5 * time.Second},
			{"without header", "", 60 * time.Second},
			{"bad header", "soon", 60 * time.Second},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				c := serve(t, func(w http.ResponseWriter, r *http.Request) {
					if tt.header != "" {
						w.Header().Set("Retry-After", tt.header)
					}
					w.WriteHeader(http.StatusTooManyRequests)
				})

				err := c.Cancel(t.Context(), "ext-1")

				require.ErrorIs(t, err, ErrThrottled)
				require.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
				var perr *Error
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, tt.expected, perr.RetryAfter)
			})
		}
	})

	t.Run("Cancel ok", func(t *testing.T) {
		c := serve(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/numbers/ext-1/cancel", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		})

		err := c.Cancel(t.Context(), "ext-1")

		require.NoError(t, err)
	})

	t.Run("transport error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		c := NewClient(srv.URL, logger.NewNoOpLogger())

		_, err := c.RequestNumber(t.Context(), "wa")

		require.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	})
}

type fakePolicies map[string]models.ProviderPolicy

func (f fakePolicies) GetPolicy(_ context.Context, id string) (models.ProviderPolicy, error) {
	p, ok := f[id]
	if !ok {
		return p, apperrors.ErrProviderNotFound
	}
	return p, nil
}

func (f fakePolicies) ListPolicies(context.Context) ([]models.ProviderPolicy, error) {
	return nil, nil
}

func (f fakePolicies) UpsertPolicy(_ context.Context, p models.ProviderPolicy) (models.ProviderPolicy, error) {
	return p, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	override := srv.URL + "/direct"
	policies := fakePolicies{
		"smshub":  {ProviderID: "smshub"},
		"fivesim": {ProviderID: "fivesim", BaseURL: &override},
	}

	t.Run("fallback address", func(t *testing.T) {
		r := NewRegistry(srv.URL+"/", policies, logger.NewNoOpLogger())

		err := r.Cancel(t.Context(), "smshub", "ext-1")

		require.NoError(t, err)
		assert.Equal(t, "/smshub/numbers/ext-1/cancel", <-paths)
	})

	t.Run("policy override", func(t *testing.T) {
		r := NewRegistry(srv.URL, policies, logger.NewNoOpLogger())

		err := r.Cancel(t.Context(), "fivesim", "ext-2")

		require.NoError(t, err)
		assert.Equal(t, "/direct/numbers/ext-2/cancel", <-paths)
	})

	t.Run("clients reused", func(t *testing.T) {
		r := NewRegistry(srv.URL, policies, logger.NewNoOpLogger())

		c1, err := r.Client(t.Context(), "smshub")
		require.NoError(t, err)
		c2, err := r.Client(t.Context(), "smshub")
		require.NoError(t, err)

		assert.Same(t, c1, c2)
	})

	t.Run("no address at all", func(t *testing.T) {
		r := NewRegistry("", policies, logger.NewNoOpLogger())

		_, err := r.Client(t.Context(), "unknown")

		require.ErrorIs(t, err, apperrors.ErrProviderNotFound)
	})
}
