package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/repository"
	"github.com/nkiryanov/numbermart/internal/repository/postgres"
	"github.com/nkiryanov/numbermart/internal/service/auth"
	"github.com/nkiryanov/numbermart/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/numbermart/internal/service/balance"
	"github.com/nkiryanov/numbermart/internal/service/customer"
	"github.com/nkiryanov/numbermart/internal/service/order"
	"github.com/nkiryanov/numbermart/internal/service/payment"
	"github.com/nkiryanov/numbermart/internal/service/provider"
	"github.com/nkiryanov/numbermart/internal/service/ratelimit"
	"github.com/nkiryanov/numbermart/internal/service/reconcile"
	"github.com/nkiryanov/numbermart/internal/service/sweeper"
	"github.com/nkiryanov/numbermart/internal/testutil"
)

const testWebhookSecret = "hook-secret"

// Fake SMS gateway serving every provider under /<provider id>
type upstream struct {
	down atomic.Bool
	seq  atomic.Int64
}

func (u *upstream) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /{provider}/numbers", func(w http.ResponseWriter, r *http.Request) {
		if u.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		n := u.seq.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"id": "ext-%d", "phone": "+551199999%04d"}`, n, n)
	})
	mux.HandleFunc("GET /{provider}/numbers/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status": "waiting"}`)
	})
	mux.HandleFunc("POST /{provider}/numbers/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

type testServer struct {
	URL      string
	Storage  repository.Storage
	Auth     *auth.AuthService
	Mutator  *balance.Mutator
	Upstream *upstream
}

// Create db transaction and run the whole router on it (one connection cause one transaction).
// Requests must be sent one by one.
func serveWithTx(dbpool *pgxpool.Pool, t *testing.T, fn func(s testServer)) {
	testutil.InTx(dbpool, t, func(tx pgx.Tx) {
		l := logger.NewNoOpLogger()
		st := postgres.NewStorage(tx)

		_, err := st.Policy().UpsertPolicy(t.Context(), models.ProviderPolicy{
			ProviderID:            "smshub",
			Name:                  "SMSHub",
			CancelLimit:           2,
			CancelWindowMinutes:   10,
			BlockDurationMinutes:  30,
			MaxSimultaneousOrders: 2,
		})
		require.NoError(t, err)

		up := &upstream{}
		gateway := httptest.NewServer(up.handler())
		defer gateway.Close()

		tokens, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"}, st.Refresh())
		require.NoError(t, err, "token manager should be created without errors")

		as, err := auth.NewService(auth.Config{Hasher: auth.BcryptHasher{Cost: bcrypt.MinCost}}, tokens, st.Customer())
		require.NoError(t, err, "auth service starting error")

		mutator := balance.NewMutator(st, l)
		limiter := ratelimit.NewLimiter(st, l)
		orders := order.NewService(st, mutator, limiter, provider.NewRegistry(gateway.URL, st.Policy(), l), l)

		router := NewRouter(Services{
			Auth:          as,
			Customers:     customer.NewService(st, l),
			Balance:       mutator,
			Orders:        orders,
			Limits:        limiter,
			Reconcile:     reconcile.NewService(st, mutator, l),
			Sweeper:       sweeper.New(orders, time.Minute, 1, l),
			Payments:      payment.NewService(st, mutator, l),
			WebhookSecret: testWebhookSecret,
		}, l)

		srv := httptest.NewServer(router)
		defer srv.Close()

		fn(testServer{
			URL:      srv.URL,
			Storage:  st,
			Auth:     as,
			Mutator:  mutator,
			Upstream: up,
		})
	})
}

// Register customer and return it with the value of the Authorization header
func (s testServer) register(t *testing.T, username string, caps ...models.Capability) (models.Customer, string) {
	t.Helper()

	pair, err := s.Auth.Register(t.Context(), username, "StrongEnoughPassword")
	require.NoError(t, err)

	c, err := s.Storage.Customer().GetCustomerByUsername(t.Context(), username)
	require.NoError(t, err)

	if len(caps) > 0 {
		err = s.Storage.Customer().SetCapabilities(t.Context(), c.ID, models.NewCapabilitySet(caps...))
		require.NoError(t, err)
	}

	return c, "Bearer " + pair.Access.Value
}

func (s testServer) credit(t *testing.T, c models.Customer, amount int64) {
	t.Helper()

	_, err := s.Mutator.AdjustBalance(t.Context(), balance.Adjustment{
		CustomerID: c.ID,
		Amount:     amount,
		Kind:       models.LedgerKindCredit,
	})
	require.NoError(t, err)
}

func (s testServer) balance(t *testing.T, c models.Customer) int64 {
	t.Helper()

	got, err := s.Storage.Customer().GetCustomer(t.Context(), c.ID)
	require.NoError(t, err)
	return got.Balance
}

type response struct {
	Code   int
	Header http.Header
	Body   string
}

func (r response) decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(r.Body), v), "body is not expected json: %s", r.Body)
}

// Send request with optional json body and auth header
func (s testServer) do(t *testing.T, method string, path string, authHeader string, body string, headers ...string) response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(t.Context(), method, s.URL+path, reader)
	require.NoError(t, err, "failed to create request")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "failed to send request")
	defer resp.Body.Close() // nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	return response{Code: resp.StatusCode, Header: resp.Header, Body: string(data)}
}
