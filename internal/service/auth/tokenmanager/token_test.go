package tokenmanager

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/repository/postgres"
	"github.com/nkiryanov/numbermart/internal/testutil"
)

func Test_TokenManager(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Refresh tokens reference customers, so every test gets a real one
	withTx := func(dbpool *pgxpool.Pool, t *testing.T, fn func(m *TokenManager, customer models.Customer)) {
		testutil.InTx(dbpool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)

			customer, err := storage.Customer().CreateCustomer(t.Context(), "token-owner", "hashed")
			require.NoError(t, err)

			m, err := New(Config{SecretKey: "test-secret-key"}, storage.Refresh())
			require.NoError(t, err, "token manager should be created without errors")

			fn(m, customer)
		})
	}

	// Move the manager clock forward
	shift := func(m *TokenManager, d time.Duration) {
		m.now = func() time.Time { return time.Now().Add(d) }
	}

	t.Run("new defaults", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"}, nil)
		require.NoError(t, err, "token manager should be created without errors")

		require.Equal(t, "secret", m.key, "secret key should be set")
		require.Equal(t, defaultAccessTokenTTL, m.accessTTL, "default access token TTL should be set")
		require.Equal(t, defaultRefreshTokenTTL, m.refreshTTL, "default refresh token TTL")
		require.Equal(t, defaultSigningMethod, m.alg.Alg(), "default signing method should be set")
	})

	t.Run("new fails", func(t *testing.T) {
		_, err := New(Config{}, nil)
		require.Error(t, err, "empty secret key is not allowed")

		_, err = New(Config{SecretKey: "secret", Alg: "RS256"}, nil)
		require.Error(t, err, "only HMAC signing methods are allowed")

		_, err = New(Config{SecretKey: "secret", Alg: "unknown"}, nil)
		require.Error(t, err)
	})

	t.Run("GeneratePair", func(t *testing.T) {
		t.Run("return token pair", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *TokenManager, customer models.Customer) {
				pair, err := m.GeneratePair(t.Context(), customer)
				require.NoError(t, err)

				assert.NotEmpty(t, pair.Access.Value, "access token should not be empty")
				assert.WithinDuration(t, time.Now().Add(15*time.Minute), pair.Access.ExpiresAt, time.Second)
				assert.Len(t, pair.Refresh.Value, 2*refreshTokenBytes, "refresh token is hex encoded")
				assert.WithinDuration(t, time.Now().Add(24*time.Hour), pair.Refresh.ExpiresAt, time.Second)
			})
		})

		t.Run("access claims", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *TokenManager, customer models.Customer) {
				pair, err := m.GeneratePair(t.Context(), customer)
				require.NoError(t, err)

				token, err := jwt.ParseWithClaims(pair.Access.Value, &AccessTokenClaims{}, func(token *jwt.Token) (any, error) {
					return []byte("test-secret-key"), nil
				})
				require.NoError(t, err)
				require.True(t, token.Valid, "access token should be valid")

				claims, ok := token.Claims.(*AccessTokenClaims)
				require.True(t, ok, "claims should be of type AccessTokenClaims")
				assert.Equal(t, customer.ID, claims.CustomerID, "customer id in token should match")
				assert.Equal(t, "token-owner", claims.Subject)
				assert.NotEmpty(t, claims.ID, "token has to has jti")
				assert.WithinDuration(t, pair.Access.ExpiresAt, claims.ExpiresAt.Time, 0, "access expires at should match token pair")
			})
		})

		t.Run("generate different tokens", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *TokenManager, customer models.Customer) {
				pair1, err := m.GeneratePair(t.Context(), customer)
				require.NoError(t, err)

				pair2, err := m.GeneratePair(t.Context(), customer)
				require.NoError(t, err)

				assert.NotEqual(t, pair1.Refresh.Value, pair2.Refresh.Value, "refresh tokens should be different")
				assert.NotEqual(t, pair1.Access.Value, pair2.Access.Value, "access tokens should be different")
			})
		})
	})

	t.Run("UseRefresh", func(t *testing.T) {
		t.Run("use token once", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *TokenManager, customer models.Customer) {
				pair, err := m.GeneratePair(t.Context(), customer)
				require.NoError(t, err)

				token, err := m.UseRefresh(t.Context(), pair.Refresh.Value)
				require.NoError(t, err, "using refresh token should not return an error")

				require.Equal(t, customer.ID, token.CustomerID)
				require.WithinDuration(t, pair.Refresh.ExpiresAt, token.ExpiresAt, time.Second)
			})
		})

		t.Run("use token twice", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *TokenManager, customer models.Customer) {
				pair, err := m.GeneratePair(t.Context(), customer)
				require.NoError(t, err)

				_, err = m.UseRefresh(t.Context(), pair.Refresh.Value)
				require.NoError(t, err, "using refresh token should not return an error")

				_, err = m.UseRefresh(t.Context(), pair.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenIsUsed)
			})
		})

		t.Run("use expired token", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *TokenManager, customer models.Customer) {
				pair, err := m.GeneratePair(t.Context(), customer)
				require.NoError(t, err)

				shift(m, 25*time.Hour)

				_, err = m.UseRefresh(t.Context(), pair.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenExpired)
			})
		})

		t.Run("unknown token", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *TokenManager, _ models.Customer) {
				_, err := m.UseRefresh(t.Context(), "not-issued")
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
			})
		})
	})

	t.Run("ParseAccess", func(t *testing.T) {
		t.Run("valid token", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *TokenManager, customer models.Customer) {
				pair, err := m.GeneratePair(t.Context(), customer)
				require.NoError(t, err, "token pair should be generated without errors")

				customerID, err := m.ParseAccess(t.Context(), pair.Access.Value)
				require.NoError(t, err, "valid token should be parsed without errors")
				require.Equal(t, customer.ID, customerID)
			})
		})

		t.Run("not a token", func(t *testing.T) {
			m, err := New(Config{SecretKey: "test-secret-key"}, nil)
			require.NoError(t, err)

			_, err = m.ParseAccess(t.Context(), "invalid token")
			require.Error(t, err, "parsing even not a token should return an error")
		})

		t.Run("expired token", func(t *testing.T) {
			withTx(pg.Pool, t, func(m *TokenManager, customer models.Customer) {
				pair, err := m.GeneratePair(t.Context(), customer)
				require.NoError(t, err)

				shift(m, 16*time.Minute)

				_, err = m.ParseAccess(t.Context(), pair.Access.Value)
				require.Error(t, err, "token has to become expired")
			})
		})

		t.Run("signed with other key", func(t *testing.T) {
			other, err := New(Config{SecretKey: "other-key"}, nil)
			require.NoError(t, err)

			access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
				CustomerID:       uuid.New(),
			}).SignedString([]byte("test-secret-key"))
			require.NoError(t, err)

			_, err = other.ParseAccess(t.Context(), access)
			require.Error(t, err)
		})

		t.Run("not signed token", func(t *testing.T) {
			m, err := New(Config{SecretKey: "test-secret-key"}, nil)
			require.NoError(t, err)

			token := jwt.NewWithClaims(
				jwt.SigningMethodNone,
				AccessTokenClaims{
					RegisteredClaims: jwt.RegisteredClaims{
						ID:        uuid.NewString(),
						IssuedAt:  jwt.NewNumericDate(time.Now()),
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
					},
					CustomerID: uuid.New(),
				},
			)
			access, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)

			_, err = m.ParseAccess(t.Context(), access)
			require.Error(t, err, "Valid token with empty alg must fail")
		})

		t.Run("token without customer", func(t *testing.T) {
			m, err := New(Config{SecretKey: "test-secret-key"}, nil)
			require.NoError(t, err)

			access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
			}).SignedString([]byte("test-secret-key"))
			require.NoError(t, err)

			_, err = m.ParseAccess(t.Context(), access)
			require.Error(t, err)
		})
	})
}
