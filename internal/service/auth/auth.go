package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/repository"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refreshtoken"
)

// Interface to create or compare customer password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and customer provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type tokenManager interface {
	GeneratePair(ctx context.Context, customer models.Customer) (models.TokenPair, error)
	UseRefresh(ctx context.Context, refresh string) (models.RefreshToken, error)
	ParseAccess(ctx context.Context, access string) (customerID uuid.UUID, err error)
}

type Config struct {
	// Hasher to use during registration or login
	// BcryptHasher if not set
	Hasher PasswordHasher

	// Where the access token is written and read: header name and auth scheme
	AccessHeaderName string
	AccessAuthScheme string

	// Cookie carrying the refresh token
	RefreshCookieName string
}

type AuthService struct {
	hasher PasswordHasher
	tokens tokenManager

	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string

	customerRepo repository.CustomerRepo
}

func NewService(cfg Config, tokens tokenManager, customerRepo repository.CustomerRepo) (*AuthService, error) {
	if cfg.Hasher == nil {
		cfg.Hasher = BcryptHasher{}
	}

	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefault(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefault(&cfg.RefreshCookieName, defaultRefreshCookieName)

	return &AuthService{
		hasher:            cfg.Hasher,
		tokens:            tokens,
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
		customerRepo:      customerRepo,
	}, nil
}

// Register customer and issue a token pair
// If username is taken returns apperrors.ErrCustomerAlreadyExists
func (s *AuthService) Register(ctx context.Context, username string, password string) (models.TokenPair, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	customer, err := s.customerRepo.CreateCustomer(ctx, username, hash)
	if err != nil {
		return models.TokenPair{}, err
	}

	return s.tokens.GeneratePair(ctx, customer)
}

// Login with username and password
// Unknown username and wrong password both return apperrors.ErrCustomerNotFound
func (s *AuthService) Login(ctx context.Context, username string, password string) (models.TokenPair, error) {
	customer, err := s.customerRepo.GetCustomerByUsername(ctx, username)
	if err != nil {
		return models.TokenPair{}, err
	}

	if err := s.hasher.Compare(customer.PasswordHash, password); err != nil {
		return models.TokenPair{}, apperrors.ErrCustomerNotFound
	}

	return s.tokens.GeneratePair(ctx, customer)
}

// Exchange a refresh token for a new pair. Every refresh token works once.
func (s *AuthService) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	token, err := s.tokens.UseRefresh(ctx, refresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	customer, err := s.customerRepo.GetCustomer(ctx, token.CustomerID)
	if err != nil {
		return models.TokenPair{}, err
	}

	return s.tokens.GeneratePair(ctx, customer)
}

// Write access token to the header and refresh token to an http-only cookie
func (s *AuthService) SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)

	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    pair.Refresh.Value,
		Path:     "/",
		MaxAge:   int(time.Until(pair.Refresh.ExpiresAt).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *AuthService) GetRefreshString(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return "", apperrors.ErrRefreshTokenNotFound
	}
	return cookie.Value, nil
}

// Auth returns the customer the access token in the request belongs to
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.Customer, error) {
	header := r.Header.Get(s.accessHeaderName)
	scheme, access, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, s.accessAuthScheme) || access == "" {
		return models.Customer{}, errors.New("access token not found")
	}

	customerID, err := s.tokens.ParseAccess(ctx, access)
	if err != nil {
		return models.Customer{}, err
	}

	return s.customerRepo.GetCustomer(ctx, customerID)
}
