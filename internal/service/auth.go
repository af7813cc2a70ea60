package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/schoolquest/internal/apperror"
	"github.com/sakif/schoolquest/internal/auth"
	"github.com/sakif/schoolquest/internal/model"
	"github.com/sakif/schoolquest/internal/repository"
)

// AuthService handles sign-in.
//
//	AuthHandler (HTTP) -> AuthService -> UserRepository
//	                                  -> TokenService (JWT)
//	                                  -> ProgressService (login event)
type AuthService struct {
	users         repository.UserRepository
	tokens        *auth.TokenService
	progress      *ProgressService
	allowedDomain string
	logger        *slog.Logger
}

// NewAuthService wires the service. allowedDomain, when set, restricts
// sign-in to emails at that domain (e.g. "school.edu").
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	progress *ProgressService,
	allowedDomain string,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:         users,
		tokens:        tokens,
		progress:      progress,
		allowedDomain: strings.ToLower(strings.TrimPrefix(strings.TrimSpace(allowedDomain), "@")),
		logger:        logger,
	}
}

// AuthResult bundles the user and the issued JWT.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginWithGoogle upserts the Google account, records a login event and
// issues a token. The login event is best-effort; sign-in does not fail
// because of it.
func (s *AuthService) LoginWithGoogle(ctx context.Context, gu *auth.GoogleUser) (*AuthResult, error) {
	if gu == nil {
		return nil, fmt.Errorf("service/auth: Google user must not be nil")
	}
	email := strings.ToLower(strings.TrimSpace(gu.Email))
	if !s.domainAllowed(email) {
		s.logger.Warn("sign-in rejected for domain", slog.String("email", email))
		return nil, apperror.Forbidden(fmt.Sprintf("sign-in is limited to @%s accounts", s.allowedDomain))
	}

	user := &model.User{
		GoogleSub: gu.Sub,
		Email:     email,
		Name:      gu.Name,
		Image:     gu.Picture,
	}
	if err := s.users.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user %s: %w", email, err)
	}

	s.logger.Info("user authenticated via Google",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
	)

	if s.progress != nil {
		if _, err := s.progress.RecordLogin(ctx, user.Email); err != nil {
			s.logger.Warn("failed to record login", slog.String("error", err.Error()))
		}
	}

	token, err := s.tokens.Generate(auth.Identity{UserID: user.ID, Email: user.Email})
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) domainAllowed(email string) bool {
	if s.allowedDomain == "" {
		return true
	}
	return strings.HasSuffix(email, "@"+s.allowedDomain)
}

// GetUserByID is used by /api/me after the middleware validated the token.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}
