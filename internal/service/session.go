package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"bizsync/internal/domain"
)

const (
	secretOwnerID = "owner_id"
	secretToken   = "token"
)

// SessionService keeps the signed-in owner and its bearer token in the
// local secret store.
type SessionService struct {
	secrets     SecretStore
	checkpoints CheckpointStore
	txManager   TransactionManager
	logger      *slog.Logger
}

func NewSessionService(secrets SecretStore, checkpoints CheckpointStore, txManager TransactionManager, logger *slog.Logger) *SessionService {
	return &SessionService{
		secrets:     secrets,
		checkpoints: checkpoints,
		txManager:   txManager,
		logger:      logger.With("component", "session"),
	}
}

func (s *SessionService) Session(ctx context.Context) (*domain.Session, error) {
	ownerID, err := s.secret(ctx, secretOwnerID)
	if err != nil {
		return nil, err
	}
	token, err := s.secret(ctx, secretToken)
	if err != nil {
		return nil, err
	}
	return &domain.Session{OwnerID: ownerID, Token: token}, nil
}

// Login stores a new session. Signing in as a different owner drops that
// owner's checkpoints so the first pass pulls its full data set.
func (s *SessionService) Login(ctx context.Context, ownerID, token string) error {
	ownerID = strings.TrimSpace(ownerID)
	token = strings.TrimSpace(token)
	if ownerID == "" || token == "" {
		return fmt.Errorf("%w: owner id and token are required", domain.ErrAuthRequired)
	}

	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		prev, err := s.secrets.Get(txCtx, secretOwnerID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return fmt.Errorf("read owner: %w", err)
		case prev != ownerID:
			if err := s.checkpoints.Clear(txCtx, ownerID); err != nil {
				return fmt.Errorf("clear checkpoints: %w", err)
			}
			s.logger.Info("account switched", "from", prev, "to", ownerID)
		}

		if err := s.secrets.Set(txCtx, secretOwnerID, ownerID); err != nil {
			return fmt.Errorf("store owner: %w", err)
		}
		if err := s.secrets.Set(txCtx, secretToken, token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
		return nil
	})
}

// Logout forgets the session and the owner's checkpoints. Local records are
// kept, dirty ones included.
func (s *SessionService) Logout(ctx context.Context) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ownerID, err := s.secrets.Get(txCtx, secretOwnerID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return fmt.Errorf("read owner: %w", err)
		default:
			if err := s.checkpoints.Clear(txCtx, ownerID); err != nil {
				return fmt.Errorf("clear checkpoints: %w", err)
			}
		}

		if err := s.secrets.Clear(txCtx); err != nil {
			return fmt.Errorf("clear secrets: %w", err)
		}
		s.logger.Info("logged out", "owner_id", ownerID)
		return nil
	})
}

func (s *SessionService) secret(ctx context.Context, key string) (string, error) {
	v, err := s.secrets.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && v == "") {
		return "", domain.ErrAuthRequired
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}
