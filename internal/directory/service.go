package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/congo-pay/npp_sim/internal/logging"
)

// Service resolves payment destinations.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a directory service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logging.Component(logger, "directory")}
}

// ResolveAlias returns the account an alias points to.
func (s *Service) ResolveAlias(ctx context.Context, t AliasType, value string) (Resolution, error) {
	value = normalizeValue(t, value)
	if value == "" {
		return Resolution{}, fmt.Errorf("%w: empty value", ErrInvalidAlias)
	}
	alias, err := s.repo.Alias(ctx, t, value)
	if err != nil {
		return Resolution{}, fmt.Errorf("alias %s:%s: %w", t, value, err)
	}
	account, err := s.repo.AccountByID(ctx, alias.AccountID)
	if err != nil {
		return Resolution{}, fmt.Errorf("alias %s:%s account: %w", t, value, err)
	}
	s.logger.Debug("alias resolved",
		slog.String("alias", alias.String()),
		slog.String("owner", account.OwnerName),
		slog.String("agent", account.Agent.ShortName))
	return Resolution{Alias: alias, Account: account}, nil
}

// Lookup finds an account by routing code and account number.
func (s *Service) Lookup(ctx context.Context, routing, number string) (Account, error) {
	routing, number = strings.TrimSpace(routing), strings.TrimSpace(number)
	if routing == "" || number == "" {
		return Account{}, fmt.Errorf("account %s/%s: %w", routing, number, ErrNotFound)
	}
	account, err := s.repo.AccountByNumber(ctx, routing, number)
	if err != nil {
		return Account{}, fmt.Errorf("account %s/%s: %w", routing, number, err)
	}
	return account, nil
}

// Aliases lists every registered alias with its account.
func (s *Service) Aliases(ctx context.Context) ([]Resolution, error) {
	aliases, err := s.repo.Aliases(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Resolution, 0, len(aliases))
	for _, a := range aliases {
		account, err := s.repo.AccountByID(ctx, a.AccountID)
		if err != nil {
			return nil, err
		}
		out = append(out, Resolution{Alias: a, Account: account})
	}
	return out, nil
}
