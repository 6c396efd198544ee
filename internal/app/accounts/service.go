package accounts

import (
	"context"
	"errors"
	"net/mail"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/localworks/localworks-api/internal/app/apperr"
	"github.com/localworks/localworks-api/internal/app/authz"
	"github.com/localworks/localworks-api/internal/domain"
	"github.com/localworks/localworks-api/internal/platform/metrics"
	"github.com/localworks/localworks-api/internal/ports/out/accountrepo"
	clockport "github.com/localworks/localworks-api/internal/ports/out/clock"
	"github.com/localworks/localworks-api/internal/ports/out/identity"
)

const maxDisplayNameLength = 100

type Service struct {
	repo     accountrepo.Repository
	verifier identity.Verifier
	clk      clockport.Clock
	log      *zap.Logger
	metrics  *metrics.Metrics

	newAccountID func() domain.AccountID
}

func NewService(repo accountrepo.Repository, verifier identity.Verifier, clk clockport.Clock, log *zap.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		verifier: verifier,
		clk:      clk,
		log:      log,
		metrics:  m,
		newAccountID: func() domain.AccountID {
			return domain.AccountID(uuid.NewString())
		},
	}
}

// Verify checks a bearer credential and maps verifier failures onto 401s.
func (s *Service) Verify(ctx context.Context, token string) (identity.Identity, error) {
	if token == "" {
		return identity.Identity{}, apperr.AuthRequired()
	}
	id, err := s.verifier.Verify(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrExpired):
			return identity.Identity{}, apperr.Unauthorized(apperr.CodeTokenExpired, "token expired")
		case errors.Is(err, identity.ErrMalformed):
			return identity.Identity{}, apperr.Unauthorized(apperr.CodeTokenMalformed, "token malformed")
		case errors.Is(err, identity.ErrInvalid):
			return identity.Identity{}, apperr.Unauthorized(apperr.CodeUnauthorized, "invalid token")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return identity.Identity{}, err
		default:
			return identity.Identity{}, apperr.Unauthorized(apperr.CodeUnauthorized, "invalid token")
		}
	}
	if id.Subject == "" {
		return identity.Identity{}, apperr.Unauthorized(apperr.CodeUnauthorized, "invalid token")
	}
	return id, nil
}

// ResolveBySubject returns the account bound to a verified subject.
func (s *Service) ResolveBySubject(ctx context.Context, subject domain.SubjectID) (domain.Account, error) {
	a, err := s.repo.GetBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, accountrepo.ErrNotFound) {
			return domain.Account{}, apperr.Unauthorized(apperr.CodeAccountNotFound, "no account exists for this identity")
		}
		return domain.Account{}, err
	}
	return a, nil
}

// Authenticate verifies a bearer credential and resolves its account.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.Account, error) {
	id, err := s.Verify(ctx, token)
	if err != nil {
		return domain.Account{}, err
	}
	return s.ResolveBySubject(ctx, id.Subject)
}

// Login exchanges a credential for the caller's account, provisioning one on
// first use. The display name falls back to the email local part.
func (s *Service) Login(ctx context.Context, token string) (domain.Account, error) {
	if err := authz.Authorize(authz.Anonymous(), authz.OpExchangeCredential, authz.Target{}); err != nil {
		return domain.Account{}, err
	}
	id, err := s.Verify(ctx, token)
	if err != nil {
		return domain.Account{}, err
	}

	a, err := s.repo.GetBySubject(ctx, id.Subject)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, accountrepo.ErrNotFound) {
		return domain.Account{}, err
	}

	email := domain.NormalizeEmail(id.Email)
	if err := validateEmail(email); err != nil {
		return domain.Account{}, apperr.Unauthorized(apperr.CodeUnauthorized, "token carries no usable email")
	}
	name := domain.NormalizeHumanName(id.Name)
	if name == "" {
		name = domain.EmailLocalPart(email)
	}

	a, err = s.provision(ctx, id.Subject, email, name, domain.RoleCustomer)
	if err != nil {
		// Lost a race with a concurrent first login for the same subject.
		if errors.Is(err, accountrepo.ErrSubjectAlreadyBound) {
			return s.repo.GetBySubject(ctx, id.Subject)
		}
		if errors.Is(err, accountrepo.ErrEmailInUse) {
			return domain.Account{}, apperr.Conflict(apperr.CodeEmailInUse, "email already in use by another account")
		}
		return domain.Account{}, err
	}
	s.metrics.AccountProvisioned("login")
	return a, nil
}

// Register creates an account explicitly. Existing subject or email is a conflict.
func (s *Service) Register(ctx context.Context, token string, in RegisterInput) (domain.Account, error) {
	id, err := s.Verify(ctx, token)
	if err != nil {
		return domain.Account{}, err
	}

	name := domain.NormalizeHumanName(in.Name)
	if name == "" {
		return domain.Account{}, apperr.Validation("name", "must be non-empty")
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		return domain.Account{}, apperr.Validation("name", "must be at most 100 characters")
	}
	role := domain.RoleCustomer
	if in.Role != "" {
		role = domain.Role(in.Role)
	}
	if role != domain.RoleCustomer && role != domain.RoleTradesperson {
		return domain.Account{}, apperr.Validation("role", "must be customer or tradesperson")
	}

	email := domain.NormalizeEmail(id.Email)
	if err := validateEmail(email); err != nil {
		return domain.Account{}, apperr.Unauthorized(apperr.CodeUnauthorized, "token carries no usable email")
	}

	if _, err := s.repo.GetBySubject(ctx, id.Subject); err == nil {
		return domain.Account{}, accountExists()
	} else if !errors.Is(err, accountrepo.ErrNotFound) {
		return domain.Account{}, err
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return domain.Account{}, accountExists()
	} else if !errors.Is(err, accountrepo.ErrNotFound) {
		return domain.Account{}, err
	}

	a, err := s.provision(ctx, id.Subject, email, name, role)
	if err != nil {
		if errors.Is(err, accountrepo.ErrSubjectAlreadyBound) || errors.Is(err, accountrepo.ErrEmailInUse) {
			return domain.Account{}, accountExists()
		}
		return domain.Account{}, err
	}
	s.metrics.AccountProvisioned("register")
	return a, nil
}

func (s *Service) provision(ctx context.Context, subject domain.SubjectID, email, name string, role domain.Role) (domain.Account, error) {
	now := s.clk.Now()
	a := domain.Account{
		ID:          s.newAccountID(),
		Subject:     subject,
		DisplayName: name,
		Email:       email,
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return domain.Account{}, err
	}
	s.log.Info("account provisioned",
		zap.String("account_id", string(a.ID)),
		zap.String("role", string(a.Role)),
	)
	return a, nil
}

// Rename changes the caller's display name.
func (s *Service) Rename(ctx context.Context, actor *domain.Account, name string) (domain.Account, error) {
	var target domain.AccountID
	if actor != nil {
		target = actor.ID
	}
	if err := authz.Authorize(authz.Actor{Account: actor}, authz.OpUpdateAccount, authz.Target{AccountID: target}); err != nil {
		return domain.Account{}, err
	}

	n := domain.NormalizeHumanName(name)
	if n == "" {
		return domain.Account{}, apperr.Validation("name", "must be non-empty")
	}
	if utf8.RuneCountInString(n) > maxDisplayNameLength {
		return domain.Account{}, apperr.Validation("name", "must be at most 100 characters")
	}

	a, err := s.repo.GetByID(ctx, actor.ID)
	if err != nil {
		return domain.Account{}, err
	}
	a.DisplayName = n
	a.UpdatedAt = s.clk.Now()
	if err := s.repo.Update(ctx, a); err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

// PromoteRole moves an account from customer to tradesperson. Promotion is
// one-way; requesting it again is a successful no-op.
func (s *Service) PromoteRole(ctx context.Context, actor *domain.Account, target domain.AccountID, role domain.Role) (domain.Account, error) {
	if err := authz.Authorize(authz.Actor{Account: actor}, authz.OpPromoteRole, authz.Target{AccountID: target}); err != nil {
		return domain.Account{}, err
	}
	if role == "" {
		role = domain.RoleTradesperson
	}
	if role != domain.RoleTradesperson {
		return domain.Account{}, apperr.Validation("role", "only promotion to tradesperson is supported")
	}

	a, err := s.repo.GetByID(ctx, target)
	if err != nil {
		return domain.Account{}, err
	}
	// Admins are never demoted by a promotion request.
	if a.Role == role || a.Role == domain.RoleAdmin {
		return a, nil
	}
	a.Role = role
	a.UpdatedAt = s.clk.Now()
	if err := s.repo.Update(ctx, a); err != nil {
		return domain.Account{}, err
	}
	s.log.Info("account role promoted",
		zap.String("account_id", string(a.ID)),
		zap.String("role", string(a.Role)),
	)
	return a, nil
}

func accountExists() *apperr.Error {
	return apperr.Conflict(apperr.CodeAccountExists, "account already exists")
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("must be non-empty")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("must be a valid email address")
	}
	return nil
}
