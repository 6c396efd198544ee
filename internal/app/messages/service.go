package messages

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/localworks/localworks-api/internal/app/apperr"
	"github.com/localworks/localworks-api/internal/app/authz"
	"github.com/localworks/localworks-api/internal/app/profiles"
	"github.com/localworks/localworks-api/internal/domain"
	"github.com/localworks/localworks-api/internal/platform/metrics"
	"github.com/localworks/localworks-api/internal/ports/out/accountrepo"
	clockport "github.com/localworks/localworks-api/internal/ports/out/clock"
	"github.com/localworks/localworks-api/internal/ports/out/messagerepo"
	"github.com/localworks/localworks-api/internal/ports/out/profilerepo"
)

const (
	maxSenderName  = 100
	maxSenderPhone = 32

	senderLookupConcurrency = 8
)

type Service struct {
	messages messagerepo.Repository
	profiles profilerepo.Repository
	accounts accountrepo.Repository
	clk      clockport.Clock
	log      *zap.Logger
	metrics  *metrics.Metrics

	newMessageID func() domain.MessageID
}

func NewService(messages messagerepo.Repository, profiles profilerepo.Repository, accounts accountrepo.Repository, clk clockport.Clock, log *zap.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		messages: messages,
		profiles: profiles,
		accounts: accounts,
		clk:      clk,
		log:      log,
		metrics:  m,
		newMessageID: func() domain.MessageID {
			return domain.MessageID(uuid.NewString())
		},
	}
}

// Send records a one-shot inquiry to a published profile. Any authenticated
// account may send, including to its own profile.
func (s *Service) Send(ctx context.Context, acc *domain.Account, in SendInput) (domain.ContactMessage, error) {
	actor := authz.Actor{Account: acc}
	if !actor.Authenticated() {
		return domain.ContactMessage{}, apperr.AuthRequired()
	}

	m, err := s.normalize(in)
	if err != nil {
		return domain.ContactMessage{}, err
	}

	var target *domain.Profile
	p, err := s.profiles.GetByID(ctx, m.ToProfileID)
	switch {
	case err == nil:
		target = &p
	case errors.Is(err, profilerepo.ErrNotFound):
	default:
		return domain.ContactMessage{}, err
	}
	if err := authz.Authorize(actor, authz.OpSendMessage, authz.Target{Profile: target}); err != nil {
		return domain.ContactMessage{}, err
	}

	m.ID = s.newMessageID()
	m.FromAccountID = acc.ID
	m.CreatedAt = s.clk.Now()
	if err := s.messages.Create(ctx, m); err != nil {
		return domain.ContactMessage{}, err
	}
	s.metrics.MessageSent()
	s.log.Info("contact message sent",
		zap.String("message_id", string(m.ID)),
		zap.String("profile_id", string(m.ToProfileID)),
		zap.String("from_account_id", string(acc.ID)),
	)
	return m, nil
}

func (s *Service) normalize(in SendInput) (domain.ContactMessage, error) {
	m := domain.ContactMessage{
		ToProfileID: domain.ProfileID(strings.TrimSpace(string(in.ToProfileID))),
		SenderName:  domain.NormalizeHumanName(in.SenderName),
		SenderEmail: domain.NormalizeEmail(in.SenderEmail),
		Message:     strings.TrimSpace(in.Message),
	}
	switch {
	case m.ToProfileID == "":
		return m, apperr.Validation("toProfileId", "is required")
	case m.SenderName == "":
		return m, apperr.Validation("senderName", "is required")
	case m.SenderEmail == "":
		return m, apperr.Validation("senderEmail", "is required")
	case m.Message == "":
		return m, apperr.Validation("message", "is required")
	}
	if utf8.RuneCountInString(m.SenderName) > maxSenderName {
		return m, apperr.Validation("senderName", fmt.Sprintf("must be at most %d characters", maxSenderName))
	}
	if _, err := mail.ParseAddress(m.SenderEmail); err != nil {
		return m, apperr.Validation("senderEmail", "must be a valid email address")
	}
	if utf8.RuneCountInString(m.Message) > domain.MaxMessageLength {
		return m, apperr.Validation("message", fmt.Sprintf("must be at most %d characters", domain.MaxMessageLength))
	}
	if in.SenderPhone != nil {
		phone := strings.TrimSpace(*in.SenderPhone)
		if utf8.RuneCountInString(phone) > maxSenderPhone {
			return m, apperr.Validation("senderPhone", fmt.Sprintf("must be at most %d characters", maxSenderPhone))
		}
		if phone != "" {
			m.SenderPhone = &phone
		}
	}
	return m, nil
}

// recipient resolves the actor and checks the inbox-level rule for op.
func (s *Service) recipient(ctx context.Context, acc *domain.Account, op authz.Operation) (authz.Actor, error) {
	actor, err := profiles.ActorFor(ctx, s.profiles, acc)
	if err != nil {
		return authz.Actor{}, err
	}
	if err := authz.Authorize(actor, op, authz.Target{}); err != nil {
		return authz.Actor{}, err
	}
	return actor, nil
}

// ListReceived returns the caller's inbox, newest first, with its unread count
// and the name and email of each sending account.
func (s *Service) ListReceived(ctx context.Context, acc *domain.Account) (Inbox, error) {
	actor, err := s.recipient(ctx, acc, authz.OpListReceived)
	if err != nil {
		return Inbox{}, err
	}
	ms, err := s.messages.ListByProfile(ctx, actor.Profile.ID)
	if err != nil {
		return Inbox{}, err
	}

	seen := make(map[domain.AccountID]bool, len(ms))
	var ids []domain.AccountID
	for _, m := range ms {
		if !seen[m.FromAccountID] {
			seen[m.FromAccountID] = true
			ids = append(ids, m.FromAccountID)
		}
	}
	senders, err := profiles.LoadAccounts(ctx, s.accounts, ids, senderLookupConcurrency)
	if err != nil {
		return Inbox{}, err
	}

	inbox := Inbox{Messages: make([]ReceivedMessage, len(ms))}
	for i, m := range ms {
		inbox.Messages[i] = ReceivedMessage{ContactMessage: m}
		if a, ok := senders[m.FromAccountID]; ok {
			inbox.Messages[i].From = &Sender{Name: a.DisplayName, Email: a.Email}
		} else if seen[m.FromAccountID] {
			s.log.Warn("inbox message without sender account",
				zap.String("message_id", string(m.ID)),
				zap.String("account_id", string(m.FromAccountID)),
			)
			delete(seen, m.FromAccountID)
		}
		if !m.IsRead {
			inbox.UnreadCount++
		}
	}
	return inbox, nil
}

// UnreadCount is computed from the store at query time.
func (s *Service) UnreadCount(ctx context.Context, acc *domain.Account) (int, error) {
	actor, err := s.recipient(ctx, acc, authz.OpUnreadCount)
	if err != nil {
		return 0, err
	}
	return s.messages.CountUnreadByProfile(ctx, actor.Profile.ID)
}

// MarkRead is idempotent: an already-read message stays read.
func (s *Service) MarkRead(ctx context.Context, acc *domain.Account, id domain.MessageID) (domain.ContactMessage, error) {
	if _, err := s.authorizeMessage(ctx, acc, authz.OpMarkRead, id); err != nil {
		return domain.ContactMessage{}, err
	}
	m, err := s.messages.MarkRead(ctx, id)
	if err != nil {
		if errors.Is(err, messagerepo.ErrNotFound) {
			return domain.ContactMessage{}, apperr.MessageNotFound()
		}
		return domain.ContactMessage{}, err
	}
	return m, nil
}

func (s *Service) Delete(ctx context.Context, acc *domain.Account, id domain.MessageID) error {
	if _, err := s.authorizeMessage(ctx, acc, authz.OpDeleteMessage, id); err != nil {
		return err
	}
	if err := s.messages.Delete(ctx, id); err != nil {
		if errors.Is(err, messagerepo.ErrNotFound) {
			return apperr.MessageNotFound()
		}
		return err
	}
	s.metrics.MessageDeleted()
	s.log.Info("contact message deleted",
		zap.String("message_id", string(id)),
		zap.String("account_id", string(acc.ID)),
	)
	return nil
}

// authorizeMessage checks role, then existence, then ownership.
func (s *Service) authorizeMessage(ctx context.Context, acc *domain.Account, op authz.Operation, id domain.MessageID) (domain.ContactMessage, error) {
	actor, err := profiles.ActorFor(ctx, s.profiles, acc)
	if err != nil {
		return domain.ContactMessage{}, err
	}
	// Role is checked before the message is loaded.
	if err := authz.Authorize(actor, op, authz.Target{}); err != nil {
		if ae, ok := apperr.As(err); !ok || ae.Code != apperr.CodeMessageNotFound {
			return domain.ContactMessage{}, err
		}
	}

	var target *domain.ContactMessage
	m, err := s.messages.GetByID(ctx, id)
	switch {
	case err == nil:
		target = &m
	case errors.Is(err, messagerepo.ErrNotFound):
	default:
		return domain.ContactMessage{}, err
	}
	if err := authz.Authorize(actor, op, authz.Target{Message: target}); err != nil {
		return domain.ContactMessage{}, err
	}
	return m, nil
}
