package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/localworks/localworks-api/internal/app/accounts"
	"github.com/localworks/localworks-api/internal/app/apperr"
	"github.com/localworks/localworks-api/internal/app/messages"
	"github.com/localworks/localworks-api/internal/app/profiles"
	"github.com/localworks/localworks-api/internal/domain"
	"github.com/localworks/localworks-api/internal/ports/out/idempotency"
)

const maxBodyBytes = 1 << 20

// Server implements the HTTP handlers on top of the application services.
type Server struct {
	Accounts *accounts.Service
	Profiles *profiles.Service
	Messages *messages.Service
	Idem     idempotency.Store

	log *zap.Logger
	now func() time.Time
}

func NewServer(accountsSvc *accounts.Service, profilesSvc *profiles.Service, messagesSvc *messages.Service, idem idempotency.Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		Accounts: accountsSvc,
		Profiles: profilesSvc,
		Messages: messagesSvc,
		Idem:     idem,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// decodeBody reads a JSON request body into dst. An empty body is a
// validation error.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		switch {
		case errors.As(err, &mbe):
			return err
		case errors.Is(err, io.EOF):
			return &apperr.Error{Status: http.StatusBadRequest, Code: apperr.CodeValidation, Message: "missing request body"}
		default:
			return &apperr.Error{Status: http.StatusBadRequest, Code: apperr.CodeValidation, Message: "malformed JSON body"}
		}
	}
	return nil
}

// Auth.

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var body LoginRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if strings.TrimSpace(body.IdToken) == "" {
		writeError(w, r, s.log, apperr.Validation("idToken", "required"))
		return
	}
	a, err := s.Accounts.Login(r.Context(), strings.TrimSpace(body.IdToken))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Account: accountFromDomain(a)})
}

func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var body RegisterRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if strings.TrimSpace(body.IdToken) == "" {
		writeError(w, r, s.log, apperr.Validation("idToken", "required"))
		return
	}
	a, err := s.Accounts.Register(r.Context(), strings.TrimSpace(body.IdToken), accounts.RegisterInput{
		Name: body.Name,
		Role: body.Role,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, AccountResponse{Account: accountFromDomain(a)})
}

// Logout is an acknowledgement only; tokens are discarded client side.
func (s *Server) Logout(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Message: "logged out"})
}

// Accounts.

func (s *Server) GetMyAccount(w http.ResponseWriter, r *http.Request) {
	acc := AccountFromContext(r.Context())
	if acc == nil {
		writeError(w, r, s.log, apperr.AuthRequired())
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Account: accountFromDomain(*acc)})
}

func (s *Server) UpdateMyAccount(w http.ResponseWriter, r *http.Request) {
	acc := AccountFromContext(r.Context())
	if acc == nil {
		writeError(w, r, s.log, apperr.AuthRequired())
		return
	}
	var body UpdateAccountRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	a, err := s.Accounts.Rename(r.Context(), acc, body.Name)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Account: accountFromDomain(a)})
}

func (s *Server) PromoteRole(w http.ResponseWriter, r *http.Request) {
	acc := AccountFromContext(r.Context())
	if acc == nil {
		writeError(w, r, s.log, apperr.AuthRequired())
		return
	}
	var body PromoteRoleRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, r, s.log, err)
			return
		}
	}
	target := domain.AccountID(chi.URLParam(r, "accountId"))
	if target == "me" {
		target = acc.ID
	}
	a, err := s.Accounts.PromoteRole(r.Context(), acc, target, domain.Role(strings.TrimSpace(body.Role)))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Account: accountFromDomain(a)})
}

// Profiles.

func (s *Server) ListDirectory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Profiles.ListDirectory(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	out := make([]DirectoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, directoryEntryFromDomain(e))
	}
	writeJSON(w, http.StatusOK, DirectoryResponse{Profiles: out})
}

func (s *Server) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.Profiles.GetMine(r.Context(), AccountFromContext(r.Context()))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{Profile: profileFromDomain(p)})
}

func (s *Server) GetProfile(w http.ResponseWriter, r *http.Request) {
	id := domain.ProfileID(chi.URLParam(r, "profileId"))
	p, err := s.Profiles.Get(r.Context(), AccountFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{Profile: profileFromDomain(p)})
}

func (s *Server) CreateProfile(w http.ResponseWriter, r *http.Request) {
	acc := AccountFromContext(r.Context())
	if acc == nil {
		writeError(w, r, s.log, apperr.AuthRequired())
		return
	}
	var body CreateProfileRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	p, err := s.Profiles.Create(r.Context(), acc, createProfileInputFromRequest(body))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, ProfileResponse{Profile: profileFromDomain(p)})
}

func (s *Server) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	acc := AccountFromContext(r.Context())
	if acc == nil {
		writeError(w, r, s.log, apperr.AuthRequired())
		return
	}
	var body UpdateProfileRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	id := domain.ProfileID(chi.URLParam(r, "profileId"))
	p, err := s.Profiles.Update(r.Context(), acc, id, updateProfileInputFromRequest(body))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{Profile: profileFromDomain(p)})
}

func (s *Server) SetPublication(w http.ResponseWriter, r *http.Request) {
	acc := AccountFromContext(r.Context())
	if acc == nil {
		writeError(w, r, s.log, apperr.AuthRequired())
		return
	}
	var body SetPublicationRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if body.IsPublished == nil {
		writeError(w, r, s.log, apperr.Validation("isPublished", "required"))
		return
	}
	id := domain.ProfileID(chi.URLParam(r, "profileId"))
	p, err := s.Profiles.SetPublished(r.Context(), acc, id, *body.IsPublished)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{Profile: profileFromDomain(p)})
}

// Contact messages.

func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request) {
	acc := AccountFromContext(r.Context())
	if acc == nil {
		writeError(w, r, s.log, apperr.AuthRequired())
		return
	}
	var body SendMessageRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, r, s.log, err)
		return
	}

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	var replay *sendReplay
	if idemKey != "" && s.Idem != nil {
		rp, handled, err := s.beginSendReplay(r, *acc, idempotency.Key(idemKey), body)
		if err != nil {
			writeError(w, r, s.log, err)
			return
		}
		if handled != nil {
			w.Header().Set("Idempotent-Replayed", "true")
			w.Header().Set("Content-Type", handled.ContentType)
			w.WriteHeader(handled.StatusCode)
			_, _ = w.Write(handled.Body)
			return
		}
		replay = rp
	}

	m, err := s.Messages.Send(r.Context(), acc, messages.SendInput{
		ToProfileID: domain.ProfileID(body.ToProfileId),
		SenderName:  body.SenderName,
		SenderEmail: body.SenderEmail,
		SenderPhone: body.SenderPhone,
		Message:     body.Message,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}

	resp := ContactMessageResponse{Message: messageFromDomain(m)}
	if replay != nil {
		s.storeSendReplay(r, replay, http.StatusCreated, resp)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) ListReceived(w http.ResponseWriter, r *http.Request) {
	inbox, err := s.Messages.ListReceived(r.Context(), AccountFromContext(r.Context()))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	out := make([]InboxMessage, 0, len(inbox.Messages))
	for _, m := range inbox.Messages {
		out = append(out, inboxMessageFromApp(m))
	}
	writeJSON(w, http.StatusOK, InboxResponse{Messages: out, UnreadCount: inbox.UnreadCount})
}

func (s *Server) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.Messages.UnreadCount(r.Context(), AccountFromContext(r.Context()))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, UnreadCountResponse{UnreadCount: n})
}

func (s *Server) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := domain.MessageID(chi.URLParam(r, "messageId"))
	m, err := s.Messages.MarkRead(r.Context(), AccountFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ContactMessageResponse{Message: messageFromDomain(m)})
}

func (s *Server) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := domain.MessageID(chi.URLParam(r, "messageId"))
	if err := s.Messages.Delete(r.Context(), AccountFromContext(r.Context()), id); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
