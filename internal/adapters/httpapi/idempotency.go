package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/localworks/localworks-api/internal/app/apperr"
	"github.com/localworks/localworks-api/internal/domain"
	"github.com/localworks/localworks-api/internal/ports/out/idempotency"
)

const sendMessageRoute = "/contact-messages"

// sendReplay carries the fingerprints of an in-flight idempotent send.
type sendReplay struct {
	meta     idempotency.Fingerprint
	response idempotency.Fingerprint
	bodyHash string
}

// beginSendReplay looks up a prior response for the same actor, key and body.
//
// The record stored under an empty BodyHash holds the hash of the first body
// seen for the key: a different hash is a 409. A matching stored response is
// returned for replay; otherwise the caller proceeds and later calls
// storeSendReplay.
func (s *Server) beginSendReplay(r *http.Request, acc domain.Account, key idempotency.Key, body SendMessageRequest) (*sendReplay, *idempotency.Record, error) {
	ctx := r.Context()
	bodyHash, err := hashSendMessageBody(body)
	if err != nil {
		return nil, nil, err
	}
	fp := idempotency.Fingerprint{
		Key:     key,
		Subject: acc.Subject,
		Method:  http.MethodPost,
		Route:   sendMessageRoute,
	}
	meta := fp.KeyRecord()
	rp := &sendReplay{meta: meta, response: fp.ForBody(bodyHash), bodyHash: bodyHash}

	rec, ok, err := s.Idem.Get(ctx, meta)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return rp, nil, nil
	}
	if string(rec.Body) != bodyHash {
		return nil, nil, &apperr.Error{
			Status:  http.StatusConflict,
			Code:    apperr.CodeIdempotencyReuse,
			Message: "idempotency key reuse with different payload",
		}
	}
	stored, ok, err := s.Idem.Get(ctx, rp.response)
	if err != nil {
		return nil, nil, err
	}
	if ok && stored.StatusCode == http.StatusCreated && strings.HasPrefix(stored.ContentType, "application/json") {
		return rp, &stored, nil
	}
	return rp, nil, nil
}

// storeSendReplay persists a successful response for later replay. Failures
// are logged and never fail the request.
func (s *Server) storeSendReplay(r *http.Request, rp *sendReplay, status int, resp any) {
	ctx := r.Context()
	b, err := json.Marshal(resp)
	if err != nil {
		s.log.Warn("idempotency: encode response", zap.Error(err))
		return
	}
	now := s.now()
	if err := s.Idem.Put(ctx, rp.response, idempotency.Record{
		StatusCode:  status,
		ContentType: "application/json",
		Body:        append(b, '\n'),
		CreatedAt:   now,
	}); err != nil {
		s.log.Warn("idempotency: store response", zap.Error(err))
		return
	}
	if err := s.Idem.Put(ctx, rp.meta, idempotency.Record{
		StatusCode:  0,
		ContentType: "text/plain",
		Body:        []byte(rp.bodyHash),
		CreatedAt:   now,
	}); err != nil {
		s.log.Warn("idempotency: store key", zap.Error(err))
	}
}

// hashSendMessageBody canonicalises fields with normalisation semantics
// before hashing so that whitespace-only differences replay.
func hashSendMessageBody(b SendMessageRequest) (string, error) {
	canon := b
	canon.ToProfileId = strings.TrimSpace(canon.ToProfileId)
	canon.SenderName = domain.NormalizeHumanName(canon.SenderName)
	canon.SenderEmail = domain.NormalizeEmail(canon.SenderEmail)
	canon.Message = strings.TrimSpace(canon.Message)
	if canon.SenderPhone != nil {
		p := strings.TrimSpace(*canon.SenderPhone)
		if p == "" {
			canon.SenderPhone = nil
		} else {
			canon.SenderPhone = &p
		}
	}
	raw, err := json.Marshal(canon)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
