package purchase

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sokoni/sokoni-api/internal/pkg/mobilemoney"
	"github.com/sokoni/sokoni-api/internal/pkg/response"
)

const maxCallbackBody = 64 * 1024

// WebhookHandler terminates the two asynchronous confirmation channels:
// the payment provider's HTTP callback and the SMS relay device.
type WebhookHandler struct {
	service *Service
	money   *mobilemoney.Adapter
}

func NewWebhookHandler(service *Service, money *mobilemoney.Adapter) *WebhookHandler {
	return &WebhookHandler{service: service, money: money}
}

type providerCallback struct {
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	Receipt       string `json:"receipt"`
	Amount        int64  `json:"amount"`
	FailureReason string `json:"failure_reason"`
}

// ProviderCallback handles POST /webhooks/payments/mpesa
func (h *WebhookHandler) ProviderCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		response.BadRequest(w, "Unreadable body")
		return
	}

	if !h.money.VerifyWebhookSignature(body, r.Header.Get("X-Webhook-Signature")) {
		log.Warn().Str("remote", r.RemoteAddr).Msg("payment webhook signature rejected")
		response.Unauthorized(w, "Invalid signature")
		return
	}

	var cb providerCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		response.BadRequest(w, "Invalid payload")
		return
	}
	if cb.Reference == "" {
		response.BadRequest(w, "Missing reference")
		return
	}

	p, err := h.service.ConfirmPurchase(r.Context(), cb.Reference, Outcome{
		Success:          cb.Status == "success",
		AmountPaid:       cb.Amount,
		Receipt:          cb.Receipt,
		FailureReason:    cb.FailureReason,
		ProviderMetadata: body,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	response.OK(w, map[string]string{"status": string(p.Status)})
}

type smsRelayRequest struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// SMSRelay handles POST /webhooks/sms-relay. A companion app on an
// operator phone forwards raw mobile money confirmation SMS here; the
// reference parsed out of the text links it back to a purchase.
func (h *WebhookHandler) SMSRelay(w http.ResponseWriter, r *http.Request) {
	if !h.money.VerifyRelayKey(r.Header.Get("X-Relay-Key")) {
		log.Warn().Str("remote", r.RemoteAddr).Msg("sms relay key rejected")
		response.Unauthorized(w, "Invalid relay key")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		response.BadRequest(w, "Unreadable body")
		return
	}

	var req smsRelayRequest
	if err := json.Unmarshal(body, &req); err != nil {
		response.BadRequest(w, "Invalid payload")
		return
	}

	sms, err := mobilemoney.ParseSMS(req.Text)
	if err != nil {
		if errors.Is(err, mobilemoney.ErrUnparsableSMS) {
			log.Warn().Str("sender", req.Sender).Msg("unparsable relayed sms")
			response.BadRequest(w, "Unparsable SMS")
			return
		}
		response.InternalError(w)
		return
	}

	p, err := h.service.ConfirmPurchase(r.Context(), sms.Reference, Outcome{
		Success:          true,
		AmountPaid:       sms.Amount,
		Receipt:          sms.Receipt,
		ProviderMetadata: body,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	response.OK(w, map[string]string{"status": string(p.Status)})
}

// WebhookRoutes returns the unauthenticated callback router; each handler
// does its own shared-secret verification.
func (h *WebhookHandler) WebhookRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/payments/mpesa", h.ProviderCallback)
	r.Post("/sms-relay", h.SMSRelay)
	return r
}
