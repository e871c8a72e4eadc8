package payment

import (
	"context"
	"crypto/cipher"
	"crypto/des"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Proton-105/alina-bot/internal/domain"
	apperrors "github.com/Proton-105/alina-bot/internal/errors"
	"github.com/Proton-105/alina-bot/internal/repository"
	"github.com/Proton-105/alina-bot/pkg/config"
	"github.com/Proton-105/alina-bot/pkg/metrics"
)

const (
	SignatureVersion = "HMAC_SHA256_V1"

	redsysTestEndpoint = "https://sis-t.redsys.es:25443/sis/realizarPago"
	redsysProdEndpoint = "https://sis.redsys.es/sis/realizarPago"

	defaultRedsysCurrency = "978"
	redsysCurrencyCode    = "EUR"
	startPath             = "/pay/redsys/start"
	notifyPath            = "/webhooks/redsys"
)

// DeriveKey computes the per-order signing key: the order, zero-padded to a multiple of
// eight bytes, encrypted with 3DES-ECB under the decoded merchant key.
func DeriveKey(merchantKeyB64, order string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(merchantKeyB64)
	if err != nil {
		return nil, fmt.Errorf("decode merchant key: %w", err)
	}
	if len(key) == 16 {
		key = append(key, key[:8]...)
	}

	block, err := des.NewTripleDESCipher(key)
	if err != nil {
		return nil, fmt.Errorf("merchant key: %w", err)
	}

	data := []byte(order)
	if rem := len(data) % des.BlockSize; rem != 0 {
		data = append(data, make([]byte, des.BlockSize-rem)...)
	}

	out := make([]byte, len(data))
	encryptECB(block, out, data)
	return out, nil
}

func encryptECB(block cipher.Block, dst, src []byte) {
	size := block.BlockSize()
	for i := 0; i < len(src); i += size {
		block.Encrypt(dst[i:i+size], src[i:i+size])
	}
}

// Sign returns base64(HMAC-SHA256(paramsB64)) keyed by the order's derived key.
func Sign(merchantKeyB64, order, paramsB64 string) (string, error) {
	key, err := DeriveKey(merchantKeyB64, order)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(paramsB64))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Form is the auto-submitted POST that sends the user to the gateway.
type Form struct {
	Action    string
	Version   string
	Params    string
	Signature string
}

// Notification is a verified gateway callback.
type Notification struct {
	Order    string
	Response int
	UserID   int64
	Params   map[string]any
}

// Paid reports whether the gateway authorised the payment.
func (n *Notification) Paid() bool {
	return n.Response >= 0 && n.Response < 100
}

// Redsys builds gateway forms and processes its notifications.
type Redsys struct {
	cfg      config.RedsysConfig
	payments repository.PaymentRepository
	subs     Subscriptions
	renewals Renewals
	now      func() time.Time
	log      *slog.Logger
}

func NewRedsys(cfg config.RedsysConfig, payments repository.PaymentRepository, subs Subscriptions, renewals Renewals, log *slog.Logger) *Redsys {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Currency == "" {
		cfg.Currency = defaultRedsysCurrency
	}
	if cfg.Terminal == "" {
		cfg.Terminal = "1"
	}
	if cfg.PlanDays <= 0 {
		cfg.PlanDays = 30
	}
	return &Redsys{
		cfg:      cfg,
		payments: payments,
		subs:     subs,
		renewals: renewals,
		now:      time.Now,
		log:      log.With(slog.String("component", "redsys")),
	}
}

func (r *Redsys) Enabled() bool {
	return r != nil && r.cfg.Enabled
}

func (r *Redsys) Endpoint() string {
	if r.cfg.Env == "prod" {
		return redsysProdEndpoint
	}
	return redsysTestEndpoint
}

// BuildForm renders the signed merchant parameters for one order.
func (r *Redsys) BuildForm(order string, amountCents int, userID int64) (*Form, error) {
	if order == "" || amountCents <= 0 || userID <= 0 {
		return nil, apperrors.NewValidationError("order, amount and user_id are required")
	}

	merchantData, err := json.Marshal(map[string]int64{"user_id": userID})
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"Ds_Merchant_Amount":          strconv.Itoa(amountCents),
		"Ds_Merchant_Currency":        r.cfg.Currency,
		"Ds_Merchant_Order":           order,
		"Ds_Merchant_MerchantCode":    r.cfg.MerchantCode,
		"Ds_Merchant_Terminal":        r.cfg.Terminal,
		"Ds_Merchant_TransactionType": "0",
		"Ds_Merchant_MerchantURL":     r.cfg.NotifyURL,
		"Ds_Merchant_UrlOK":           r.cfg.OKURL,
		"Ds_Merchant_UrlKO":           r.cfg.KOURL,
		"Ds_Merchant_MerchantData":    string(merchantData),
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	paramsB64 := base64.StdEncoding.EncodeToString(raw)

	signature, err := Sign(r.cfg.Key, order, paramsB64)
	if err != nil {
		return nil, err
	}

	return &Form{
		Action:    r.Endpoint(),
		Version:   SignatureVersion,
		Params:    paramsB64,
		Signature: signature,
	}, nil
}

// StartURL stores a pending card payment and returns the link to the local start page.
func (r *Redsys) StartURL(ctx context.Context, userID int64) (string, error) {
	if !r.Enabled() {
		return "", errors.New("redsys is disabled")
	}

	order := r.newOrder()
	err := r.payments.Upsert(ctx, &domain.Payment{
		UserID:   userID,
		Provider: domain.ProviderRedsys,
		OrderID:  order,
		Amount:   r.cfg.AmountCents,
		Currency: redsysCurrencyCode,
		Status:   domain.PaymentPending,
	})
	if err != nil {
		return "", fmt.Errorf("store redsys order: %w", err)
	}
	metrics.RecordPayment(string(domain.ProviderRedsys), string(domain.PaymentPending))

	base := strings.TrimSuffix(strings.TrimSuffix(r.cfg.NotifyURL, "/"), notifyPath)
	q := url.Values{}
	q.Set("order", order)
	q.Set("amount", strconv.Itoa(r.cfg.AmountCents))
	q.Set("user_id", strconv.FormatInt(userID, 10))
	return base + startPath + "?" + q.Encode(), nil
}

// newOrder returns a 12 digit order number; the gateway wants at least four leading digits.
func (r *Redsys) newOrder() string {
	return fmt.Sprintf("%012d", r.now().UnixMilli()%1_000_000_000_000)
}

// Verify checks the signature of base64 merchant parameters and decodes them.
// The signature may use URL-safe or standard base64.
func (r *Redsys) Verify(paramsB64, signature string) (*Notification, error) {
	if paramsB64 == "" || signature == "" {
		return nil, apperrors.NewSignatureError("missing redsys parameters or signature")
	}

	raw, err := decodeBase64(paramsB64)
	if err != nil {
		return nil, apperrors.NewSignatureError("redsys parameters are not base64")
	}

	params := map[string]any{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, apperrors.NewSignatureError("redsys parameters are not json")
	}

	order := stringParam(params, "Ds_Order")
	if order == "" {
		order = stringParam(params, "Ds_Merchant_Order")
	}
	if order == "" {
		return nil, apperrors.NewSignatureError("redsys order is missing")
	}

	expected, err := Sign(r.cfg.Key, order, paramsB64)
	if err != nil {
		return nil, apperrors.NewSignatureError("redsys key: " + err.Error())
	}
	want, _ := base64.StdEncoding.DecodeString(expected)
	got, err := decodeBase64(signature)
	if err != nil || subtle.ConstantTimeCompare(got, want) != 1 {
		return nil, apperrors.NewSignatureError("redsys signature mismatch")
	}

	n := &Notification{Order: order, Response: -1, Params: params}
	if code := stringParam(params, "Ds_Response"); code != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(code)); err == nil {
			n.Response = v
		}
	}
	n.UserID = merchantUser(stringParam(params, "Ds_MerchantData"))
	return n, nil
}

// HandleNotification verifies and applies a gateway callback. Signature failures return
// a signature error and change nothing. Repeated notifications for one order are no-ops.
func (r *Redsys) HandleNotification(ctx context.Context, paramsB64, signature string) (*Notification, *Activation, error) {
	n, err := r.Verify(paramsB64, signature)
	if err != nil {
		metrics.RecordPayment(string(domain.ProviderRedsys), "bad_signature")
		r.log.WarnContext(ctx, "redsys notification rejected", slog.Any("error", err))
		return nil, nil, err
	}

	raw, _ := decodeBase64(paramsB64)

	if n.Response < 0 {
		r.log.WarnContext(ctx, "redsys notification without response code", slog.String("order", n.Order))
		return n, nil, nil
	}

	if !n.Paid() {
		if _, err := r.payments.Settle(ctx, n.Order, domain.PaymentFailed, string(raw)); err != nil {
			return n, nil, fmt.Errorf("mark redsys order failed: %w", err)
		}
		metrics.RecordPayment(string(domain.ProviderRedsys), string(domain.PaymentFailed))
		r.log.InfoContext(ctx, "redsys payment declined", slog.String("order", n.Order), slog.Int("response", n.Response))
		return n, nil, nil
	}

	changed, err := r.payments.Settle(ctx, n.Order, domain.PaymentPaid, string(raw))
	if err != nil {
		return n, nil, fmt.Errorf("mark redsys order paid: %w", err)
	}

	existing, findErr := r.payments.FindByOrder(ctx, n.Order)
	if n.UserID == 0 && findErr == nil {
		n.UserID = existing.UserID
	}

	if !changed {
		switch {
		case findErr == nil && existing.Status == domain.PaymentPaid:
			r.log.InfoContext(ctx, "redsys notification already applied", slog.String("order", n.Order))
			return n, &Activation{UserID: n.UserID, Days: r.cfg.PlanDays, Duplicate: true}, nil
		case findErr != nil && !errors.Is(findErr, repository.ErrNotFound):
			return n, nil, fmt.Errorf("load redsys order: %w", findErr)
		}
		if n.UserID == 0 {
			r.log.WarnContext(ctx, "redsys payment without user", slog.String("order", n.Order))
			return n, nil, apperrors.NewPaymentError(string(domain.ProviderRedsys), errors.New("merchant data has no user"))
		}
		err = r.payments.Upsert(ctx, &domain.Payment{
			UserID:   n.UserID,
			Provider: domain.ProviderRedsys,
			OrderID:  n.Order,
			Amount:   intParam(n.Params, "Ds_Amount"),
			Currency: redsysCurrencyCode,
			Status:   domain.PaymentPaid,
			Raw:      string(raw),
		})
		if err != nil {
			return n, nil, fmt.Errorf("store redsys order: %w", err)
		}
	}

	if n.UserID == 0 {
		return n, nil, apperrors.NewPaymentError(string(domain.ProviderRedsys), errors.New("merchant data has no user"))
	}

	until, err := r.subs.ActivateSubscription(ctx, n.UserID, r.cfg.PlanDays)
	if err != nil {
		// The gateway retries on 500; a pending row lets that retry settle and activate.
		reopen(ctx, r.payments, r.log, n.Order)
		return n, nil, fmt.Errorf("activate subscription: %w", err)
	}
	metrics.RecordPayment(string(domain.ProviderRedsys), string(domain.PaymentPaid))

	if r.renewals != nil {
		if err := r.renewals.ScheduleRenewal(ctx, n.UserID, until); err != nil {
			r.log.WarnContext(ctx, "renewal nudge not scheduled", slog.Int64("user_id", n.UserID), slog.Any("error", err))
		}
	}

	r.log.InfoContext(ctx, "redsys payment completed",
		slog.String("order", n.Order),
		slog.Int64("user_id", n.UserID),
		slog.Time("until", until),
	)
	return n, &Activation{UserID: n.UserID, Days: r.cfg.PlanDays, Until: until}, nil
}

// reopen returns a settled order to pending after activation failed.
func reopen(ctx context.Context, payments repository.PaymentRepository, log *slog.Logger, order string) {
	if err := payments.Reopen(context.WithoutCancel(ctx), order); err != nil {
		log.ErrorContext(ctx, "paid order left without subscription", slog.String("order", order), slog.Any("error", err))
	}
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	if pad := len(s) % 4; pad != 0 {
		s += strings.Repeat("=", 4-pad)
	}
	return base64.StdEncoding.DecodeString(s)
}

func stringParam(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func intParam(params map[string]any, key string) int {
	v, err := strconv.Atoi(strings.TrimSpace(stringParam(params, key)))
	if err != nil {
		return 0
	}
	return v
}

// merchantUser reads the user id from Ds_MerchantData, which the gateway may return URL-encoded.
func merchantUser(data string) int64 {
	if data == "" {
		return 0
	}
	if unescaped, err := url.QueryUnescape(data); err == nil {
		data = unescaped
	}
	var md struct {
		UserID json.Number `json:"user_id"`
	}
	if err := json.Unmarshal([]byte(data), &md); err != nil {
		return 0
	}
	id, err := md.UserID.Int64()
	if err != nil {
		return 0
	}
	return id
}
