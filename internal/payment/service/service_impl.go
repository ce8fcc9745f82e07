package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/racepay/internal/clock"
	"github.com/smallbiznis/racepay/internal/config"
	"github.com/smallbiznis/racepay/internal/gateway"
	"github.com/smallbiznis/racepay/internal/notification"
	"github.com/smallbiznis/racepay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/racepay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/racepay/internal/payment/domain"
	registrationdomain "github.com/smallbiznis/racepay/internal/registration/domain"
	transactiondomain "github.com/smallbiznis/racepay/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	orderIDPrefix = "ORDER_"

	ErrorCodeTimeout  = transactiondomain.ErrorCodeInitTimeout
	ErrorCodeAPIError = transactiondomain.ErrorCodeInitRejected

	SourceCheck     = "check"
	SourceVerify    = "verify"
	SourceReconcile = "reconcile"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Config        config.Config
	Gateway       paymentdomain.Gateway
	Registrations registrationdomain.Repository
	Ledger        transactiondomain.Repository
	Notifier      notification.Sender
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

// Service drives a registration payment from checkout to its terminal state.
type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	cfg           config.Config
	gateway       paymentdomain.Gateway
	registrations registrationdomain.Repository
	ledger        transactiondomain.Repository
	notifier      notification.Sender
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		cfg:           p.Config,
		gateway:       p.Gateway,
		registrations: p.Registrations,
		ledger:        p.Ledger,
		notifier:      p.Notifier,
		obsMetrics:    p.ObsMetrics,
	}
}

// Initiate stores a PENDING registration and transaction pair and opens a checkout session.
// On gateway failure the rows are kept and marked, and the gateway error is returned.
func (s *Service) Initiate(ctx context.Context, req paymentdomain.InitiateRequest) (paymentdomain.InitiateResponse, error) {
	req = normalizeInitiate(req)
	if req.Name == "" || req.Email == "" || req.Phone == "" {
		return paymentdomain.InitiateResponse{}, paymentdomain.ErrMissingFields
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount <= 0 {
		return paymentdomain.InitiateResponse{}, paymentdomain.ErrInvalidAmount
	}
	amountInPaisa := int64(math.Round(req.Amount * 100))
	if amountInPaisa <= 0 {
		return paymentdomain.InitiateResponse{}, paymentdomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	orderID := orderIDPrefix + s.genID.Generate().String()
	log := logger.WithOrder(logger.WithContext(ctx, s.log), orderID)

	age := req.Age
	if age <= 0 && req.DateOfBirth != "" {
		if computed, ok := registrationdomain.AgeOn(req.DateOfBirth, now); ok {
			age = computed
		}
	}

	reg := &registrationdomain.Registration{
		ID:               s.genID.Generate().String(),
		MerchantOrderID:  orderID,
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		Age:              age,
		Gender:           req.Gender,
		DateOfBirth:      req.DateOfBirth,
		EmergencyContact: req.EmergencyContact,
		RaceCategory:     req.RaceCategory,
		TshirtSize:       req.TshirtSize,
		BloodGroup:       req.BloodGroup,
		Amount:           req.Amount,
		Status:           registrationdomain.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	txn := &transactiondomain.Transaction{
		MerchantOrderID: orderID,
		RegistrationID:  reg.ID,
		Amount:          req.Amount,
		AmountInPaisa:   amountInPaisa,
		Status:          transactiondomain.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.registrations.Insert(ctx, tx, reg); err != nil {
			return err
		}
		return s.ledger.Insert(ctx, tx, txn)
	}); err != nil {
		s.obsMetrics.RecordPaymentInitiated(ctx, "store_error")
		return paymentdomain.InitiateResponse{}, fmt.Errorf("store registration: %w", err)
	}

	session, err := s.gateway.CreatePayment(ctx, gateway.PaymentRequest{
		MerchantOrderID:  orderID,
		AmountMinorUnits: amountInPaisa,
		RedirectURL:      s.cfg.PublicBaseURL + "/payment/status?orderId=" + orderID,
		Metadata: map[string]string{
			"udf1": reg.Name,
			"udf2": reg.Email,
			"udf3": reg.Phone,
			"udf4": reg.RaceCategory,
			"udf5": reg.ID,
		},
	})
	if err != nil {
		s.recordInitFailure(ctx, log, reg, err)
		return paymentdomain.InitiateResponse{}, err
	}

	var expiresAt *time.Time
	if !session.ExpiresAt.IsZero() {
		expiresAt = &session.ExpiresAt
	}
	if err := s.ledger.AttachSession(ctx, s.db, orderID, transactiondomain.Session{
		GatewayOrderID: session.GatewayOrderID,
		RedirectURL:    session.RedirectURL,
		ExpiresAt:      expiresAt,
		At:             s.clock.Now(),
	}); err != nil {
		log.Error("attach checkout session failed", zap.Error(err))
		s.obsMetrics.RecordPaymentInitiated(ctx, "store_error")
		return paymentdomain.InitiateResponse{}, fmt.Errorf("store checkout session: %w", err)
	}

	log.Info("payment initiated",
		zap.String("registration_id", reg.ID),
		zap.String("gateway_order_id", session.GatewayOrderID),
		zap.Int64("amount_in_paisa", amountInPaisa),
	)
	s.obsMetrics.RecordPaymentInitiated(ctx, "ok")

	return paymentdomain.InitiateResponse{
		MerchantOrderID: orderID,
		OrderID:         session.GatewayOrderID,
		RedirectURL:     session.RedirectURL,
		RegistrationID:  reg.ID,
		ExpiresAt:       expiresAt,
	}, nil
}

func (s *Service) recordInitFailure(ctx context.Context, log *zap.Logger, reg *registrationdomain.Registration, cause error) {
	code := ErrorCodeAPIError
	if gateway.IsTimeout(cause) {
		code = ErrorCodeTimeout
	}
	now := s.clock.Now()

	log.Error("create payment failed", zap.String("error_code", code), zap.Error(cause))
	s.obsMetrics.RecordPaymentInitiated(ctx, strings.ToLower(code))

	if _, err := s.registrations.Transition(ctx, s.db, reg.ID, registrationdomain.StatusUpdate{
		Status:       registrationdomain.StatusPaymentInitFailed,
		ErrorCode:    code,
		ErrorMessage: cause.Error(),
		At:           now,
	}); err != nil {
		log.Error("mark registration init failure failed", zap.Error(err))
	}
	if err := s.ledger.RecordInitFailure(ctx, s.db, reg.MerchantOrderID, code, now); err != nil {
		log.Error("record transaction init failure failed", zap.Error(err))
	}
}

// HandleWebhook authenticates a gateway callback and applies the reported state.
func (s *Service) HandleWebhook(ctx context.Context, req paymentdomain.WebhookRequest) (paymentdomain.WebhookResult, error) {
	if s.cfg.Webhook.Enabled() &&
		!gateway.VerifyWebhookSignature(req.Authorization, s.cfg.Webhook.Username, s.cfg.Webhook.Password) {
		s.obsMetrics.RecordWebhookEvent(ctx, "", "unauthorized")
		return paymentdomain.WebhookResult{}, paymentdomain.ErrUnauthorized
	}

	payload := req.Payload
	orderID := strings.TrimSpace(payload.MerchantOrderID)
	if orderID == "" {
		return paymentdomain.WebhookResult{}, paymentdomain.ErrMissingOrderID
	}
	log := logger.WithOrder(logger.WithContext(ctx, s.log), orderID)

	txn, err := s.ledger.FindByOrderID(ctx, s.db, orderID)
	if err != nil {
		return paymentdomain.WebhookResult{}, err
	}
	if txn == nil {
		s.obsMetrics.RecordWebhookEvent(ctx, payload.State, "not_found")
		return paymentdomain.WebhookResult{}, paymentdomain.ErrOrderNotFound
	}

	now := s.clock.Now()
	current, applied, err := s.applyObserved(ctx, log, txn, transactiondomain.ObservedWebhook, observedState{
		State:             payload.State,
		GatewayOrderID:    payload.OrderID,
		Details:           payload.PaymentDetails,
		ErrorCode:         payload.ErrorCode,
		DetailedErrorCode: payload.DetailedErrorCode,
		Event:             req.Event,
	})
	if err != nil {
		return paymentdomain.WebhookResult{}, err
	}

	outcome := transactiondomain.EventOutcomeStale
	if applied {
		outcome = transactiondomain.EventOutcomeApplied
	}
	s.recordEvent(ctx, log, req, orderID, outcome, now)
	s.obsMetrics.RecordWebhookEvent(ctx, payload.State, outcome)

	if current.Status.IsTerminal() {
		s.notifyOutcome(ctx, log, current)
	}

	log.Info("webhook processed",
		zap.String("event", req.Event),
		zap.String("state", payload.State),
		zap.String("stored_status", string(current.Status)),
		zap.String("outcome", outcome),
	)
	return paymentdomain.WebhookResult{
		MerchantOrderID: orderID,
		State:           string(current.Status),
		Applied:         applied,
	}, nil
}

func (s *Service) recordEvent(ctx context.Context, log *zap.Logger, req paymentdomain.WebhookRequest, orderID, outcome string, at time.Time) {
	raw := req.Raw
	if !json.Valid(raw) {
		encoded, err := json.Marshal(req)
		if err != nil {
			encoded = []byte("{}")
		}
		raw = encoded
	}
	event := &transactiondomain.Event{
		ID:              ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		MerchantOrderID: orderID,
		Event:           req.Event,
		State:           req.Payload.State,
		Outcome:         outcome,
		Payload:         datatypes.JSON(raw),
		ReceivedAt:      at,
	}
	if err := s.ledger.InsertEvent(ctx, s.db, event); err != nil {
		log.Warn("record webhook event failed", zap.Error(err))
	}
}

// CheckStatus queries the gateway and mirrors the state onto the ledger without sending email.
func (s *Service) CheckStatus(ctx context.Context, merchantOrderID string) (gateway.OrderStatus, error) {
	return s.pullStatus(ctx, merchantOrderID, SourceCheck)
}

// Reconcile is CheckStatus for the background sweeper.
func (s *Service) Reconcile(ctx context.Context, merchantOrderID string) (gateway.OrderStatus, error) {
	return s.pullStatus(ctx, merchantOrderID, SourceReconcile)
}

func (s *Service) pullStatus(ctx context.Context, merchantOrderID, source string) (gateway.OrderStatus, error) {
	merchantOrderID = strings.TrimSpace(merchantOrderID)
	if merchantOrderID == "" {
		return gateway.OrderStatus{}, paymentdomain.ErrMissingOrderID
	}
	log := logger.WithOrder(logger.WithContext(ctx, s.log), merchantOrderID)

	status, err := s.gateway.OrderStatus(ctx, merchantOrderID, gateway.StatusOptions{IncludeDetails: true, IncludeErrorContext: true})
	if err != nil {
		log.Warn("order status query failed", zap.String("source", source), zap.Error(err))
		return gateway.OrderStatus{}, err
	}
	s.obsMetrics.RecordStatusCheck(ctx, source, string(status.State))

	txn, err := s.ledger.FindByOrderID(ctx, s.db, merchantOrderID)
	if err != nil {
		return gateway.OrderStatus{}, err
	}
	if txn == nil {
		log.Warn("status checked for unknown order", zap.String("source", source))
		return status, nil
	}

	if _, _, err := s.applyObserved(ctx, log, txn, transactiondomain.ObservedStatusCheck, fromGateway(status)); err != nil {
		if errors.Is(err, paymentdomain.ErrInvalidState) {
			log.Warn("gateway reported unknown state", zap.String("state", string(status.State)))
			return status, nil
		}
		return gateway.OrderStatus{}, err
	}
	return status, nil
}

// Verify is the status page fallback: it mirrors gateway state and sends the
// outcome email, or a one-time pending notice, when the webhook has not.
func (s *Service) Verify(ctx context.Context, merchantOrderID string) (paymentdomain.VerifyResult, error) {
	merchantOrderID = strings.TrimSpace(merchantOrderID)
	if merchantOrderID == "" {
		return paymentdomain.VerifyResult{}, paymentdomain.ErrMissingOrderID
	}
	log := logger.WithOrder(logger.WithContext(ctx, s.log), merchantOrderID)

	txn, err := s.ledger.FindByOrderID(ctx, s.db, merchantOrderID)
	if err != nil {
		return paymentdomain.VerifyResult{}, err
	}
	if txn == nil {
		return paymentdomain.VerifyResult{}, paymentdomain.ErrOrderNotFound
	}

	status, err := s.gateway.OrderStatus(ctx, merchantOrderID, gateway.StatusOptions{IncludeDetails: true, IncludeErrorContext: true})
	if err != nil {
		log.Warn("verify status query failed", zap.Error(err))
		return paymentdomain.VerifyResult{}, err
	}
	s.obsMetrics.RecordStatusCheck(ctx, SourceVerify, string(status.State))

	current, _, err := s.applyObserved(ctx, log, txn, transactiondomain.ObservedVerify, fromGateway(status))
	if err != nil {
		return paymentdomain.VerifyResult{}, err
	}

	if current.Status.IsTerminal() {
		s.notifyOutcome(ctx, log, current)
	} else {
		s.notifyPending(ctx, log, current)
	}

	reg, err := s.registrations.FindByID(ctx, s.db, current.RegistrationID)
	if err != nil {
		return paymentdomain.VerifyResult{}, err
	}

	return paymentdomain.VerifyResult{
		Verified:     current.Status == transactiondomain.StatusCompleted,
		State:        string(current.Status),
		Transaction:  transactionView(current),
		Registration: reg,
	}, nil
}

type observedState struct {
	State             string
	GatewayOrderID    string
	Details           []gateway.PaymentDetail
	ErrorCode         string
	DetailedErrorCode string
	Event             string
}

func fromGateway(status gateway.OrderStatus) observedState {
	obs := observedState{
		State:             string(status.State),
		GatewayOrderID:    status.OrderID,
		Details:           status.PaymentDetails,
		ErrorCode:         status.ErrorCode,
		DetailedErrorCode: status.DetailedErrorCode,
	}
	if obs.ErrorCode == "" && len(status.PaymentDetails) > 0 {
		obs.ErrorCode = status.PaymentDetails[0].ErrorCode
		obs.DetailedErrorCode = status.PaymentDetails[0].DetailedErrorCode
	}
	return obs
}

// applyObserved writes an observed gateway state onto the ledger and the linked
// registration. Terminal transactions never change status; a late or
// conflicting observation is reported as not applied.
func (s *Service) applyObserved(
	ctx context.Context,
	log *zap.Logger,
	txn *transactiondomain.Transaction,
	source transactiondomain.Observation,
	obs observedState,
) (*transactiondomain.Transaction, bool, error) {
	status, err := transactiondomain.ParseStatus(obs.State)
	if err != nil {
		return nil, false, paymentdomain.ErrInvalidState
	}

	now := s.clock.Now()
	if err := s.ledger.MarkObserved(ctx, s.db, txn.MerchantOrderID, source, now); err != nil {
		return nil, false, err
	}

	applied := false
	if txn.Status == transactiondomain.StatusPending {
		err := s.ledger.ApplyState(ctx, s.db, txn.MerchantOrderID, transactiondomain.StateUpdate{
			Status:            status,
			GatewayOrderID:    obs.GatewayOrderID,
			PaymentDetails:    toLedgerDetails(obs.Details),
			ErrorCode:         obs.ErrorCode,
			DetailedErrorCode: obs.DetailedErrorCode,
			WebhookEvent:      obs.Event,
			At:                now,
		})
		switch {
		case err == nil:
			applied = true
		case errors.Is(err, transactiondomain.ErrIllegalTransition):
		default:
			return nil, false, err
		}
	}
	if !applied && txn.Status != status {
		log.Warn("ignoring state change on settled transaction",
			zap.String("source", string(source)),
			zap.String("stored_status", string(txn.Status)),
			zap.String("observed_state", string(status)),
		)
	}

	current, err := s.ledger.FindByOrderID(ctx, s.db, txn.MerchantOrderID)
	if err != nil {
		return nil, false, err
	}
	if current == nil {
		return nil, false, paymentdomain.ErrOrderNotFound
	}

	if current.Status.IsTerminal() {
		s.syncRegistration(ctx, log, current, now)
	}
	return current, applied, nil
}

func (s *Service) syncRegistration(ctx context.Context, log *zap.Logger, txn *transactiondomain.Transaction, now time.Time) {
	if txn.RegistrationID == "" {
		return
	}
	update := registrationdomain.StatusUpdate{At: now}
	if txn.Status == transactiondomain.StatusCompleted {
		update.Status = registrationdomain.StatusConfirmed
		update.PaymentStatus = registrationdomain.PaymentStatusSuccess
		update.CompletedAt = &now
	} else {
		update.Status = registrationdomain.StatusPaymentFailed
		update.PaymentStatus = registrationdomain.PaymentStatusFailed
		update.ErrorCode = failureReason(txn)
	}

	changed, err := s.registrations.Transition(ctx, s.db, txn.RegistrationID, update)
	switch {
	case err == nil && changed:
		log.Info("registration updated", zap.String("registration_status", string(update.Status)))
	case err == nil:
	case errors.Is(err, registrationdomain.ErrNotFound), errors.Is(err, registrationdomain.ErrIllegalTransition):
		log.Warn("registration not updated", zap.String("registration_id", txn.RegistrationID), zap.Error(err))
	default:
		log.Error("update registration failed", zap.String("registration_id", txn.RegistrationID), zap.Error(err))
	}
}

// notifyOutcome sends the terminal email if this caller wins the email claim.
func (s *Service) notifyOutcome(ctx context.Context, log *zap.Logger, txn *transactiondomain.Transaction) {
	if txn.EmailSent {
		return
	}
	reg, err := s.registrations.FindByID(ctx, s.db, txn.RegistrationID)
	if err != nil || reg == nil {
		log.Warn("outcome email skipped, registration missing", zap.Error(err))
		return
	}

	claimed, err := s.ledger.ClaimEmail(ctx, s.db, txn.MerchantOrderID, s.clock.Now())
	if err != nil {
		log.Error("claim outcome email failed", zap.Error(err))
		return
	}
	if !claimed {
		return
	}

	kind := notification.KindFailed
	if txn.Status == transactiondomain.StatusCompleted {
		kind = notification.KindSuccess
	}
	if !s.notifier.Send(ctx, kind, notification.Data{
		Registration:  *reg,
		Transaction:   *txn,
		FailureReason: failureReason(txn),
	}) {
		log.Warn("outcome email not delivered", zap.String("kind", string(kind)))
	}
}

func (s *Service) notifyPending(ctx context.Context, log *zap.Logger, txn *transactiondomain.Transaction) {
	if txn.PendingEmailSent || txn.EmailSent {
		return
	}
	reg, err := s.registrations.FindByID(ctx, s.db, txn.RegistrationID)
	if err != nil || reg == nil {
		log.Warn("pending email skipped, registration missing", zap.Error(err))
		return
	}

	claimed, err := s.ledger.ClaimPendingEmail(ctx, s.db, txn.MerchantOrderID, s.clock.Now())
	if err != nil {
		log.Error("claim pending email failed", zap.Error(err))
		return
	}
	if !claimed {
		return
	}
	if !s.notifier.Send(ctx, notification.KindPending, notification.Data{Registration: *reg, Transaction: *txn}) {
		log.Warn("pending email not delivered")
	}
}

func failureReason(txn *transactiondomain.Transaction) string {
	if txn.Status == transactiondomain.StatusCompleted {
		return ""
	}
	if txn.ErrorCode != "" {
		return txn.ErrorCode
	}
	if detail, ok := txn.LatestDetail(); ok && detail.ErrorCode != "" {
		return detail.ErrorCode
	}
	if txn.Status == transactiondomain.StatusCancelled || txn.Status == transactiondomain.StatusTimeout {
		return string(txn.Status)
	}
	return "Payment declined"
}

func transactionView(txn *transactiondomain.Transaction) paymentdomain.TransactionView {
	view := paymentdomain.TransactionView{
		MerchantOrderID: txn.MerchantOrderID,
		PhonePeOrderID:  txn.GatewayOrderID,
		Amount:          txn.Amount,
		Status:          string(txn.Status),
		ErrorCode:       txn.ErrorCode,
	}
	if detail, ok := txn.LatestDetail(); ok {
		view.PaymentMode = detail.PaymentMode
		view.TransactionID = detail.TransactionID
	}
	return view
}

func toLedgerDetails(details []gateway.PaymentDetail) []transactiondomain.PaymentDetail {
	if details == nil {
		return nil
	}
	out := make([]transactiondomain.PaymentDetail, 0, len(details))
	for _, d := range details {
		out = append(out, transactiondomain.PaymentDetail(d))
	}
	return out
}

func normalizeInitiate(req paymentdomain.InitiateRequest) paymentdomain.InitiateRequest {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Gender = strings.TrimSpace(req.Gender)
	req.DateOfBirth = strings.TrimSpace(req.DateOfBirth)
	req.EmergencyContact = strings.TrimSpace(req.EmergencyContact)
	req.RaceCategory = strings.TrimSpace(req.RaceCategory)
	req.TshirtSize = strings.TrimSpace(req.TshirtSize)
	req.BloodGroup = strings.TrimSpace(req.BloodGroup)
	return req
}
