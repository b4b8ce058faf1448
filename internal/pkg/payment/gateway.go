package payment

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CertLedger/app/models"
	"github.com/ManuelReschke/CertLedger/app/repository"
	"github.com/ManuelReschke/CertLedger/internal/pkg/apperr"
	"github.com/ManuelReschke/CertLedger/internal/pkg/enrollment"
	"github.com/ManuelReschke/CertLedger/internal/pkg/events"
	"github.com/ManuelReschke/CertLedger/internal/pkg/payu"
	"github.com/ManuelReschke/CertLedger/internal/pkg/promo"
)

var txnIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,25}$`)

const maxProductInfo = 100

// errAlreadySettled aborts a settlement transaction that lost the race.
var errAlreadySettled = errors.New("gateway transaction already settled")

// GatewayService runs the redirect payment flow: it signs the outbound form
// and settles signed callbacks against the locally recorded transaction.
type GatewayService struct {
	store     repository.Store
	signer    *payu.Signer
	cfg       payu.Config
	pricer    *Pricer
	activator *enrollment.Activator
	publisher events.Publisher
	now       func() time.Time
}

func NewGatewayService(store repository.Store, cfg payu.Config, pricer *Pricer, activator *enrollment.Activator, publisher events.Publisher) (*GatewayService, error) {
	signer, err := payu.NewSigner(cfg)
	if err != nil {
		return nil, err
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &GatewayService{
		store:     store,
		signer:    signer,
		cfg:       cfg,
		pricer:    pricer,
		activator: activator,
		publisher: publisher,
		now:       time.Now,
	}, nil
}

// BeginInput starts a redirect payment. Amount is what the client displayed
// and is only compared against the server quote.
type BeginInput struct {
	TxnID     string         `json:"txnid"`
	StudentID string         `json:"-"`
	Item      models.ItemRef `json:"-"`
	Amount    *int64         `json:"amount"`
	PromoCode string         `json:"promo_code"`
	FirstName string         `json:"first_name"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone"`
}

// BeginResult carries the form the browser posts to the gateway.
type BeginResult struct {
	TxnID      string            `json:"txnid"`
	Amount     int64             `json:"amount"`
	PaymentURL string            `json:"payment_url"`
	Fields     map[string]string `json:"fields"`
	Quote      *PriceQuote       `json:"quote"`
}

// Begin records an initiated transaction and returns signed redirect
// parameters. The amount is always the server quote.
func (s *GatewayService) Begin(ctx context.Context, in BeginInput) (*BeginResult, error) {
	if strings.TrimSpace(in.StudentID) == "" {
		return nil, apperr.E(apperr.Invalid, "student is required")
	}
	txnID := strings.TrimSpace(in.TxnID)
	if txnID == "" {
		txnID = newTxnID()
	} else if !txnIDPattern.MatchString(txnID) {
		return nil, apperr.E(apperr.Invalid, "txnid must be 1-25 characters of letters, digits, '-' or '_'")
	}

	quote, err := s.pricer.Quote(ctx, in.Item, in.PromoCode)
	if err != nil {
		return nil, err
	}
	if in.Amount != nil && *in.Amount != quote.FinalAmount {
		return nil, apperr.E(apperr.AmountMismatch, "amount does not match the current price")
	}
	if quote.FinalAmount <= 0 {
		return nil, apperr.E(apperr.Invalid, "nothing to pay for this item")
	}

	if _, err := s.store.Enrollments().GetByStudentItem(ctx, in.StudentID, in.Item, false); err == nil {
		return nil, apperr.E(apperr.AlreadyEnrolled, "already enrolled")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internalf("enrollment lookup failed", err)
	}

	firstName, email, phone, err := s.payerInfo(ctx, in)
	if err != nil {
		return nil, err
	}

	req := payu.PaymentRequest{
		TxnID:       txnID,
		Amount:      payu.FormatAmount(quote.FinalAmount),
		ProductInfo: truncate(quote.Item.Title, maxProductInfo),
		FirstName:   firstName,
		Email:       email,
		Phone:       phone,
		UDF:         [5]string{in.StudentID, string(in.Item.Type), in.Item.ID, quote.PromoCode, ""},
	}

	txn := &models.GatewayTransaction{
		TxnID:       txnID,
		StudentID:   in.StudentID,
		ItemType:    in.Item.Type,
		ItemID:      in.Item.ID,
		Amount:      quote.FinalAmount,
		ProductInfo: req.ProductInfo,
		FirstName:   firstName,
		Email:       email,
		Phone:       phone,
		Signature:   s.signer.RequestHash(req),
		Outcome:     models.GatewayInitiated,
	}
	if quote.PromoCode != "" {
		code := quote.PromoCode
		txn.PromoCode = &code
	}
	if err := s.store.GatewayTransactions().Create(ctx, txn); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.E(apperr.DuplicateReference, "txnid already used")
		}
		return nil, apperr.Internalf("could not record transaction", err)
	}

	log.Infof("[Gateway] Initiated %s for student %s: %s amount %d", txnID, in.StudentID, in.Item, quote.FinalAmount)
	return &BeginResult{
		TxnID:      txnID,
		Amount:     quote.FinalAmount,
		PaymentURL: s.cfg.PaymentURL,
		Fields:     s.signer.FormFields(req, s.cfg.CallbackURL),
		Quote:      quote,
	}, nil
}

func (s *GatewayService) payerInfo(ctx context.Context, in BeginInput) (string, string, string, error) {
	firstName := strings.TrimSpace(in.FirstName)
	email := strings.TrimSpace(in.Email)
	phone := strings.TrimSpace(in.Phone)
	if firstName == "" || email == "" {
		st, err := s.store.Catalog().GetStudent(ctx, in.StudentID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", "", apperr.Internalf("student lookup failed", err)
		}
		if st != nil {
			if firstName == "" {
				firstName = st.FirstName
			}
			if email == "" {
				email = st.Email
			}
			if phone == "" {
				phone = st.Phone
			}
		}
	}
	if firstName == "" || email == "" {
		return "", "", "", apperr.E(apperr.Invalid, "payer first name and email are required")
	}
	return firstName, email, phone, nil
}

// CallbackResult describes how a callback was applied.
type CallbackResult struct {
	TxnID           string                `json:"txnid"`
	Outcome         models.GatewayOutcome `json:"outcome"`
	Enrollment      *models.Enrollment    `json:"enrollment,omitempty"`
	Duplicate       bool                  `json:"duplicate"`
	AlreadyEnrolled bool                  `json:"already_enrolled"`
}

// HandleCallback verifies and applies a gateway callback. A forged callback
// changes no state and yields SignatureMismatch.
func (s *GatewayService) HandleCallback(ctx context.Context, rep payu.Reply, remoteIP string) (*CallbackResult, error) {
	valid := s.signer.VerifyReply(rep)
	event := s.recordEvent(ctx, rep, valid, remoteIP)

	if !valid {
		log.Warnf("[Gateway] Signature mismatch for txnid=%q status=%q claimed_amount=%q udf1=%q udf3=%q ip=%s",
			rep.TxnID, rep.Status, rep.Amount, rep.UDF[0], rep.UDF[2], remoteIP)
		s.markEvent(ctx, event, "signature_mismatch")
		s.publisher.Publish(ctx, events.NewEvent(events.GatewayForged, rep.TxnID, map[string]string{
			"txnid":  rep.TxnID,
			"status": rep.Status,
			"ip":     remoteIP,
		}))
		return nil, apperr.E(apperr.SignatureMismatch, "payment verification failed")
	}

	result, created, err := s.settle(ctx, rep)
	if err != nil {
		s.markEvent(ctx, event, apperr.MessageOf(err))
		return nil, err
	}
	s.markEvent(ctx, event, "")

	if !result.Duplicate {
		s.publisher.Publish(ctx, events.NewEvent(events.GatewaySettled, result.TxnID, result))
	}
	if created {
		s.activator.Announce(ctx, result.Enrollment)
	}
	return result, nil
}

func (s *GatewayService) settle(ctx context.Context, rep payu.Reply) (*CallbackResult, bool, error) {
	outcome := mapOutcome(rep)
	result := &CallbackResult{TxnID: rep.TxnID, Outcome: outcome}
	created := false

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		txn, err := tx.GatewayTransactions().GetByTxnID(ctx, rep.TxnID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.E(apperr.NotFound, "unknown transaction")
			}
			return apperr.Internalf("transaction lookup failed", err)
		}
		if txn.Outcome != models.GatewayInitiated {
			return errAlreadySettled
		}
		s.crossCheck(txn, rep)

		redeemed := false
		if outcome == models.GatewaySuccess {
			enr, isNew, err := s.activator.ActivateTx(ctx, tx, txn.StudentID, txn.Item(), enrollment.Source{
				Via:        models.ActivatedViaGateway,
				Ref:        txn.TxnID,
				AmountPaid: txn.Amount,
			})
			if err != nil {
				return err
			}
			result.Enrollment = enr
			result.AlreadyEnrolled = !isNew
			created = isNew

			if isNew && txn.PromoCode != nil {
				// The money has been taken, so an exhausted code does not
				// block access.
				if err := promo.Redeem(ctx, tx.PromoCodes(), *txn.PromoCode); err != nil {
					if !apperr.IsKind(err, apperr.UsageLimitReached) {
						return err
					}
					log.Warnf("[Gateway] Promo code %s over-redeemed by %s", *txn.PromoCode, txn.TxnID)
				} else {
					redeemed = true
				}
			}
		}

		ok, err := tx.GatewayTransactions().Settle(ctx, txn.TxnID, repository.GatewaySettlement{
			Outcome:           outcome,
			ReturnedSignature: rep.Hash,
			GatewayPaymentID:  rep.MihPayID,
			PromoRedeemed:     redeemed,
			SettledAt:         s.now(),
		})
		if err != nil {
			return apperr.Internalf("could not settle transaction", err)
		}
		if !ok {
			return errAlreadySettled
		}
		return nil
	})

	if errors.Is(err, errAlreadySettled) {
		dup, derr := s.duplicate(ctx, rep.TxnID)
		return dup, false, derr
	}
	if err != nil {
		return nil, false, err
	}

	log.Infof("[Gateway] Settled %s as %s", rep.TxnID, outcome)
	return result, created, nil
}

// duplicate reports the recorded state of an already settled transaction.
func (s *GatewayService) duplicate(ctx context.Context, txnID string) (*CallbackResult, error) {
	txn, err := s.store.GatewayTransactions().GetByTxnID(ctx, txnID)
	if err != nil {
		return nil, apperr.Internalf("transaction lookup failed", err)
	}
	result := &CallbackResult{TxnID: txnID, Outcome: txn.Outcome, Duplicate: true}
	if txn.Outcome == models.GatewaySuccess {
		enr, err := s.store.Enrollments().GetByStudentItem(ctx, txn.StudentID, txn.Item(), false)
		if err == nil {
			result.Enrollment = enr
		}
	}
	log.Infof("[Gateway] Duplicate callback for %s (recorded %s)", txnID, txn.Outcome)
	return result, nil
}

// crossCheck logs callbacks whose echoed values differ from local state.
// Local state always wins.
func (s *GatewayService) crossCheck(txn *models.GatewayTransaction, rep payu.Reply) {
	if claimed, err := payu.ParseAmount(rep.Amount); err != nil || claimed != txn.Amount {
		log.Warnf("[Gateway] Callback for %s claims amount %q, recorded %d; using recorded amount", txn.TxnID, rep.Amount, txn.Amount)
	}
	if rep.UDF[0] != txn.StudentID || rep.UDF[1] != string(txn.ItemType) || rep.UDF[2] != txn.ItemID {
		log.Warnf("[Gateway] Callback for %s echoes item %s:%s for %s, recorded %s for %s",
			txn.TxnID, rep.UDF[1], rep.UDF[2], rep.UDF[0], txn.Item(), txn.StudentID)
	}
}

func (s *GatewayService) recordEvent(ctx context.Context, rep payu.Reply, valid bool, remoteIP string) *models.GatewayCallbackEvent {
	payload, err := json.Marshal(rep.Fields())
	if err != nil {
		payload = []byte("{}")
	}
	ev := &models.GatewayCallbackEvent{
		TxnID:          rep.TxnID,
		Status:         rep.Status,
		ClaimedAmount:  rep.Amount,
		SignatureValid: valid,
		RemoteIP:       remoteIP,
		Payload:        payload,
	}
	if err := s.store.GatewayEvents().Create(ctx, ev); err != nil {
		log.Errorf("[Gateway] Failed to record callback event for %s: %v", rep.TxnID, err)
		return nil
	}
	return ev
}

func (s *GatewayService) markEvent(ctx context.Context, ev *models.GatewayCallbackEvent, processingError string) {
	if ev == nil {
		return
	}
	if err := s.store.GatewayEvents().MarkProcessed(ctx, ev.ID, processingError); err != nil {
		log.Errorf("[Gateway] Failed to mark callback event %d: %v", ev.ID, err)
	}
}

func mapOutcome(rep payu.Reply) models.GatewayOutcome {
	if strings.EqualFold(rep.Status, "success") {
		return models.GatewaySuccess
	}
	switch strings.ToLower(rep.UnmappedStatus) {
	case "usercancelled", "cancelled":
		return models.GatewayCancelled
	}
	return models.GatewayFailure
}

func newTxnID() string {
	return "TXN" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:20]
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}
