// Package host translates the POS host's transaction messages into
// orchestrator runs and maps terminal results back into the response format
// the host expects. The host contract itself (field names, ACCEPTED/FAILED
// envelope) is fixed and external; this package only adapts it.
package host

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/qr-payment-adapter/internal/monitor"
	"github.com/yourorg/qr-payment-adapter/internal/orchestrator"
)

// Transaction results the host understands.
const (
	ResultAccepted = "ACCEPTED"
	ResultFailed   = "FAILED"
)

// TransactionTypeRefund is handled as a manual confirmation flow without any
// gateway traffic.
const TransactionTypeRefund = "REFUND"

// Behavior is the static capability declaration returned to the host.
type Behavior struct {
	SupportsCredit        bool `json:"SupportsCredit"`
	SupportsDebit         bool `json:"SupportsDebit"`
	SupportsPartialRefund bool `json:"SupportsPartialRefund"`
	SupportsTipAdjustment bool `json:"SupportsTipAdjustment"`
	SupportsVoid          bool `json:"SupportsTransactionVoid"`
	SupportsQuery         bool `json:"SupportsTransactionQuery"`
	CanPrint              bool `json:"CanPrint"`
}

// DefaultBehavior returns the fixed policy constants for this integration.
func DefaultBehavior() Behavior {
	return Behavior{SupportsCredit: true}
}

// TransactionRequest is the host's transaction message. Amount is a decimal
// string of minor units (cents), as the host sends it.
type TransactionRequest struct {
	TransactionType string `json:"TransactionType"`
	Amount          string `json:"Amount"`
	CurrencyISO     string `json:"CurrencyISO"`
	TransactionID   int    `json:"TransactionId"`
	LanguageISO     string `json:"LanguageISO,omitempty"`
	ShopData        string `json:"ShopData,omitempty"`
	SellerData      string `json:"SellerData,omitempty"`
	DocumentData    string `json:"DocumentData,omitempty"`
	TaxDetail       string `json:"TaxDetail,omitempty"`

	// Refund affirmation, supplied by the presentation layer.
	RefundConfirmed bool   `json:"RefundConfirmed,omitempty"`
	RefundDetail    string `json:"RefundDetail,omitempty"`
}

// TransactionResponse is the host's transaction result message.
type TransactionResponse struct {
	TransactionResult string `json:"TransactionResult"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	AuthorizationID   string `json:"AuthorizationId,omitempty"`
	TransactionData   string `json:"TransactionData,omitempty"`
	CardHolder        string `json:"CardHolder,omitempty"`
	CardType          string `json:"CardType,omitempty"`
	CardNum           string `json:"CardNum,omitempty"`
	ErrorMessage      string `json:"ErrorMessage,omitempty"`
	ErrorMessageTitle string `json:"ErrorMessageTitle,omitempty"`
}

// Runner abstracts the orchestrator for testing.
type Runner interface {
	Run(ctx context.Context, req orchestrator.RunRequest) orchestrator.RunResult
}

// RefundConfirmer decides whether a manual refund proceeds. Implementations
// gather an explicit affirmation and a mandatory free-text justification from
// whoever operates the terminal.
type RefundConfirmer interface {
	Confirm(ctx context.Context, req TransactionRequest) (detail string, ok bool, err error)
}

// RequestConfirmer reads the affirmation carried on the request itself, for
// deployments where the presentation layer confirms before submitting.
type RequestConfirmer struct{}

func (RequestConfirmer) Confirm(_ context.Context, req TransactionRequest) (string, bool, error) {
	detail := strings.TrimSpace(req.RefundDetail)
	if !req.RefundConfirmed || detail == "" {
		return "", false, nil
	}
	return detail, true, nil
}

// Adapter is the host-facing surface.
type Adapter struct {
	runner   Runner
	refunds  RefundConfirmer
	contract *monitor.ContractMonitor
	now      func() time.Time
}

// New creates an Adapter. The contract monitor may be nil to skip schema
// validation (tests).
func New(runner Runner, refunds RefundConfirmer, contract *monitor.ContractMonitor) *Adapter {
	if runner == nil {
		panic("runner cannot be nil")
	}
	if refunds == nil {
		refunds = RequestConfirmer{}
	}
	return &Adapter{
		runner:   runner,
		refunds:  refunds,
		contract: contract,
		now:      time.Now,
	}
}

// Initialize validates the one-time setup payload from the host.
func (a *Adapter) Initialize(parameters string) error {
	if strings.TrimSpace(parameters) == "" {
		return fmt.Errorf("parameters payload is empty")
	}
	return nil
}

// Behavior returns the static capability flags.
func (a *Adapter) Behavior() Behavior {
	return DefaultBehavior()
}

// ValidateRequest checks a raw transaction payload against the host contract
// schema. A nil contract monitor accepts everything.
func (a *Adapter) ValidateRequest(body []byte) error {
	if a.contract == nil {
		return nil
	}
	ok, errs, err := a.contract.Validate(body)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s", monitor.FormatErrors(errs))
	}
	return nil
}

// SubmitTransaction processes one host transaction and always produces a
// response; it never returns an error to the host transport.
func (a *Adapter) SubmitTransaction(ctx context.Context, req TransactionRequest) TransactionResponse {
	if strings.TrimSpace(req.TransactionType) == "" || strings.TrimSpace(req.Amount) == "" {
		return a.failure(req, "Parámetros incompletos", "Error Datos")
	}

	if strings.EqualFold(req.TransactionType, TransactionTypeRefund) {
		return a.manualRefund(ctx, req)
	}

	if strings.TrimSpace(req.CurrencyISO) == "" || req.TransactionID == 0 {
		return a.failure(req, "Parámetros incompletos para la venta.", "Error Datos Venta")
	}
	amountMinor, err := strconv.ParseInt(req.Amount, 10, 64)
	if err != nil || amountMinor <= 0 {
		return a.failure(req, "El monto de la venta es inválido.", "Error Datos Venta")
	}

	res := a.runner.Run(ctx, orchestrator.RunRequest{
		TransactionType: req.TransactionType,
		AmountMinor:     amountMinor,
		Currency:        req.CurrencyISO,
		OrderID:         strconv.Itoa(req.TransactionID),
	})
	if !res.Success {
		log.Printf("host: transaction %d failed: outcome=%s detail=%s", req.TransactionID, res.Outcome, res.ErrorMessage)
		msg, title := failureMessage(res)
		return a.failure(req, msg, title)
	}

	return TransactionResponse{
		TransactionResult: ResultAccepted,
		TransactionType:   req.TransactionType,
		Amount:            req.Amount,
		AuthorizationID:   fmt.Sprintf("YAPPY_AUTH_%05d", a.now().UnixMilli()%100000),
		CardHolder:        "CLIENTE YAPPY",
		CardType:          "VISA",
		CardNum:           "**** **** **** 1234",
	}
}

// manualRefund runs the confirmation flow: explicit affirmation plus a
// mandatory justification, no gateway traffic.
func (a *Adapter) manualRefund(ctx context.Context, req TransactionRequest) TransactionResponse {
	detail, ok, err := a.refunds.Confirm(ctx, req)
	if err != nil {
		log.Printf("host: refund confirmation failed: %v", err)
		return a.failure(req, "No se pudo confirmar la devolución.", "Devolución Cancelada")
	}
	if !ok {
		return a.failure(req, "Devolución no procesada por el usuario.", "Devolución Cancelada")
	}

	if len(detail) > 200 {
		detail = detail[:200]
	}
	return TransactionResponse{
		TransactionResult: ResultAccepted,
		TransactionType:   TransactionTypeRefund,
		Amount:            req.Amount,
		AuthorizationID:   fmt.Sprintf("MANUAL_REFUND_%d", a.now().UnixMilli()),
		TransactionData:   "Devolucion Manual: " + detail,
		CardHolder:        "DEVOLUCIÓN MANUAL",
		CardType:          "MANUAL",
		CardNum:           "N/A",
	}
}

func (a *Adapter) failure(req TransactionRequest, message, title string) TransactionResponse {
	transactionType := req.TransactionType
	if transactionType == "" {
		transactionType = "UNKNOWN"
	}
	amount := req.Amount
	if amount == "" {
		amount = "0"
	}
	return TransactionResponse{
		TransactionResult: ResultFailed,
		TransactionType:   transactionType,
		Amount:            amount,
		ErrorMessage:      message,
		ErrorMessageTitle: title,
	}
}

// failureMessage maps a run outcome onto the categorized user-facing message.
// Raw diagnostics stay in the logs, never in the host response.
func failureMessage(res orchestrator.RunResult) (message, title string) {
	switch res.Outcome {
	case orchestrator.OutcomeTimeout:
		return "Tiempo de espera agotado para el pago con QR.", "Pago no completado"
	case orchestrator.OutcomeCanceled:
		return "Pago cancelado por el usuario.", "Pago cancelado"
	default:
		return "El pago no pudo completarse.", "Pago fallido"
	}
}
