package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/segyhp/loan-tracker/internal/domain"
	customError "github.com/segyhp/loan-tracker/pkg/errors"
	"github.com/segyhp/loan-tracker/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// LoanService is the business layer the loan routes delegate to
type LoanService interface {
	ListLoans(ctx context.Context) ([]*domain.Loan, error)
	GetOverdueLoans(ctx context.Context) ([]*domain.Loan, error)
	GetLoan(ctx context.Context, id string) (*domain.Loan, error)
	CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, error)
	DeleteLoan(ctx context.Context, id string) error
	AddPayment(ctx context.Context, loanID string, request *domain.AddPaymentRequest) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, loanID, paymentID string, request *domain.UpdatePaymentRequest) (*domain.Payment, error)
	DeletePayment(ctx context.Context, loanID, paymentID string) error
	ReplaceInstallmentPlan(ctx context.Context, loanID string, request *domain.InstallmentPlanRequest) ([]*domain.Payment, error)
}

type LoanHandler struct {
	service   LoanService
	validator *validator.Validate
	logger    *zap.Logger
}

func NewLoanHandler(service LoanService, logger *zap.Logger) *LoanHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoanHandler{
		service:   service,
		validator: domain.NewValidator(),
		logger:    logger.Named("handler"),
	}
}

// Register mounts the loan routes on router
func (h *LoanHandler) Register(router *mux.Router) {
	router.HandleFunc("/loans", h.ListLoans).Methods(http.MethodGet)
	router.HandleFunc("/loans", h.CreateLoan).Methods(http.MethodPost)
	router.HandleFunc("/loans/overdue", h.GetOverdueLoans).Methods(http.MethodGet)
	router.HandleFunc("/loans/{id}", h.GetLoan).Methods(http.MethodGet)
	router.HandleFunc("/loans/{id}", h.DeleteLoan).Methods(http.MethodDelete)
	router.HandleFunc("/loans/{id}/payments", h.AddPayment).Methods(http.MethodPost)
	router.HandleFunc("/loans/{id}/payments/{paymentId}", h.UpdatePayment).Methods(http.MethodPut)
	router.HandleFunc("/loans/{id}/payments/{paymentId}", h.DeletePayment).Methods(http.MethodDelete)
	router.HandleFunc("/loans/{id}/installments", h.ReplaceInstallmentPlan).Methods(http.MethodPut)
}

func (h *LoanHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.ListLoans(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	response.Success(w, loans)
}

func (h *LoanHandler) GetOverdueLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.GetOverdueLoans(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	response.Success(w, loans)
}

func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.service.GetLoan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, err)
		return
	}
	response.Success(w, loan)
}

func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var request domain.CreateLoanRequest
	if !h.decode(w, r, &request) {
		return
	}

	loan, err := h.service.CreateLoan(r.Context(), &request)
	if err != nil {
		h.handleError(w, err)
		return
	}
	response.Created(w, loan)
}

func (h *LoanHandler) DeleteLoan(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteLoan(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.handleError(w, err)
		return
	}
	response.NoContent(w)
}

func (h *LoanHandler) AddPayment(w http.ResponseWriter, r *http.Request) {
	var request domain.AddPaymentRequest
	if !h.decode(w, r, &request) {
		return
	}

	payment, err := h.service.AddPayment(r.Context(), mux.Vars(r)["id"], &request)
	if err != nil {
		h.handleError(w, err)
		return
	}
	response.Created(w, payment)
}

func (h *LoanHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var request domain.UpdatePaymentRequest
	if !h.decode(w, r, &request) {
		return
	}

	vars := mux.Vars(r)
	payment, err := h.service.UpdatePayment(r.Context(), vars["id"], vars["paymentId"], &request)
	if err != nil {
		h.handleError(w, err)
		return
	}
	response.Success(w, payment)
}

func (h *LoanHandler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.service.DeletePayment(r.Context(), vars["id"], vars["paymentId"]); err != nil {
		h.handleError(w, err)
		return
	}
	response.NoContent(w)
}

func (h *LoanHandler) ReplaceInstallmentPlan(w http.ResponseWriter, r *http.Request) {
	var request domain.InstallmentPlanRequest
	if !h.decode(w, r, &request) {
		return
	}

	payments, err := h.service.ReplaceInstallmentPlan(r.Context(), mux.Vars(r)["id"], &request)
	if err != nil {
		h.handleError(w, err)
		return
	}
	response.Success(w, payments)
}

// decode reads and validates a JSON body, writing a 400 on failure
func (h *LoanHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, customError.ErrCodeInvalidRequest, "Invalid request body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		response.BadRequest(w, customError.ErrCodeInvalidRequest, err.Error())
		return false
	}
	return true
}

func (h *LoanHandler) handleError(w http.ResponseWriter, err error) {
	var be *customError.BusinessError
	if !errors.As(err, &be) {
		h.logger.Error("unexpected error", zap.Error(err))
		response.InternalServerError(w, customError.ErrCodeDatabaseError, "Internal server error")
		return
	}

	switch be.Code {
	case customError.ErrCodeLoanNotFound, customError.ErrCodePaymentNotFound:
		response.NotFound(w, be.Code, be.Message)
	case customError.ErrCodeInvalidLoanAmount, customError.ErrCodeInvalidPaymentAmount, customError.ErrCodeInvalidRequest:
		response.BadRequest(w, be.Code, be.Message)
	default:
		h.logger.Error("request failed", zap.String("code", be.Code), zap.Error(err))
		response.InternalServerError(w, be.Code, "Internal server error")
	}
}
