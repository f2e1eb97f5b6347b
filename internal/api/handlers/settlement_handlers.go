package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainerrors "github.com/p2ramp/settlement_service/internal/domain/errors"
	"github.com/p2ramp/settlement_service/internal/domain/services/ledger"
	"github.com/p2ramp/settlement_service/internal/domain/services/reconciliation"
	"github.com/p2ramp/settlement_service/internal/domain/services/withdrawal"
	"github.com/p2ramp/settlement_service/pkg/logger"
	"github.com/p2ramp/settlement_service/pkg/security"
)

// SettlementHandler exposes read access to settlement state and the
// merchant-facing withdrawal operations.
type SettlementHandler struct {
	transactions   TransactionStore
	ledger         *ledger.Service
	withdrawals    *withdrawal.Service
	reconciliation *reconciliation.Service
	logger         *logger.Logger
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(
	transactions TransactionStore,
	ledgerSvc *ledger.Service,
	withdrawalSvc *withdrawal.Service,
	reconciliationSvc *reconciliation.Service,
	logger *logger.Logger,
) *SettlementHandler {
	return &SettlementHandler{
		transactions:   transactions,
		ledger:         ledgerSvc,
		withdrawals:    withdrawalSvc,
		reconciliation: reconciliationSvc,
		logger:         logger,
	}
}

// GetTransaction retrieves a settlement by chain transaction hash
// GET /api/v1/transactions/:hash
func (h *SettlementHandler) GetTransaction(c *gin.Context) {
	tx, err := h.transactions.GetByTxHash(c.Request.Context(), c.Param("hash"))
	if err != nil {
		if domainerrors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
			return
		}
		h.logger.Error("Failed to get transaction", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	// bank details are masked on every read surface
	tx.AccountNumber = security.MaskAccountNumber(tx.AccountNumber)
	c.JSON(http.StatusOK, tx)
}

// GetMerchantBalance returns a merchant's ledger balance
// GET /api/v1/merchants/:id/balance
func (h *SettlementHandler) GetMerchantBalance(c *gin.Context) {
	merchantID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid merchant id"})
		return
	}

	balance, err := h.ledger.Balance(c.Request.Context(), merchantID)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "merchant not found"})
			return
		}
		h.logger.Error("Failed to get merchant balance", "merchant_id", merchantID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"merchantId": merchantID, "balance": balance})
}

// CreateWithdrawal initiates a merchant withdrawal
// POST /api/v1/withdrawals
func (h *SettlementHandler) CreateWithdrawal(c *gin.Context) {
	var req withdrawal.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	w, err := h.withdrawals.Withdraw(c.Request.Context(), &req)
	if err != nil {
		switch {
		case domainerrors.IsInsufficientBalance(err):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case domainerrors.IsNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Withdrawal failed", "merchant_id", req.MerchantID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "withdrawal failed", "withdrawal": w})
		}
		return
	}

	w.AccountNumber = security.MaskAccountNumber(w.AccountNumber)
	c.JSON(http.StatusCreated, w)
}

// GetWithdrawal retrieves a withdrawal by ID
// GET /api/v1/withdrawals/:id
func (h *SettlementHandler) GetWithdrawal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid withdrawal id"})
		return
	}

	w, err := h.withdrawals.Get(c.Request.Context(), id)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "withdrawal not found"})
			return
		}
		h.logger.Error("Failed to get withdrawal", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	w.AccountNumber = security.MaskAccountNumber(w.AccountNumber)
	c.JSON(http.StatusOK, w)
}

// ListMerchantWithdrawals lists a merchant's withdrawals
// GET /api/v1/merchants/:id/withdrawals
func (h *SettlementHandler) ListMerchantWithdrawals(c *gin.Context) {
	merchantID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid merchant id"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	withdrawals, err := h.withdrawals.ListByMerchant(c.Request.Context(), merchantID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list withdrawals", "merchant_id", merchantID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	for _, w := range withdrawals {
		w.AccountNumber = security.MaskAccountNumber(w.AccountNumber)
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": withdrawals, "count": len(withdrawals)})
}

// RunReconciliation builds a reconciliation report on demand
// POST /api/v1/reconciliation/run
func (h *SettlementHandler) RunReconciliation(c *gin.Context) {
	report, err := h.reconciliation.Run(c.Request.Context())
	if err != nil {
		h.logger.Error("Reconciliation run failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, report)
}
