package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/iho/goexchange/internal/adapter/http/dto"
	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
)

// MatchingService defines the order operations needed by OrderHandler.
type MatchingService interface {
	SubmitOrder(ctx context.Context, input usecase.SubmitOrderInput) (*usecase.SubmitOrderResult, error)
	CancelOrder(ctx context.Context, userID, orderID string) (*domain.Order, error)
	GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, input usecase.ListOrdersInput) ([]*domain.Order, error)
	ListSettlements(ctx context.Context, userID, orderID string) ([]*domain.Settlement, error)
	OrderBook(ctx context.Context, asset string, levels int) (*usecase.OrderBook, error)
}

// OrderHandler handles order submission, cancellation and book queries.
type OrderHandler struct {
	matchingUC MatchingService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(matchingUC MatchingService) *OrderHandler {
	return &OrderHandler{matchingUC: matchingUC}
}

// Submit places a limit order for the caller and runs one matching pass.
func (h *OrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.SubmitOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(userID)
	if err != nil {
		writeDomainError(w, r, "invalid order", err)
		return
	}

	result, err := h.matchingUC.SubmitOrder(r.Context(), input)
	if err != nil && (result == nil || result.Order == nil) {
		writeDomainError(w, r, "failed to submit order", err)
		return
	}

	resp := dto.SubmitOrderFromResult(result)
	if err != nil {
		// The order is accepted; only the matching pass stopped early.
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("order_id", result.Order.ID).Msg("matching stopped early")
		resp.MatchError = err.Error()
		if mapDomainError(err) == http.StatusInternalServerError {
			resp.MatchError = "internal error"
		}
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Cancel cancels one of the caller's live orders.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	order, err := h.matchingUC.CancelOrder(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "failed to cancel order", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.OrderFromDomain(order))
}

// Get returns one of the caller's orders.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	order, err := h.matchingUC.GetOrder(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "failed to get order", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.OrderFromDomain(order))
}

// List lists the caller's orders, newest first.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	orders, err := h.matchingUC.ListOrders(r.Context(), usecase.ListOrdersInput{
		UserID: userID,
		Limit:  parseIntQuery(r, "limit", 20),
		Offset: parseIntQuery(r, "offset", 0),
	})
	if err != nil {
		writeDomainError(w, r, "failed to list orders", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.OrdersFromDomain(orders))
}

// Settlements lists the fills of one of the caller's orders.
func (h *OrderHandler) Settlements(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	settlements, err := h.matchingUC.ListSettlements(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "failed to list settlements", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SettlementsFromDomain(settlements))
}

// Book returns the aggregated depth of an asset's book.
func (h *OrderHandler) Book(w http.ResponseWriter, r *http.Request) {
	book, err := h.matchingUC.OrderBook(r.Context(), chi.URLParam(r, "asset"), parseIntQuery(r, "levels", 20))
	if err != nil {
		writeDomainError(w, r, "failed to get order book", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.OrderBookFromUseCase(book))
}
