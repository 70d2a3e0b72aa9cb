package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rbrcloud/apex-order-srvc/internal/app"
	"github.com/rbrcloud/apex-order-srvc/internal/domain"
)

const idempotencyHeader = "Idempotency-Key"

// OrderSubmitter is the minimal interface needed to submit an order.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, in app.SubmitOrderInput) (app.SubmitOrderResult, error)
}

// HandleSubmitOrder returns an HTTP handler for order submission.
func HandleSubmitOrder(svc OrderSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req submitOrderRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		res, err := svc.SubmitOrder(r.Context(), app.SubmitOrderInput{
			Ticker:         req.Ticker,
			Quantity:       req.Quantity,
			Price:          req.Price,
			Side:           req.Side,
			UserID:         req.UserID,
			IdempotencyKey: r.Header.Get(idempotencyHeader),
		})
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrTickerRequired):
				writeError(w, http.StatusBadRequest, codeTickerRequired, err.Error())
			case errors.Is(err, domain.ErrInvalidQuantity):
				writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
			case errors.Is(err, domain.ErrInvalidPrice):
				writeError(w, http.StatusBadRequest, codeInvalidPrice, err.Error())
			case errors.Is(err, domain.ErrInvalidSide):
				writeError(w, http.StatusBadRequest, codeInvalidSide, err.Error())
			case errors.Is(err, domain.ErrInvalidUserID):
				writeError(w, http.StatusBadRequest, codeInvalidUserID, err.Error())
			case errors.Is(err, domain.ErrIdempotencyConflict):
				writeError(w, http.StatusConflict, codeIdempotencyConflict, err.Error())
			case errors.Is(err, domain.ErrAnnouncementFailed):
				// The order row exists; the caller can tell this apart
				// from a storage failure by the code.
				writeError(w, http.StatusInternalServerError, codeAnnouncementFailed, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		resp := submitOrderResponse{
			ID:        res.Order.ID,
			Status:    string(res.Order.Status),
			CreatedAt: res.Order.CreatedAt,
		}

		w.Header().Set("Content-Type", "application/json")
		if res.Created {
			w.WriteHeader(http.StatusAccepted)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// Price accepts either a JSON number or a decimal string; any
// client-supplied id or timestamp is rejected as an unknown field.
type submitOrderRequest struct {
	Ticker   string          `json:"ticker"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Side     string          `json:"side"`
	UserID   int64           `json:"userId"`
}

type submitOrderResponse struct {
	ID        int64     `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
