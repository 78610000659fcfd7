package pos

import (
	"encoding/json"
	"errors"
	"net/http"

	"kitchen-sync/internal/common/logger"
	"kitchen-sync/internal/domain"
	"kitchen-sync/internal/engine"
)

// NewHandler exposes the engine to its collaborators: cart edits and
// send-to-kitchen for the order UI, cancellations, ticket reads and
// transitions for the kitchen display, completion for payment.
func NewHandler(eng *engine.Engine, lg *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		var req domain.CreateOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		o, err := eng.CreateOrder(r.Context(), req.TableID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, domain.CreateOrderResponse{OrderID: o.ID, Status: o.Status})
	})

	mux.HandleFunc("GET /orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		o, err := eng.Order(r.PathValue("id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	})

	mux.HandleFunc("GET /orders/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		events, err := eng.OrderEvents(r.PathValue("id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events})
	})

	mux.HandleFunc("POST /orders/{id}/table", func(w http.ResponseWriter, r *http.Request) {
		var req domain.AssignTableRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TableID == "" {
			http.Error(w, "table_id required", http.StatusBadRequest)
			return
		}
		if err := eng.AssignOrderToTable(r.Context(), req.TableID, r.PathValue("id")); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /orders/{id}/items", func(w http.ResponseWriter, r *http.Request) {
		var req domain.AddItemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		line, err := eng.AddItem(r.Context(), r.PathValue("id"), req)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, line)
	})

	mux.HandleFunc("POST /orders/{id}/items/quantity", func(w http.ResponseWriter, r *http.Request) {
		var req domain.SetQuantityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := eng.SetItemQuantity(r.Context(), r.PathValue("id"), req.LineItemID, req.Quantity); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /orders/{id}/items/note", func(w http.ResponseWriter, r *http.Request) {
		var req domain.SetNoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := eng.SetItemNote(r.Context(), r.PathValue("id"), req.LineItemID, req.Note); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /orders/{id}/send", func(w http.ResponseWriter, r *http.Request) {
		t, err := eng.SendToKitchen(r.Context(), r.PathValue("id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		if t == nil {
			lg.Debug("nothing_to_send", map[string]any{"order_id": r.PathValue("id")})
			writeJSON(w, http.StatusOK, map[string]any{"ticket": nil})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"ticket": t})
	})

	mux.HandleFunc("POST /orders/{id}/cancellations", func(w http.ResponseWriter, r *http.Request) {
		var req domain.CancelItemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		err := eng.CancelItem(r.Context(), engine.CancelRequest{
			OrderID:    r.PathValue("id"),
			LineItemID: req.LineItemID,
			Quantity:   req.Quantity,
			Reason:     req.Reason,
			Action:     engine.CancelAction(req.Action),
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /orders/{id}/complete", func(w http.ResponseWriter, r *http.Request) {
		var req domain.CompleteOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		err := eng.MarkOrderCompleted(r.Context(), r.PathValue("id"), domain.Payment{
			Method: req.Method, Amount: req.Amount,
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /kitchen/tickets", func(w http.ResponseWriter, r *http.Request) {
		status := domain.TicketStatus(r.URL.Query().Get("status"))
		writeJSON(w, http.StatusOK, map[string]any{"tickets": eng.TicketsByStatus(status)})
	})

	mux.HandleFunc("POST /kitchen/tickets/{id}/transition", func(w http.ResponseWriter, r *http.Request) {
		var req domain.TransitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := eng.RequestTransition(r.Context(), r.PathValue("id"), req.Target); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrOrderNotFound),
		errors.Is(err, engine.ErrLineNotFound),
		errors.Is(err, engine.ErrTicketNotFound):
		code = http.StatusNotFound
	case errors.Is(err, engine.ErrQuantityExceedsAvailable),
		errors.Is(err, engine.ErrReasonRequired):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, engine.ErrOrderCompleted):
		code = http.StatusConflict
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
