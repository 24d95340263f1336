package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/wager-wallet/internal/wallet-service/dto"
	"github.com/radieske/wager-wallet/internal/wallet-service/engine"
	"github.com/radieske/wager-wallet/internal/wallet-service/ledger"
	"github.com/radieske/wager-wallet/internal/wallet-service/money"
)

// Wallet define as operações do engine usadas pelo handler HTTP
type Wallet interface {
	CreateAccount(ctx context.Context) (ledger.Account, error)
	Deposit(ctx context.Context, accountID, amount string) (engine.DepositResult, error)
	PlaceBet(ctx context.Context, accountID, wager string) (engine.BetResult, error)
	GetBalance(ctx context.Context, accountID string) (money.Money, error)
	RecentTransactions(ctx context.Context, accountID string, limit int) ([]ledger.Record, error)
}

// Server expõe endpoints HTTP da carteira
type Server struct {
	log    *zap.Logger
	wallet Wallet
	ws     http.Handler
}

// NewServer instancia o servidor HTTP; ws pode ser nil (feed desativado)
func NewServer(log *zap.Logger, w Wallet, ws http.Handler) *Server {
	return &Server{log: log, wallet: w, ws: ws}
}

// Router retorna o roteador com as rotas da API de wallet
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Post("/accounts", s.createAccount)
	r.Route("/accounts/{id}", func(r chi.Router) {
		r.Get("/balance", s.getBalance)
		r.Get("/transactions", s.listTransactions) // ?limit=
		r.Post("/deposit", s.deposit)
		r.Post("/bets", s.placeBet)
	})
	if s.ws != nil {
		r.Get("/ws", s.ws.ServeHTTP)
	}
	return r
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.wallet.CreateAccount(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.NewAccountResponse(acc))
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bal, err := s.wallet.GetBalance(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{AccountID: id, Balance: bal})
}

// listTransactions retorna os lançamentos mais recentes primeiro
func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	recs, err := s.wallet.RecentTransactions(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewTransactionsResponse(id, recs))
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return
	}
	res, err := s.wallet.Deposit(r.Context(), chi.URLParam(r, "id"), string(req.Amount))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return
	}
	res, err := s.wallet.PlaceBet(r.Context(), chi.URLParam(r, "id"), string(req.Wager))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeError mapeia a taxonomia do engine para status HTTP.
// Detalhes de falha de store não vazam para o cliente.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ib *engine.InsufficientBalanceError
	switch {
	case errors.As(err, &ib):
		writeJSON(w, http.StatusUnprocessableEntity, dto.ErrorResponse{
			Error:     engine.ErrInsufficientBalance.Error(),
			Required:  &ib.Required,
			Available: &ib.Available,
		})
	case errors.Is(err, engine.ErrInvalidAmount):
		writeJSON(w, http.StatusUnprocessableEntity, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ledger.ErrNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "account not found"})
	default:
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
	}
}

// accessLog registra método, rota, status e duração de cada request
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
