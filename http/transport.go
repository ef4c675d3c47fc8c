// Package http exposes the exchange engine and the ledger over a JSON API.
package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	pythusd "github.com/chewyuenrachael/pythUsdToken"
	"github.com/chewyuenrachael/pythUsdToken/exchange"
	"github.com/chewyuenrachael/pythUsdToken/ledger"
	"github.com/go-kit/log"
	"github.com/holiman/uint256"
)

// Server dependencies for HTTP Server functions
type Server struct {
	Service exchange.Service
	Ledger  ledger.Ledger

	router  *http.ServeMux
	handler http.Handler
}

func NewServer(s exchange.Service, l ledger.Ledger, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	server := &Server{
		Service: s,
		Ledger:  l,
		router:  http.NewServeMux(),
	}
	server.routes()
	server.handler = WithRequestID(WithLogging(logger, server.router))
	return server
}

func (s *Server) routes() {
	s.router.Handle("/healthz", s.health())
	s.router.Handle("/api/price", s.price())
	s.router.Handle("/api/info", s.info())
	s.router.Handle("/api/mint", s.mint())
	s.router.Handle("/api/burn", s.burn())
	s.router.Handle("/api/transfer", s.transfer())
	s.router.Handle("/api/balance", s.balance())
}

func (s *Server) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(rw, r)
}

// receiptResponse is the JSON shape of a committed mint or burn.
type receiptResponse struct {
	ID      string    `json:"id"`
	Op      string    `json:"op"`
	Account string    `json:"account"`
	Value   string    `json:"value"`
	Tokens  string    `json:"tokens"`
	Price   string    `json:"price"`
	At      time.Time `json:"at"`
}

func newReceiptResponse(rcpt pythusd.Receipt) receiptResponse {
	return receiptResponse{
		ID:      rcpt.ID.String(),
		Op:      string(rcpt.Op),
		Account: string(rcpt.Account),
		Value:   rcpt.Value.Dec(),
		Tokens:  rcpt.Tokens.Dec(),
		Price:   rcpt.Price.Dec(),
		At:      rcpt.At,
	}
}

// health reports liveness.
func (s *Server) health() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// price produces an HTTP handler serving the current oracle price.
func (s *Server) price() http.HandlerFunc {

	// response for marshalling JSON responses to return to clients
	type response struct {
		Price   string `json:"price"`   // 8-decimal fixed point, base units
		Display string `json:"display"` // human-readable USD value
	}

	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(rw, http.StatusMethodNotAllowed, "method not allowed", "")
			return
		}

		price, err := s.Service.FetchPrice(r.Context())
		if err != nil {
			writeServiceError(rw, err)
			return
		}

		writeJSON(rw, http.StatusOK, response{
			Price:   price.Dec(),
			Display: pythusd.FormatAmount(price, pythusd.PriceDecimals),
		})
	}
}

// info produces an HTTP handler serving the system snapshot.
func (s *Server) info() http.HandlerFunc {

	type tokenResponse struct {
		Name     string `json:"name"`
		Symbol   string `json:"symbol"`
		Decimals uint8  `json:"decimals"`
	}

	type response struct {
		Token       tokenResponse `json:"token"`
		Rate        string        `json:"rate"`
		Reserve     string        `json:"reserve"`
		TotalSupply string        `json:"totalSupply"`
	}

	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(rw, http.StatusMethodNotAllowed, "method not allowed", "")
			return
		}

		info, err := s.Service.Info(r.Context())
		if err != nil {
			writeServiceError(rw, err)
			return
		}

		writeJSON(rw, http.StatusOK, response{
			Token: tokenResponse{
				Name:     info.Token.Name,
				Symbol:   info.Token.Symbol,
				Decimals: info.Token.Decimals,
			},
			Rate:        info.Rate.Dec(),
			Reserve:     info.Reserve.Dec(),
			TotalSupply: info.TotalSupply.Dec(),
		})
	}
}

// mint produces an HTTP handler for token purchases.
func (s *Server) mint() http.HandlerFunc {

	// request for unmarshalling JSON requests posted by clients
	type request struct {
		Account   string `json:"account"`
		Value     string `json:"value"`     // native base units
		MinTokens string `json:"minTokens"` // token base units
	}

	return func(rw http.ResponseWriter, r *http.Request) {
		var req request
		if !s.readJSON(rw, r, &req) {
			return
		}
		account, ok := parseAccount(rw, req.Account)
		if !ok {
			return
		}
		value, ok := parseAmountField(rw, "value", req.Value)
		if !ok {
			return
		}
		minTokens, ok := parseAmountField(rw, "minTokens", req.MinTokens)
		if !ok {
			return
		}

		rcpt, err := s.Service.Mint(r.Context(), account, value, minTokens)
		if err != nil {
			writeServiceError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, newReceiptResponse(rcpt))
	}
}

// burn produces an HTTP handler for token redemptions.
func (s *Server) burn() http.HandlerFunc {

	type request struct {
		Account string `json:"account"`
		Amount  string `json:"amount"` // token base units
	}

	return func(rw http.ResponseWriter, r *http.Request) {
		var req request
		if !s.readJSON(rw, r, &req) {
			return
		}
		account, ok := parseAccount(rw, req.Account)
		if !ok {
			return
		}
		amount, ok := parseAmountField(rw, "amount", req.Amount)
		if !ok {
			return
		}

		rcpt, err := s.Service.Burn(r.Context(), account, amount)
		if err != nil {
			writeServiceError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, newReceiptResponse(rcpt))
	}
}

// transfer produces an HTTP handler for holder-to-holder transfers.
func (s *Server) transfer() http.HandlerFunc {

	type request struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Amount string `json:"amount"` // token base units
	}

	type response struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Amount string `json:"amount"`
	}

	return func(rw http.ResponseWriter, r *http.Request) {
		var req request
		if !s.readJSON(rw, r, &req) {
			return
		}
		from, ok := parseAccount(rw, req.From)
		if !ok {
			return
		}
		to, ok := parseAccount(rw, req.To)
		if !ok {
			return
		}
		amount, ok := parseAmountField(rw, "amount", req.Amount)
		if !ok {
			return
		}

		if err := s.Ledger.Transfer(r.Context(), from, to, amount); err != nil {
			writeServiceError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, response{
			From:   string(from),
			To:     string(to),
			Amount: amount.Dec(),
		})
	}
}

// balance produces an HTTP handler serving a holder's balance.
func (s *Server) balance() http.HandlerFunc {

	type response struct {
		Account string `json:"account"`
		Balance string `json:"balance"` // token base units
		Display string `json:"display"` // whole tokens
	}

	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(rw, http.StatusMethodNotAllowed, "method not allowed", "")
			return
		}
		account, ok := parseAccount(rw, r.URL.Query().Get("account"))
		if !ok {
			return
		}

		balance, err := s.Ledger.BalanceOf(r.Context(), account)
		if err != nil {
			writeServiceError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, response{
			Account: string(account),
			Balance: balance.Dec(),
			Display: pythusd.FormatAmount(balance, s.Ledger.Token().Decimals),
		})
	}
}

// readJSON decodes a POST body, replying with an error envelope on failure.
func (s *Server) readJSON(rw http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	if r.Method != http.MethodPost {
		writeError(rw, http.StatusMethodNotAllowed, "method not allowed", "")
		return false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(rw, http.StatusBadRequest, "invalid request", "")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(rw, http.StatusBadRequest, "invalid json", err.Error())
		return false
	}
	return true
}

func parseAccount(rw http.ResponseWriter, raw string) (pythusd.Address, bool) {
	if raw == "" {
		writeError(rw, http.StatusBadRequest, "account is required", "")
		return "", false
	}
	return pythusd.Address(raw), true
}

// parseAmountField parses a base-unit decimal string; empty means zero so
// optional fields like minTokens can be omitted.
func parseAmountField(rw http.ResponseWriter, name, raw string) (*uint256.Int, bool) {
	if raw == "" {
		return uint256.NewInt(0), true
	}
	parsed, err := pythusd.ParseBaseAmount(raw)
	if err != nil {
		writeError(rw, http.StatusBadRequest, "invalid "+name, err.Error())
		return nil, false
	}
	return parsed, true
}

// writeServiceError maps engine and ledger failures onto HTTP statuses: gate
// refusals are conflicts, oracle trouble is a bad gateway.
func writeServiceError(rw http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pythusd.ErrSlippageExceeded):
		writeError(rw, http.StatusConflict, "slippage exceeded", err.Error())
	case errors.Is(err, pythusd.ErrInsufficientBalance):
		writeError(rw, http.StatusConflict, "insufficient balance", err.Error())
	case errors.Is(err, pythusd.ErrInsufficientReserve):
		writeError(rw, http.StatusConflict, "insufficient reserve", err.Error())
	case errors.Is(err, pythusd.ErrAmountOverflow):
		writeError(rw, http.StatusUnprocessableEntity, "amount overflow", err.Error())
	case errors.Is(err, pythusd.ErrInvalidPrice), errors.Is(err, exchange.ErrOracleUnavailable):
		writeError(rw, http.StatusBadGateway, "price unavailable", err.Error())
	default:
		writeError(rw, http.StatusInternalServerError, "operation failed", err.Error())
	}
}
