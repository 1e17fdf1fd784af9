package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smartcontractkit/automation-prize-payout/pkg/oracle"
	"github.com/smartcontractkit/automation-prize-payout/pkg/payout"
	"github.com/smartcontractkit/automation-prize-payout/pkg/store"
	"github.com/smartcontractkit/automation-prize-payout/pkg/telemetry"
)

const DefaultMaxClockSkew = 5 * time.Minute

// Contract is the payout surface exposed over HTTP.
type Contract interface {
	Status() payout.Status
	IsDue(time.Time) (bool, error)
	CurrentPrice(context.Context) (oracle.PriceQuote, error)
	State(caller common.Address) (payout.PayoutState, error)
	SetAuthorizedTrigger(caller, trigger common.Address) error
	AuthorizedTrigger(caller common.Address) (common.Address, error)
	SetPrize(caller common.Address, prizeUSD *big.Int) error
	Prize(caller common.Address) (*big.Int, error)
	SetWinner(caller, winner common.Address) error
	Winner(caller common.Address) (common.Address, error)
	Fund(caller common.Address, amount *big.Int) error
	Withdraw(ctx context.Context, caller common.Address, amount *big.Int, payee common.Address) error
	Pause(caller common.Address) error
	Resume(caller common.Address) error
}

type Config struct {
	// MaxClockSkew bounds the age of signed admin requests.
	MaxClockSkew time.Duration
	// Nonces records used request nonces. Defaults to an in-memory store.
	Nonces NonceStore
	Now    func() time.Time
}

type handler struct {
	contract Contract
	maxSkew  time.Duration
	nonces   NonceStore
	now      func() time.Time
	log      *log.Logger

	pruneMu   sync.Mutex
	lastPrune time.Time
}

// NewHandler builds the HTTP router. Public reads live under /v1, owner
// operations under /v1/admin and require a signed request.
func NewHandler(contract Contract, conf Config, logger *log.Logger) http.Handler {
	if conf.MaxClockSkew <= 0 {
		conf.MaxClockSkew = DefaultMaxClockSkew
	}

	if conf.Now == nil {
		conf.Now = time.Now
	}

	if conf.Nonces == nil {
		conf.Nonces = store.NewMemory()
	}

	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	h := &handler{
		contract: contract,
		maxSkew:  conf.MaxClockSkew,
		nonces:   conf.Nonces,
		now:      conf.Now,
		log:      telemetry.WrapLogger(logger, "api"),
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Get("/price", h.price)
		r.Get("/due", h.due)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.authenticate)

			r.Get("/state", h.state)
			r.Get("/trigger", h.getTrigger)
			r.Put("/trigger", h.setTrigger)
			r.Get("/prize", h.getPrize)
			r.Put("/prize", h.setPrize)
			r.Get("/winner", h.getWinner)
			r.Put("/winner", h.setWinner)
			r.Post("/fund", h.fund)
			r.Post("/withdraw", h.withdraw)
			r.Post("/pause", h.pause)
			r.Post("/resume", h.resume)
		})
	})

	return r
}

type statusResponse struct {
	Paused          bool      `json:"paused"`
	Balance         string    `json:"balance"`
	LastTriggerTime time.Time `json:"lastTriggerTime"`
	NextTrigger     time.Time `json:"nextTrigger"`
	CheckInterval   string    `json:"checkInterval"`
	TriggerInterval string    `json:"triggerInterval"`
}

type priceResponse struct {
	Price     string    `json:"price"`
	PriceUSD  string    `json:"priceUsd"`
	Decimals  uint8     `json:"decimals"`
	UpdatedAt time.Time `json:"updatedAt"`
	Source    string    `json:"source"`
}

type stateResponse struct {
	Owner             common.Address `json:"owner"`
	AuthorizedTrigger common.Address `json:"authorizedTrigger"`
	Winner            common.Address `json:"winner"`
	PrizeUSD          string         `json:"prizeUsd"`
	LastTriggerTime   time.Time      `json:"lastTriggerTime"`
	Paused            bool           `json:"paused"`
	Balance           string         `json:"balance"`
}

type addressRequest struct {
	Address string `json:"address"`
}

type prizeRequest struct {
	PrizeUSD string `json:"prizeUsd"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type withdrawRequest struct {
	Amount string `json:"amount"`
	Payee  string `json:"payee"`
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	s := h.contract.Status()

	h.writeJSON(w, http.StatusOK, statusResponse{
		Paused:          s.Paused,
		Balance:         s.Balance.String(),
		LastTriggerTime: s.LastTriggerTime,
		NextTrigger:     s.NextTrigger,
		CheckInterval:   s.CheckInterval.String(),
		TriggerInterval: s.TriggerInterval.String(),
	})
}

func (h *handler) price(w http.ResponseWriter, r *http.Request) {
	quote, err := h.contract.CurrentPrice(r.Context())
	if err != nil {
		h.writeContractError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, priceResponse{
		Price:     quote.Price.String(),
		PriceUSD:  payout.FormatUSD(quote.Price),
		Decimals:  quote.Decimals,
		UpdatedAt: quote.UpdatedAt,
		Source:    quote.Source,
	})
}

func (h *handler) due(w http.ResponseWriter, _ *http.Request) {
	due, err := h.contract.IsDue(h.now())
	if err != nil {
		h.writeContractError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"due": due})
}

func (h *handler) state(w http.ResponseWriter, r *http.Request) {
	s, err := h.contract.State(callerFrom(r.Context()))
	if err != nil {
		h.writeContractError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, stateResponse{
		Owner:             s.Owner,
		AuthorizedTrigger: s.AuthorizedTrigger,
		Winner:            s.Winner,
		PrizeUSD:          payout.FormatUSD(s.PrizeUSD),
		LastTriggerTime:   s.LastTriggerTime,
		Paused:            s.Paused,
		Balance:           s.Balance.String(),
	})
}

func (h *handler) getTrigger(w http.ResponseWriter, r *http.Request) {
	addr, err := h.contract.AuthorizedTrigger(callerFrom(r.Context()))
	h.respondAddress(w, addr, err)
}

func (h *handler) setTrigger(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.decodeAddress(w, r)
	if !ok {
		return
	}

	h.respondEmpty(w, h.contract.SetAuthorizedTrigger(callerFrom(r.Context()), addr))
}

func (h *handler) getWinner(w http.ResponseWriter, r *http.Request) {
	addr, err := h.contract.Winner(callerFrom(r.Context()))
	h.respondAddress(w, addr, err)
}

func (h *handler) setWinner(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.decodeAddress(w, r)
	if !ok {
		return
	}

	h.respondEmpty(w, h.contract.SetWinner(callerFrom(r.Context()), addr))
}

func (h *handler) getPrize(w http.ResponseWriter, r *http.Request) {
	prize, err := h.contract.Prize(callerFrom(r.Context()))
	if err != nil {
		h.writeContractError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, prizeRequest{PrizeUSD: payout.FormatUSD(prize)})
}

func (h *handler) setPrize(w http.ResponseWriter, r *http.Request) {
	var req prizeRequest
	if !h.decode(w, r, &req) {
		return
	}

	prize, err := payout.ParseUSD(req.PrizeUSD)
	if err != nil {
		h.writeContractError(w, err)
		return
	}

	h.respondEmpty(w, h.contract.SetPrize(callerFrom(r.Context()), prize))
}

func (h *handler) fund(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.writeContractError(w, err)
		return
	}

	h.respondEmpty(w, h.contract.Fund(callerFrom(r.Context()), amount))
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.writeContractError(w, err)
		return
	}

	payee, err := parseAddress(req.Payee)
	if err != nil {
		h.writeContractError(w, err)
		return
	}

	h.respondEmpty(w, h.contract.Withdraw(r.Context(), callerFrom(r.Context()), amount, payee))
}

func (h *handler) pause(w http.ResponseWriter, r *http.Request) {
	h.respondEmpty(w, h.contract.Pause(callerFrom(r.Context())))
}

func (h *handler) resume(w http.ResponseWriter, r *http.Request) {
	h.respondEmpty(w, h.contract.Resume(callerFrom(r.Context())))
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return false
	}
	return true
}

func (h *handler) decodeAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	var req addressRequest
	if !h.decode(w, r, &req) {
		return common.Address{}, false
	}

	addr, err := parseAddress(req.Address)
	if err != nil {
		h.writeContractError(w, err)
		return common.Address{}, false
	}

	return addr, true
}

func (h *handler) respondAddress(w http.ResponseWriter, addr common.Address, err error) {
	if err != nil {
		h.writeContractError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, addressRequest{Address: addr.Hex()})
}

func (h *handler) respondEmpty(w http.ResponseWriter, err error) {
	if err != nil {
		h.writeContractError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %q is not an address", payout.ErrInvalidArgument, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an integer amount", payout.ErrInvalidArgument, raw)
	}
	return v, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, payout.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, payout.ErrPaused):
		return http.StatusConflict
	case errors.Is(err, payout.ErrNoFunds):
		return http.StatusPreconditionFailed
	case errors.Is(err, payout.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, payout.ErrTransferFailed),
		errors.Is(err, oracle.ErrInvalidQuote),
		errors.Is(err, oracle.ErrStaleQuote),
		errors.Is(err, oracle.ErrFeedUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeContractError(w http.ResponseWriter, err error) {
	h.writeError(w, statusFor(err), err)
}

func (h *handler) writeError(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		h.log.Printf("request failed: %s", err)
	}

	h.writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Printf("failed to write response: %s", err)
	}
}
