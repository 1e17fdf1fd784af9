package api

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	SignatureHeader = "X-Payout-Signature"
	TimestampHeader = "X-Payout-Timestamp"
	NonceHeader     = "X-Payout-Nonce"

	maxBodyBytes = 1 << 16
	maxNonceLen  = 128
)

var (
	ErrMissingSignature = fmt.Errorf("missing request signature")
	ErrBadSignature     = fmt.Errorf("invalid request signature")
	ErrClockSkew        = fmt.Errorf("request timestamp outside allowed skew")
	ErrReplayedRequest  = fmt.Errorf("request nonce already used")
)

// NonceStore remembers which nonces each signer has used. UseNonce reports
// true when the nonce was already recorded.
type NonceStore interface {
	UseNonce(signer common.Address, nonce string, at time.Time) (bool, error)
	PruneNonces(cutoff time.Time) error
}

type callerKey struct{}

// signingHash is the personal-sign hash of a request: method, path, unix
// timestamp and nonce on separate lines followed by the raw body.
func signingHash(method, path string, timestamp int64, nonce string, body []byte) []byte {
	msg := []byte(fmt.Sprintf("%s\n%s\n%d\n%s\n", method, path, timestamp, nonce))
	return accounts.TextHash(append(msg, body...))
}

// SignRequest sets the authentication headers on req for key. The body must
// be the exact bytes that will be sent and nonce must not be reused by the
// same key.
func SignRequest(req *http.Request, key *ecdsa.PrivateKey, body []byte, nonce string, now time.Time) error {
	ts := now.Unix()

	sig, err := crypto.Sign(signingHash(req.Method, req.URL.Path, ts, nonce, body), key)
	if err != nil {
		return err
	}

	// personal-sign convention
	sig[crypto.RecoveryIDOffset] += 27

	req.Header.Set(TimestampHeader, strconv.FormatInt(ts, 10))
	req.Header.Set(NonceHeader, nonce)
	req.Header.Set(SignatureHeader, hexutil.Encode(sig))

	return nil
}

func recoverCaller(r *http.Request, body []byte, now time.Time, maxSkew time.Duration) (common.Address, error) {
	rawSig := r.Header.Get(SignatureHeader)
	rawTS := r.Header.Get(TimestampHeader)
	nonce := r.Header.Get(NonceHeader)
	if rawSig == "" || rawTS == "" || nonce == "" {
		return common.Address{}, ErrMissingSignature
	}

	if len(nonce) > maxNonceLen {
		return common.Address{}, fmt.Errorf("%w: nonce too long", ErrBadSignature)
	}

	ts, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: bad timestamp", ErrBadSignature)
	}

	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}

	if skew > maxSkew {
		return common.Address{}, ErrClockSkew
	}

	sig, err := hexutil.Decode(rawSig)
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: malformed signature", ErrBadSignature)
	}

	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(signingHash(r.Method, r.URL.Path, ts, nonce, body), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %s", ErrBadSignature, err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// authenticate resolves the signer of an admin request and stores it as
// the caller identity. Each signed nonce is accepted once. Authorization is
// left to the contract's guards.
func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}

		now := h.now()

		caller, err := recoverCaller(r, body, now, h.maxSkew)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, err)
			return
		}

		seen, err := h.nonces.UseNonce(caller, r.Header.Get(NonceHeader), now)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to record nonce: %w", err))
			return
		}

		if seen {
			h.log.Printf("rejected replayed request from %s to %s", caller, r.URL.Path)
			h.writeError(w, http.StatusUnauthorized, ErrReplayedRequest)
			return
		}

		h.pruneNonces(now)

		r.Body = io.NopCloser(bytes.NewReader(body))

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

// pruneNonces drops nonces too old to pass the skew check. A signed
// timestamp is accepted for 2*maxSkew, so nonces are kept that long.
func (h *handler) pruneNonces(now time.Time) {
	h.pruneMu.Lock()
	defer h.pruneMu.Unlock()

	if now.Sub(h.lastPrune) < h.maxSkew {
		return
	}

	h.lastPrune = now

	if err := h.nonces.PruneNonces(now.Add(-2 * h.maxSkew)); err != nil {
		h.log.Printf("failed to prune nonces: %s", err)
	}
}

func callerFrom(ctx context.Context) common.Address {
	caller, _ := ctx.Value(callerKey{}).(common.Address)
	return caller
}
