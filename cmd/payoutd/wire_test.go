package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/automation-prize-payout/pkg/api"
	"github.com/smartcontractkit/automation-prize-payout/pkg/config"
)

func TestNewServer(t *testing.T) {
	conf := config.Default()
	conf.HTTP.Listen = ":9090"

	server := newServer(conf, http.NotFoundHandler())

	assert.Equal(t, ":9090", server.Addr)
	assert.Equal(t, 30*time.Second, server.ReadHeaderTimeout)
	assert.Equal(t, 30*time.Second, server.ReadTimeout)
	assert.Equal(t, 2*time.Minute, server.IdleTimeout)

	// a withdrawal may wait for a full receipt timeout before responding
	assert.Equal(t, 30*time.Second+10*time.Second+2*time.Minute, server.WriteTimeout)
}

func TestBuild_NoncesSurviveRestart(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	conf := config.Default()
	conf.Contract.Owner = crypto.PubkeyToAddress(key.PublicKey).Hex()
	conf.Contract.AuthorizedTrigger = "0x00000000000000000000000000000000000000b2"
	conf.Contract.Winner = "0x00000000000000000000000000000000000000c3"
	conf.Contract.PrizeUSD = "100"
	conf.Contract.InitialDeposit = "1000"
	conf.Oracle.Kind = config.OracleStatic
	conf.Oracle.StaticPrice = "2500"
	conf.Store.Kind = config.StoreLevelDB
	conf.Store.Path = filepath.Join(t.TempDir(), "state")
	require.NoError(t, conf.Validate())

	body := []byte(`{"amount":"400","payee":"0x00000000000000000000000000000000000000e5"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/withdraw", bytes.NewReader(body))
	require.NoError(t, api.SignRequest(req, key, body, "withdraw-1", time.Now()))

	captured := httptest.NewRequest(http.MethodPost, "/v1/admin/withdraw", bytes.NewReader(body))
	captured.Header = req.Header.Clone()

	d, err := build(context.Background(), conf, false)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	d.handler(conf).ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	d.close()

	d, err = build(context.Background(), conf, false)
	require.NoError(t, err)
	defer d.close()

	rec = httptest.NewRecorder()
	d.handler(conf).ServeHTTP(rec, captured)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "600", d.contract.Balance().String())
}
