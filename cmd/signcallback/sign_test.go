package main

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/cassiomorais/storepay/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignWebhook_PaygateVerifies(t *testing.T) {
	body := []byte(`{"event":"payment.completed","data":{"transaction_id":"pg_1","status":"approved"}}`)
	header, value, err := signWebhook(providers.ProviderPaygate, "whsec", body, time.Now())
	require.NoError(t, err)
	assert.Equal(t, providers.PaygateSignatureHeader, header)

	adapter := providers.NewPaygateAdapter()
	require.NoError(t, adapter.Configure(providers.Config{Credentials: []byte(`{"client_id":"c","client_secret":"s","webhook_secret":"whsec"}`)}))
	h := http.Header{}
	h.Set(header, value)
	assert.NoError(t, adapter.ValidateWebhook(body, h))
}

func TestSignWebhook_Mock(t *testing.T) {
	header, value, err := signWebhook(providers.ProviderMock, "s3cret", nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, providers.MockSecretHeader, header)
	assert.Equal(t, "s3cret", value)

	_, _, err = signWebhook("stripe", "x", nil, time.Now())
	assert.Error(t, err)
}

func TestSignReturnQuery(t *testing.T) {
	query := url.Values{"checkout_id": {"chk_1"}, "status": {"approved"}}

	signed, err := signReturnQuery(providers.ProviderPaygate, "whsec", query)
	require.NoError(t, err)
	assert.Equal(t, providers.SignQuery("whsec", query, "signature"), signed.Get("signature"))
	assert.Empty(t, query.Get("signature"), "input is not modified")

	signed, err = signReturnQuery(providers.ProviderMock, "s3cret", query)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", signed.Get(providers.MockSecretParam))
}
