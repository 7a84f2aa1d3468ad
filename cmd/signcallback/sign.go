package main

import (
	"fmt"
	"net/url"
	"time"

	"github.com/cassiomorais/storepay/internal/providers"
)

// signWebhook returns the header name and value a provider expects on a
// webhook delivery.
func signWebhook(provider, secret string, body []byte, now time.Time) (string, string, error) {
	switch provider {
	case providers.ProviderPaygate:
		return providers.PaygateSignatureHeader, providers.TimestampedSignature(secret, body, now), nil
	case providers.ProviderMock:
		return providers.MockSecretHeader, secret, nil
	default:
		return "", "", fmt.Errorf("signing %q callbacks is not supported", provider)
	}
}

// signReturnQuery adds the provider's authentication to a return query.
func signReturnQuery(provider, secret string, query url.Values) (url.Values, error) {
	signed := url.Values{}
	for k, v := range query {
		signed[k] = append([]string(nil), v...)
	}
	switch provider {
	case providers.ProviderPaygate:
		signed.Set("signature", providers.SignQuery(secret, query, "signature"))
	case providers.ProviderMock:
		signed.Set(providers.MockSecretParam, secret)
	default:
		return nil, fmt.Errorf("signing %q return urls is not supported", provider)
	}
	return signed, nil
}
