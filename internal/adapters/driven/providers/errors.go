package providers

import (
	"fmt"

	"github.com/publica-labs/publica-core/internal/core/domain"
)

// TransportError classifies a failure that never produced an HTTP response:
// DNS errors, connection resets, timeouts. These are always transient; only
// an explicit provider response may count as an authorization failure.
func TransportError(provider domain.ProviderType, err error) error {
	return domain.NewProviderError(provider, domain.ErrorKindTransient, 0, err)
}

// ResponseError classifies a non-2xx provider response by its status code.
func ResponseError(provider domain.ProviderType, status int, body []byte) error {
	return domain.NewProviderError(provider, domain.ClassifyStatus(status), status,
		fmt.Errorf("%s", truncate(body, 512)))
}

// AuthorizationError builds an explicit authorization failure regardless of
// status. Used for provider-specific rejections that hide behind generic
// codes, like Google's invalid_grant on HTTP 400.
func AuthorizationError(provider domain.ProviderType, status int, body []byte) error {
	return domain.NewProviderError(provider, domain.ErrorKindAuthorization, status,
		fmt.Errorf("%s", truncate(body, 512)))
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
