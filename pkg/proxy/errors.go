// Package proxy pkg/proxy/errors.go
package proxy

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable covers connection refused and DNS failures.
	ErrUnreachable = errors.New("proxy unreachable")

	// ErrTimeout covers requests abandoned at the request deadline.
	ErrTimeout = errors.New("proxy request timed out")

	// ErrMalformedResponse covers payloads failing schema validation.
	ErrMalformedResponse = errors.New("malformed proxy response")

	// ErrHTTPStatus covers non-2xx responses; the concrete code is
	// carried by StatusError.
	ErrHTTPStatus = errors.New("proxy returned non-2xx status")

	errEmptyHost   = errors.New("proxy endpoint host must not be empty")
	errInvalidPort = errors.New("proxy endpoint port must be in range 1-65535")
)

// StatusError reports a non-2xx HTTP response from the proxy.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("proxy returned status %d", e.Code)
}

// Is makes errors.Is(err, ErrHTTPStatus) match any StatusError.
func (*StatusError) Is(target error) bool {
	return target == ErrHTTPStatus
}
