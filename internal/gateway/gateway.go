// Package gateway delivers composed messages over the chat messaging
// gateway.
//
// The dispatcher only sees the Gateway interface and the three possible
// results of a send:
//   - Accepted: the provider took the message (Result.Accepted)
//   - Rejected: the provider refused it (Result.Accepted false, Detail set)
//   - Transport failure: the provider could not be reached or was
//     overloaded (*errors.TransportFailure), safe to retry
//
// Provider-specific response shapes never leave this package.
package gateway

import (
	"context"
	"strings"
	"unicode"
)

// Result is the outcome of a delivered request.
type Result struct {
	Accepted   bool   // Provider accepted the message
	ProviderID string // Provider's message reference, when accepted
	Detail     string // Provider's reason, when rejected
}

// Gateway sends a message to one recipient address.
type Gateway interface {
	Send(ctx context.Context, to, body string) (Result, error)
}

// NormalizeAddress strips everything but digits from a phone-style address.
//
// Example: "+91 96522-97185" → "919652297185"
func NormalizeAddress(addr string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			return r
		}
		return -1
	}, addr)
}
