package controller

import (
	"net"
	"strings"

	"github.com/labstack/echo/v4"
)

// ClientIPExtractor resolves the caller address used by the IP allowlist and the rate limiter.
// Forwarding headers are honoured only when the direct peer is one of trustedProxies
// (single addresses or CIDR blocks); without any, the peer address is used as is.
func ClientIPExtractor(trustedProxies []string) echo.IPExtractor {
	options := make([]echo.TrustOption, 0, len(trustedProxies)+3)
	options = append(options,
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	)
	for _, entry := range trustedProxies {
		entry = strings.TrimSpace(entry)
		if !strings.Contains(entry, "/") {
			if ip := net.ParseIP(entry); ip != nil {
				if ip.To4() != nil {
					entry += "/32"
				} else {
					entry += "/128"
				}
			}
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			continue
		}
		options = append(options, echo.TrustIPRange(ipNet))
	}

	if len(options) == 3 {
		return echo.ExtractIPDirect()
	}
	return echo.ExtractIPFromXFFHeader(options...)
}
