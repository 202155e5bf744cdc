package httpapi

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ipWhitelist rejects any request whose remote address is not in allowed,
// gated by the WHITELIST_ENABLED/WHITELIST_IPS config. Entries may
// be bare IPs or CIDR ranges.
func ipWhitelist(allowed []string) gin.HandlerFunc {
	nets := make([]*net.IPNet, 0, len(allowed))
	ips := make(map[string]bool, len(allowed))
	for _, entry := range allowed {
		if _, ipnet, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, ipnet)
			continue
		}
		ips[entry] = true
	}

	return func(c *gin.Context) {
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			host = c.Request.RemoteAddr
		}
		if ips[host] {
			c.Next()
			return
		}
		ip := net.ParseIP(host)
		if ip != nil {
			for _, ipnet := range nets {
				if ipnet.Contains(ip) {
					c.Next()
					return
				}
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "ip not allowed"})
	}
}
