package handler

import (
	"net"
	"net/http"
	"regexp"
	"strings"
)

var (
	phoneRe = regexp.MustCompile(`^[0-9]{10}$`)
	codeRe  = regexp.MustCompile(`^[0-9]{6}$`)
)

func isValidPhone(phone string) bool {
	return phoneRe.MatchString(phone)
}

func isValidCode(code string) bool {
	return codeRe.MatchString(code)
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// socket peer. This is the origin half of the rate-limit key.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// maskPhone masks phone numbers like ******7889
func maskPhone(phone string) string {
	if len(phone) < 4 {
		return "****"
	}
	return "******" + phone[len(phone)-4:]
}
