package uplink

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// cacheDirectives are the parsed response Cache-Control directives the
// storage policy cares about.
type cacheDirectives struct {
	noStore bool
	noCache bool
	private bool
	maxAge  *time.Duration
}

func parseCacheControl(header string) cacheDirectives {
	var d cacheDirectives
	if header == "" {
		return d
	}

	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "=") {
			kv := strings.SplitN(part, "=", 2)
			if len(kv) != 2 {
				continue
			}
			key := strings.TrimSpace(kv[0])
			value := strings.Trim(strings.TrimSpace(kv[1]), "\"")

			if key == "max-age" {
				if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
					maxAge := time.Duration(seconds) * time.Second
					d.maxAge = &maxAge
				}
			}
			continue
		}

		switch part {
		case "no-store":
			d.noStore = true
		case "no-cache":
			d.noCache = true
		case "private":
			d.private = true
		}
	}

	return d
}

func parseExpires(header string) *time.Time {
	if header == "" {
		return nil
	}
	for _, layout := range []string{time.RFC1123, time.RFC850, time.ANSIC} {
		if t, err := time.Parse(layout, header); err == nil {
			return &t
		}
	}
	return nil
}

// storageTTL decides whether a response may be stored and for how long. The
// configured TTL is the ceiling; a server max-age or Expires only ever
// shortens it. no-store, no-cache, and private forbid storage outright, even
// for calls that forced caching per-request.
func storageTTL(header http.Header, configured time.Duration) (time.Duration, bool) {
	d := parseCacheControl(header.Get("Cache-Control"))
	if d.noStore || d.noCache || d.private {
		return 0, false
	}

	ttl := configured
	if d.maxAge != nil {
		if *d.maxAge == 0 {
			return 0, false
		}
		if *d.maxAge < ttl {
			ttl = *d.maxAge
		}
		return ttl, true
	}

	if expires := parseExpires(header.Get("Expires")); expires != nil {
		until := time.Until(*expires)
		if until <= 0 {
			return 0, false
		}
		if until < ttl {
			ttl = until
		}
	}

	return ttl, true
}
