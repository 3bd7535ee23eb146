package uplink

import (
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the fallback endpoint when neither an override nor an
// environment entry provides one.
const DefaultBaseURL = "http://localhost:8080"

// Endpoint describes where requests are sent: a base URL, an optional API
// version segment, and headers attached to every call.
type Endpoint struct {
	BaseURL        string
	Version        string
	DefaultHeaders map[string]string
}

// Environment is a named deployment target in a configuration table. Zero
// fields are treated as unset and fall through to defaults.
type Environment struct {
	Name       string
	BaseURL    string
	ChannelURL string
	Version    string
	Timeout    time.Duration
	MaxRetries int
	MockMode   bool
	Headers    map[string]string
}

// Environments maps environment names to their entries.
type Environments map[string]Environment

// ResolveEndpoint merges the three configuration tiers field-wise: explicit
// override beats the named environment entry, which beats the localhost
// default. Empty fields are unset; the result is always usable.
func ResolveEndpoint(override *Endpoint, envName string, envs Environments) Endpoint {
	resolved := Endpoint{BaseURL: DefaultBaseURL}

	if env, ok := envs[envName]; ok {
		if env.BaseURL != "" {
			resolved.BaseURL = env.BaseURL
		}
		if env.Version != "" {
			resolved.Version = normalizeVersion(env.Version)
		}
		if len(env.Headers) > 0 {
			resolved.DefaultHeaders = cloneStringMap(env.Headers)
		}
	}

	if override != nil {
		if override.BaseURL != "" {
			resolved.BaseURL = override.BaseURL
		}
		if override.Version != "" {
			resolved.Version = normalizeVersion(override.Version)
		}
		if len(override.DefaultHeaders) > 0 {
			if resolved.DefaultHeaders == nil {
				resolved.DefaultHeaders = make(map[string]string, len(override.DefaultHeaders))
			}
			for k, v := range override.DefaultHeaders {
				resolved.DefaultHeaders[k] = v
			}
		}
	}

	return resolved
}

// normalizeVersion strips surrounding slashes so "v2", "/v2" and "v2/" all
// compose identically. Empty stays empty, meaning no version segment.
func normalizeVersion(v string) string {
	return strings.Trim(v, "/")
}

// JoinURL composes base, version and path with exactly one separator between
// non-empty segments, whatever slashes the inputs carry.
func JoinURL(base, version, path string) string {
	segments := make([]string, 0, 3)
	if b := strings.TrimRight(base, "/"); b != "" {
		segments = append(segments, b)
	}
	if v := normalizeVersion(version); v != "" {
		segments = append(segments, v)
	}
	if p := strings.TrimLeft(path, "/"); p != "" {
		segments = append(segments, p)
	}
	return strings.Join(segments, "/")
}

// isAbsoluteURL reports whether the target names its own scheme and should
// bypass endpoint composition.
func isAbsoluteURL(s string) bool {
	for _, prefix := range []string{"http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// ChannelURLFromHTTP translates an HTTP endpoint into its message-channel
// counterpart: http becomes ws, https becomes wss. Addresses already using a
// channel scheme pass through unchanged.
func ChannelURLFromHTTP(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}

// appendQuery attaches params to rawURL in sorted key order, skipping empty
// values. Sorted encoding keeps cache keys deterministic for semantically
// identical requests.
func appendQuery(rawURL string, params url.Values) string {
	if len(params) == 0 {
		return rawURL
	}

	filtered := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			if v != "" {
				filtered.Add(k, v)
			}
		}
	}
	if len(filtered) == 0 {
		return rawURL
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + filtered.Encode()
}

// canonicalURL re-encodes the query portion of rawURL with sorted keys so
// equivalent URLs compare equal as strings. Unparseable input passes through.
func canonicalURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = u.Query().Encode()
	return u.String()
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
