package providers

import "strings"

// Provider config keys mapped to request headers.
const (
	ConfigUserAgentKey      = "user_agent"
	ConfigAcceptKey         = "accept"
	ConfigAcceptLanguageKey = "accept_language"
	ConfigCacheControlKey   = "cache_control"
)

var configHeaders = []struct{ key, header string }{
	{ConfigUserAgentKey, "User-Agent"},
	{ConfigAcceptKey, "Accept"},
	{ConfigAcceptLanguageKey, "Accept-Language"},
	{ConfigCacheControlKey, "Cache-Control"},
}

// ConfigString returns the trimmed string at key in cfg.Config, or fallback when unset or blank.
func ConfigString(cfg Provider, key, fallback string) string {
	val, _ := cfg.Config[key].(string)
	if val = strings.TrimSpace(val); val != "" {
		return val
	}
	return fallback
}

// Headers returns the request headers configured on cfg. The map is fresh and safe to extend.
func Headers(cfg Provider) map[string]string {
	headers := make(map[string]string, len(configHeaders)+2)
	for _, h := range configHeaders {
		if v := ConfigString(cfg, h.key, ""); v != "" {
			headers[h.header] = v
		}
	}
	return headers
}
