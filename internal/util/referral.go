package util

import (
	"net/url"
	"regexp"
	"strings"
)

var bestBuyRegex = regexp.MustCompile(`^https://bestbuyca\.o93x\.net/c/\d+/\d+/\d+\?u=`)

// CleanReferralLink unwraps tracking redirects and rewrites affiliate tags on a
// destination URL. It reports whether the URL was changed.
func CleanReferralLink(rawURL, amazonTag, bestBuyPrefix string) (string, bool) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, false
	}

	switch {
	case parsedURL.Host == "click.linksynergy.com":
		return unwrapParam(rawURL, parsedURL, "murl")

	case parsedURL.Host == "go.redirectingat.com":
		return unwrapParam(rawURL, parsedURL, "url")

	case parsedURL.Host == "bestbuyca.o93x.net" && bestBuyRegex.MatchString(rawURL):
		if bestBuyPrefix == "" {
			return rawURL, false
		}
		uIndex := strings.Index(rawURL, "?u=")
		if uIndex == -1 {
			return rawURL, false
		}
		return bestBuyPrefix + rawURL[uIndex+len("?u="):], true

	case strings.Contains(parsedURL.Host, "amazon."):
		if amazonTag == "" {
			return rawURL, false
		}
		queryParams := parsedURL.Query()
		if queryParams.Get("tag") == amazonTag {
			return rawURL, false
		}
		queryParams.Set("tag", amazonTag)
		parsedURL.RawQuery = queryParams.Encode()
		return parsedURL.String(), true

	default:
		return rawURL, false
	}
}

func unwrapParam(rawURL string, parsedURL *url.URL, param string) (string, bool) {
	value := parsedURL.Query().Get(param)
	if value == "" {
		return rawURL, false
	}
	decoded, err := url.QueryUnescape(value)
	if err != nil {
		return rawURL, false
	}
	return decoded, true
}
