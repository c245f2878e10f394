package util

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// rfdDomains lists domains where NormalizeURL should force HTTPS and apply RFD-specific normalization.
var rfdDomains = []string{
	"redflagdeals.com",
	"forums.redflagdeals.com",
	"www.redflagdeals.com",
	"www.forums.redflagdeals.com",
}

func isRFDDomain(host string) bool {
	for _, d := range rfdDomains {
		if host == d {
			return true
		}
	}
	return false
}

// NormalizeURL canonicalises RedFlagDeals thread URLs so the same thread always
// maps to the same source URL. Other hosts are returned untouched.
func NormalizeURL(rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, err
	}

	if !isRFDDomain(parsedURL.Hostname()) {
		return rawURL, nil
	}

	parsedURL.Scheme = "https"
	parsedURL.Host = strings.TrimPrefix(parsedURL.Host, "www.")
	if parsedURL.Host == "redflagdeals.com" {
		parsedURL.Host = "forums.redflagdeals.com"
	}
	if len(parsedURL.Path) > 1 && strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path = parsedURL.Path[:len(parsedURL.Path)-1]
		// Clear RawPath to ensure String() regenerates the URL path without the trailing slash
		parsedURL.RawPath = ""
	}
	queryParams := parsedURL.Query()
	for _, param := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "rfd_sk", "sd", "sk"} {
		queryParams.Del(param)
	}
	parsedURL.RawQuery = queryParams.Encode()
	return parsedURL.String(), nil
}

// GetDomain returns the registrable domain (eTLD+1) of rawURL, e.g. "bestbuy.ca"
// for "https://www.bestbuy.ca/product". It returns "" when no host can be parsed.
func GetDomain(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := parsedURL.Hostname()
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return strings.TrimPrefix(host, "www.")
	}
	return domain
}
