// internal/services/identity_service.go
package services

import (
	"errors"
	"regexp"
	"strings"

	"github.com/retailradar/arbitrage-backend/internal/utils"
)

// ErrInsufficientIdentityData is returned when a record carries no usable key
// material. Callers must skip the record or request a re-scrape; an ID is
// never fabricated.
var ErrInsufficientIdentityData = errors.New("insufficient identity data: no SKU, URL, or name")

// retailerCodes maps known retailers to the 3-letter prefix of their entity
// IDs. Unknown retailers fall back to the first three letters, padded with X.
var retailerCodes = map[string]string{
	"falabella":    "FAL",
	"ripley":       "RIP",
	"paris":        "PAR",
	"mercadolibre": "MER",
	"hites":        "HIT",
	"abcdin":       "ABC",
	"lapolar":      "LAP",
	"linio":        "LIN",
	"sodimac":      "SOD",
	"easy":         "EAS",
}

// trackingParams are stripped from listing URLs before hashing so campaign
// noise does not split one listing into many identities.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"gclid":        true,
	"fbclid":       true,
	"mclid":        true,
	"ref":          true,
	"sid":          true,
}

var (
	schemePattern      = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
	punctuationPattern = regexp.MustCompile(`[^\p{L}\p{N} ]+`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
)

// IdentityService derives stable entity IDs for scraped product records. It
// is deliberately stateless: equal inputs yield equal IDs across calls and
// across process restarts.
type IdentityService struct{}

func NewIdentityService() *IdentityService {
	return &IdentityService{}
}

// Resolve computes the entity ID for one scraped record. Key material
// precedence: native SKU, else canonical listing URL, else normalized name.
// The chosen key is tagged with its kind and the retailer, hashed, and
// prefixed with the retailer code: FAL3F2A9C01.
func (s *IdentityService) Resolve(retailer, nativeSKU, listingURL, rawName string) (string, error) {
	key, kind := s.selectKey(nativeSKU, listingURL, rawName)
	if key == "" {
		return "", ErrInsufficientIdentityData
	}

	input := strings.ToLower(strings.TrimSpace(retailer)) + "|" + kind + ":" + key
	return s.RetailerCode(retailer) + utils.HashPrefix(input, 8), nil
}

func (s *IdentityService) selectKey(nativeSKU, listingURL, rawName string) (string, string) {
	if sku := strings.TrimSpace(nativeSKU); sku != "" {
		return sku, "SKU"
	}
	if url := s.CanonicalURL(listingURL); url != "" {
		return url, "URL"
	}
	if name := s.NormalizeName(rawName); name != "" {
		return name, "NAME"
	}
	return "", ""
}

// CanonicalURL reduces a listing URL to its stable path: scheme and host
// stripped, tracking parameters removed, trailing slash trimmed.
func (s *IdentityService) CanonicalURL(rawURL string) string {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return ""
	}

	url = schemePattern.ReplaceAllString(url, "")
	if idx := strings.Index(url, "/"); idx >= 0 {
		url = url[idx:]
	} else {
		// Host with no path identifies nothing
		return ""
	}

	if idx := strings.Index(url, "#"); idx >= 0 {
		url = url[:idx]
	}

	if idx := strings.Index(url, "?"); idx >= 0 {
		path, query := url[:idx], url[idx+1:]
		kept := make([]string, 0, 4)
		for _, param := range strings.Split(query, "&") {
			name := param
			if eq := strings.Index(param, "="); eq >= 0 {
				name = param[:eq]
			}
			if !trackingParams[strings.ToLower(name)] {
				kept = append(kept, param)
			}
		}
		url = path
		if len(kept) > 0 {
			url = path + "?" + strings.Join(kept, "&")
		}
	}

	url = strings.TrimRight(url, "/")
	if url == "" {
		return ""
	}
	return strings.ToLower(url)
}

// NormalizeName lower-cases a raw listing name, strips punctuation, and
// collapses whitespace.
func (s *IdentityService) NormalizeName(rawName string) string {
	name := strings.ToLower(strings.TrimSpace(rawName))
	name = punctuationPattern.ReplaceAllString(name, " ")
	name = whitespacePattern.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// RetailerCode returns the 3-letter ID prefix for a retailer.
func (s *IdentityService) RetailerCode(retailer string) string {
	key := strings.ToLower(strings.TrimSpace(retailer))
	if code, ok := retailerCodes[key]; ok {
		return code
	}

	cleaned := make([]rune, 0, 3)
	for _, r := range strings.ToUpper(key) {
		if r >= 'A' && r <= 'Z' {
			cleaned = append(cleaned, r)
		}
		if len(cleaned) == 3 {
			break
		}
	}
	for len(cleaned) < 3 {
		cleaned = append(cleaned, 'X')
	}
	return string(cleaned)
}
