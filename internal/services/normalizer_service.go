// internal/services/normalizer_service.go
package services

import (
	"regexp"
	"sort"
	"strings"
)

// NormalizedFeatures is the structured view of a raw listing used by the
// matcher. Absent features are empty, never nil; normalization is tolerant of
// arbitrarily sparse input and does not fail.
type NormalizedFeatures struct {
	Brand           string   `json:"brand"`
	BrandConfidence float64  `json:"brand_confidence"`
	Category        string   `json:"category"`
	SpecTokens      []string `json:"spec_tokens"`
}

// knownBrands is the maintained brand list, matched case-insensitively and
// substring-tolerant against both the declared brand and the listing name.
var knownBrands = []string{
	"samsung", "apple", "xiaomi", "huawei", "motorola", "nokia", "sony",
	"lg", "hp", "dell", "lenovo", "acer", "asus", "oppo", "vivo", "realme",
	"honor", "zte", "alcatel", "tcl", "philips", "panasonic", "hisense",
	"epson", "canon", "logitech", "jbl", "bose", "garmin", "fitbit",
}

// brandAliases maps common typos and short forms onto canonical brands.
var brandAliases = map[string]string{
	"sams":     "samsung",
	"samsun":   "samsung",
	"gala":     "samsung",
	"galaxy":   "samsung",
	"iph":      "apple",
	"iphone":   "apple",
	"ipad":     "apple",
	"macbook":  "apple",
	"moto":     "motorola",
	"redmi":    "xiaomi",
	"poco":     "xiaomi",
	"thinkpad": "lenovo",
}

// categoryKeywords maps name keywords onto canonical categories. First hit in
// iteration order wins; names missing every keyword keep an empty category.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"smartphones", []string{"celular", "smartphone", "telefono", "iphone", "movil"}},
	{"notebooks", []string{"notebook", "laptop", "portatil", "macbook", "chromebook"}},
	{"tablets", []string{"tablet", "ipad"}},
	{"televisions", []string{"televisor", "smart tv", " tv ", "qled", "oled"}},
	{"monitors", []string{"monitor", "pantalla gamer"}},
	{"audio", []string{"audifono", "parlante", "soundbar", "headphone", "earbuds"}},
	{"wearables", []string{"smartwatch", "reloj inteligente", "band"}},
	{"appliances", []string{"refrigerador", "lavadora", "microondas", "aspiradora", "hervidor"}},
}

var (
	capacityPattern  = regexp.MustCompile(`(?i)\b(\d+)\s*(gb|tb)\b`)
	ramAnchorPattern = regexp.MustCompile(`(?i)^\s*(?:de\s+)?ram\b`)
	screenPattern    = regexp.MustCompile(`(?i)\b(\d{1,3}(?:[.,]\d)?)\s*(?:["”]|''|(?:pulgadas|pulg|inch|in)\b)`)
	cameraPattern    = regexp.MustCompile(`(?i)\b(\d{1,3})\s*mp\b`)
	batteryPattern   = regexp.MustCompile(`(?i)\b(\d{3,5})\s*mah\b`)
)

// NormalizerService extracts structured attributes from raw listing text.
type NormalizerService struct {
	identity *IdentityService
}

func NewNormalizerService(identity *IdentityService) *NormalizerService {
	return &NormalizerService{identity: identity}
}

// Normalize cleans a raw listing into matching features. Brand resolution
// prefers the declared brand, then brand mentions in the name, then a
// low-confidence guess from the leading name token.
func (s *NormalizerService) Normalize(rawName, rawBrand string) NormalizedFeatures {
	name := s.identity.NormalizeName(rawName)

	features := NormalizedFeatures{
		Category:   s.extractCategory(name),
		SpecTokens: s.extractSpecTokens(rawName),
	}
	features.Brand, features.BrandConfidence = s.resolveBrand(rawBrand, name)
	return features
}

func (s *NormalizerService) resolveBrand(rawBrand, normalizedName string) (string, float64) {
	declared := strings.ToLower(strings.TrimSpace(rawBrand))

	if declared != "" {
		if brand, confidence := matchBrand(declared); brand != "" {
			return brand, confidence
		}
	}

	if brand := brandFromText(normalizedName); brand != "" {
		return brand, 0.8
	}

	if declared != "" {
		// Unknown declared brand is still better than a name guess
		return declared, 0.5
	}

	if first := firstToken(normalizedName); first != "" {
		return first, 0.4
	}
	return "", 0
}

func matchBrand(candidate string) (string, float64) {
	for _, brand := range knownBrands {
		if candidate == brand {
			return brand, 1.0
		}
	}
	if canonical, ok := brandAliases[candidate]; ok {
		return canonical, 0.9
	}
	for _, brand := range knownBrands {
		if strings.Contains(candidate, brand) || (len(candidate) >= 3 && strings.Contains(brand, candidate)) {
			return brand, 0.8
		}
	}
	return "", 0
}

func brandFromText(text string) string {
	padded := " " + text + " "
	for _, brand := range knownBrands {
		if strings.Contains(padded, " "+brand+" ") {
			return brand
		}
	}
	for alias, canonical := range brandAliases {
		if strings.Contains(padded, " "+alias+" ") {
			return canonical
		}
	}
	return ""
}

func firstToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func (s *NormalizerService) extractCategory(normalizedName string) string {
	padded := " " + normalizedName + " "
	for _, entry := range categoryKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(padded, strings.TrimSpace(keyword)) {
				return entry.category
			}
		}
	}
	return ""
}

// extractSpecTokens pulls capacity, memory, screen size, camera, and battery
// tokens from the raw name. Capacity matches followed by a RAM anchor become
// memory tokens; all non-conflicting matches are retained.
func (s *NormalizerService) extractSpecTokens(rawName string) []string {
	seen := make(map[string]bool)
	tokens := make([]string, 0, 4)
	add := func(token string) {
		if token != "" && !seen[token] {
			seen[token] = true
			tokens = append(tokens, token)
		}
	}

	for _, match := range capacityPattern.FindAllStringSubmatchIndex(rawName, -1) {
		value := rawName[match[2]:match[3]]
		unit := strings.ToLower(rawName[match[4]:match[5]])
		rest := rawName[match[1]:]
		if ramAnchorPattern.MatchString(rest) {
			add(value + unit + "-ram")
		} else {
			add(value + unit)
		}
	}

	for _, match := range screenPattern.FindAllStringSubmatch(rawName, -1) {
		value := strings.ReplaceAll(match[1], ",", ".")
		add(value + "in")
	}

	for _, match := range cameraPattern.FindAllStringSubmatch(rawName, -1) {
		add(match[1] + "mp")
	}

	for _, match := range batteryPattern.FindAllStringSubmatch(rawName, -1) {
		add(match[1] + "mah")
	}

	sort.Strings(tokens)
	return tokens
}
