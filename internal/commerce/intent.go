// Package commerce detects order/product intent in visitor messages and looks
// the answers up in the bot owner's e-commerce backend. Lookups are strictly
// best-effort: every failure degrades to "no context", never to a visible
// error.
package commerce

import (
	"regexp"
	"strings"
)

// IntentType classifies what a visitor message is asking about.
type IntentType string

const (
	IntentOrder   IntentType = "order"
	IntentProduct IntentType = "product"
	IntentNone    IntentType = "none"
)

// Intent is the result of pattern matching a message.
type Intent struct {
	Type  IntentType
	Query string
}

var (
	orderNumberPattern = regexp.MustCompile(`#\d+|\border\s+#?(\d+)`)
	orderWordsPattern  = regexp.MustCompile(`(?i)\b(order|tracking|track|shipment|shipping|shipped|delivery|deliver|delivered|package|parcel)\b`)
	productWords       = regexp.MustCompile(`(?i)\b(stock|price|prices|pricing|cost|costs|available|availability|sell|selling|carry)\b`)
	wordPattern        = regexp.MustCompile(`[a-zA-Z][a-zA-Z'-]*`)
)

// Words excluded when extracting a product search query. Intent trigger words
// are filtered separately.
var stopwords = map[string]struct{}{
	"this": {}, "that": {}, "these": {}, "those": {}, "have": {}, "does": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "your": {}, "yours": {},
	"with": {}, "about": {}, "much": {}, "many": {}, "there": {}, "here": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "please": {}, "thanks": {},
	"thank": {}, "hello": {}, "still": {}, "want": {}, "need": {}, "looking": {},
}

// DetectIntent classifies a visitor message. Order intent wins over product
// intent when both match, because an explicit order reference is the stronger
// signal.
func DetectIntent(message string) Intent {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return Intent{Type: IntentNone}
	}
	lower := strings.ToLower(trimmed)

	if match := orderNumberPattern.FindStringSubmatch(lower); match != nil {
		query := match[0]
		if match[1] != "" {
			query = "#" + match[1]
		}
		return Intent{Type: IntentOrder, Query: query}
	}
	if orderWordsPattern.MatchString(lower) {
		return Intent{Type: IntentOrder}
	}

	if productWords.MatchString(lower) {
		return Intent{Type: IntentProduct, Query: extractProductQuery(lower)}
	}

	return Intent{Type: IntentNone}
}

// extractProductQuery picks up to three content words (length > 3, no
// stopwords, no intent trigger words) as the product search query.
func extractProductQuery(lower string) string {
	var terms []string
	for _, word := range wordPattern.FindAllString(lower, -1) {
		if len(word) <= 3 {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		if productWords.MatchString(word) || orderWordsPattern.MatchString(word) {
			continue
		}
		terms = append(terms, word)
		if len(terms) == 3 {
			break
		}
	}
	return strings.Join(terms, " ")
}
