package interpret

import (
	"regexp"
	"strconv"
	"strings"

	"kaipiao/agent/internal/receipt"
)

// The interpreter understands both the Chinese phrasing of the original
// app (给张三便利店开票，10箱可口可乐…) and the equivalent English
// phrasing (10 cases of cola for Zhang's shop…). All matching is
// regexp-driven and deterministic.
var (
	reCustomerEN = regexp.MustCompile(`(?i)\bfor\s+([a-z0-9'’][a-z0-9'’ ]*?(?:shop|store|supermarket|mart))\b`)
	reCustomerZH = regexp.MustCompile(`给([\p{Han}A-Za-z0-9]+?(?:便利店|超市|批发部|商行|商店|小卖部|店))`)

	reCarrierEN = regexp.MustCompile(`(?i)\bvia\s+([^,，。.;；]+)`)
	reCarrierZH = regexp.MustCompile(`[用由走]([\p{Han}A-Za-z0-9]+?)(?:发货|配送|送货|快递)`)

	rePairZH = regexp.MustCompile(`(\d+)\s*[箱瓶件盒袋包桶条打]?\s*([\p{Han}][\p{Han}A-Za-z0-9]*)`)
	rePairEN = regexp.MustCompile(`(?i)(\d+)\s*(?:(?:cases?|boxes?|bottles?|bags?|packs?|cartons?|units?)\s+)?(?:of\s+)?([a-z][a-z'’ ]*)`)

	reSegment = regexp.MustCompile(`(?i)[,，、;；。\n]|\band\b`)
	reInteger = regexp.MustCompile(`\d+`)

	reEditEN = regexp.MustCompile(`(?i)\b(?:change|modify|update)\b`)

	reQuoted     = regexp.MustCompile(`['"“”‘’]([^'"“”‘’]+)['"“”‘’]`)
	reCustEditEN = regexp.MustCompile(`(?i)\b(?:change|modify|update)\s+(?:the\s+)?(?:customer\s+)?to\s+([a-z0-9'’][a-z0-9'’ ]*?(?:shop|store|supermarket|mart))\b`)
	reCustEditZH = regexp.MustCompile(`(?:改成|改为|换成)([\p{Han}A-Za-z0-9]+?(?:便利店|超市|批发部|商行|商店|小卖部|店))`)
)

var editKeywordsZH = []string{"改成", "改为", "换成", "修改", "改到"}

var entitySuffixes = []string{
	"shop", "store", "supermarket", "mart",
	"便利店", "超市", "批发部", "商行", "商店", "小卖部", "店",
}

type pair struct {
	quantity int
	product  string
}

// extractCustomer pulls a customer name from a creation utterance: a
// name immediately followed by an entity suffix, introduced by for/给.
func extractCustomer(utterance string) string {
	if m := reCustomerZH.FindStringSubmatch(utterance); m != nil {
		return m[1]
	}
	if m := reCustomerEN.FindStringSubmatch(utterance); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// extractCarrier pulls a logistics carrier from a via/用…发货 clause.
func extractCarrier(utterance string) string {
	if m := reCarrierZH.FindStringSubmatch(utterance); m != nil {
		return m[1]
	}
	if m := reCarrierEN.FindStringSubmatch(utterance); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// extractPairs scans for quantity+product pairs. Customer and carrier
// clauses are stripped first so tracking numbers and shop names never
// leak into line items; the remainder is split into comma/and segments
// and each segment contributes at most one pair.
func extractPairs(utterance string) []pair {
	stripped := utterance
	for _, re := range []*regexp.Regexp{reCustomerZH, reCustomerEN, reCarrierZH, reCarrierEN} {
		stripped = re.ReplaceAllString(stripped, "，")
	}

	var out []pair
	for _, seg := range reSegment.Split(stripped, -1) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		m := rePairZH.FindStringSubmatch(seg)
		if m == nil {
			m = rePairEN.FindStringSubmatch(seg)
		}
		if m == nil {
			continue
		}
		qty, err := strconv.Atoi(m[1])
		if err != nil || qty < 0 {
			continue
		}
		product := strings.TrimSpace(m[2])
		if product == "" {
			continue
		}
		out = append(out, pair{quantity: qty, product: product})
	}
	return out
}

func hasEditKeyword(utterance string) bool {
	if reEditEN.MatchString(utterance) {
		return true
	}
	for _, kw := range editKeywordsZH {
		if strings.Contains(utterance, kw) {
			return true
		}
	}
	return false
}

// applyQuantityEdits sets quantities on items the utterance mentions.
// For each mentioned item the first integer after the mention wins;
// with no integer after, the nearest one before it is used. Items the
// draft does not already hold are never created here.
func applyQuantityEdits(utterance string, draft *receipt.Draft) bool {
	low := strings.ToLower(utterance)
	ints := reInteger.FindAllStringIndex(low, -1)
	if len(ints) == 0 {
		return false
	}

	changed := false
	for i := range draft.Items {
		ms, me, ok := mentionSpan(low, draft.Items[i].ProductName)
		if !ok {
			continue
		}
		qty, ok := pickQuantity(low, ints, ms, me)
		if !ok {
			continue
		}
		draft.Items[i].Quantity = qty
		changed = true
	}
	return changed
}

// pickQuantity chooses the integer governing a mention at [ms,me).
func pickQuantity(low string, ints [][]int, ms, me int) (int, bool) {
	after := -1
	before := -1
	for _, span := range ints {
		if span[0] >= me {
			after = span[0]
			break
		}
		if span[1] <= ms {
			before = span[0] // keep the nearest preceding one
		}
	}
	at := after
	if at < 0 {
		at = before
	}
	if at < 0 {
		return 0, false
	}
	m := reInteger.FindString(low[at:])
	qty, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return qty, true
}

// mentionSpan locates a product mention in the lowercased utterance.
// Full name first; failing that, the longest window of the product
// name found in the utterance, so a spoken 可乐 still addresses the
// 可口可乐 line. ASCII windows shorter than 4 runes are skipped to keep
// fragments like "co" from matching unrelated words.
func mentionSpan(low, product string) (int, int, bool) {
	p := strings.ToLower(strings.TrimSpace(product))
	if p == "" {
		return 0, 0, false
	}
	if i := strings.Index(low, p); i >= 0 {
		return i, i + len(p), true
	}
	runes := []rune(p)
	for size := len(runes) - 1; size >= 2; size-- {
		for off := 0; off+size <= len(runes); off++ {
			w := string(runes[off : off+size])
			if size < 4 && isASCII(w) {
				continue
			}
			if i := strings.Index(low, w); i >= 0 {
				return i, i + len(w), true
			}
		}
	}
	return 0, 0, false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// extractCustomerEdit matches the customer sub-rule: a quoted name
// (with a customer cue or an entity suffix, so quoted product names do
// not rename the customer) or a change-to-<name><suffix> pattern.
func extractCustomerEdit(utterance string) (string, bool) {
	if m := reQuoted.FindStringSubmatch(utterance); m != nil {
		name := strings.TrimSpace(m[1])
		if name != "" && (hasCustomerCue(utterance) || hasEntitySuffix(name)) {
			return name, true
		}
	}
	if m := reCustEditZH.FindStringSubmatch(utterance); m != nil {
		return m[1], true
	}
	if m := reCustEditEN.FindStringSubmatch(utterance); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

func hasCustomerCue(utterance string) bool {
	return strings.Contains(strings.ToLower(utterance), "customer") ||
		strings.Contains(utterance, "客户")
}

func hasEntitySuffix(name string) bool {
	low := strings.ToLower(name)
	for _, suf := range entitySuffixes {
		if strings.HasSuffix(low, suf) {
			return true
		}
	}
	return false
}
