// Package extractor pulls partner, product, and price entities out of raw
// utterance text using a refreshable name dictionary plus regex templates.
// Extraction never fails: anything unrecognized is simply absent from the
// result.
package extractor

import (
	"regexp"
	"strings"

	"shop-assistant/internal/models"
)

const (
	dictProductConfidence  = 0.9
	regexProductConfidence = 0.7
	dictPartnerConfidence  = 0.95
	regexPartnerConfidence = 0.75

	// Runes scanned on each side of a matched product name when looking for
	// its quantity and unit.
	quantityWindow = 10

	defaultUnit = "个"
)

const unitClass = `瓶|包|箱|斤|个|盒|条|袋|件|听|桶|提|打|杯|支|根`

var (
	qtyUnitPattern = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?|[零一二两三四五六七八九十百千]+)(` + unitClass + `)`)

	// Fallback product templates: [qty][unit][name] and [name][qty][unit].
	qtyUnitNamePattern = regexp.MustCompile(`([0-9]+|[一二两三四五六七八九十百千]+)(` + unitClass + `)([\p{Han}A-Za-z0-9]{1,6})`)
	nameQtyUnitPattern = regexp.MustCompile(`([\p{Han}A-Za-z]{1,6}?)([0-9]+|[一二两三四五六七八九十百千]+)(` + unitClass + `)`)

	// Partner templates, tried in order.
	partnerPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:隔壁|对面|楼下|楼上|街口|村口)的?[\p{Han}]{1,4}`),
		regexp.MustCompile(`[\p{Han}]{1,3}(?:家|店|超市|商店|饭店|餐馆)`),
		regexp.MustCompile(`(?:老|小)[\p{Han}]{1,2}`),
		regexp.MustCompile(`[\p{Han}]{1,2}(?:叔|姨|哥|姐|婶|伯|爷|奶|嫂)`),
	}

	// Price passes, collected without cross-pattern dedup.
	priceYuanPattern     = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)[块元](?:钱)?`)
	priceYuanJiaoPattern = regexp.MustCompile(`([0-9]+)块([0-9])(?:毛)?`)
	priceJiaoPattern     = regexp.MustCompile(`([0-9]+)毛`)
)

var pronounBlacklist = map[string]bool{
	"我": true, "你": true, "他": true, "她": true, "它": true,
	"我们": true, "你们": true, "他们": true, "它们": true,
	"这个": true, "那个": true, "什么": true, "这些": true, "那些": true,
}

// Common single-character surnames; a two-rune fallback token starting with
// one of these reads as a person name, not a product.
var surnameRunes = map[rune]bool{
	'赵': true, '钱': true, '孙': true, '李': true, '周': true, '吴': true,
	'郑': true, '王': true, '张': true, '刘': true, '陈': true, '杨': true,
	'黄': true, '林': true, '何': true, '罗': true, '高': true, '马': true,
}

// Extractor recognizes entities against the current dictionary snapshot.
type Extractor struct {
	dict *dictionary
}

// New builds an Extractor seeded with an initial snapshot (nil for empty).
func New(initial *Snapshot) *Extractor {
	return &Extractor{dict: newDictionary(initial)}
}

// Refresh atomically swaps in a new dictionary snapshot.
func (e *Extractor) Refresh(s *Snapshot) {
	e.dict.swap(s)
}

// Snapshot returns the dictionary snapshot currently in use.
func (e *Extractor) Snapshot() *Snapshot {
	return e.dict.snapshot()
}

// ExtractAll extracts products, the partner, and prices from text.
func (e *Extractor) ExtractAll(text string) models.Entities {
	snap := e.dict.snapshot()

	products := e.extractProducts(text, snap)
	partner := e.extractPartner(text, snap)
	prices := extractPrices(text)

	return models.Entities{
		Products: products,
		Partner:  partner,
		Prices:   prices,
	}
}

func (e *Extractor) extractProducts(text string, snap *Snapshot) []models.ProductEntity {
	lower := strings.ToLower(text)
	runes := []rune(lower)

	var found []models.ProductEntity

	// Dictionary containment first; entries are ordered longest first.
	for _, entry := range snap.Products() {
		name := strings.ToLower(entry.Name)
		byteIdx := strings.Index(lower, name)
		if byteIdx < 0 {
			continue
		}
		start := len([]rune(lower[:byteIdx]))
		end := start + len([]rune(name))

		qty, unit := quantityNear(runes, start, end)
		found = append(found, models.ProductEntity{
			Name:       entry.Name,
			ProductID:  entry.ID,
			Quantity:   qty,
			Unit:       unit,
			Confidence: dictProductConfidence,
		})
	}

	if len(found) == 0 {
		found = fallbackProducts(text)
	}

	return dedupeProducts(found)
}

// quantityNear looks for a quantity+unit pair inside the window around a
// matched name, preferring the closest pair before the name.
func quantityNear(runes []rune, start, end int) (float64, string) {
	from := start - quantityWindow
	if from < 0 {
		from = 0
	}
	before := string(runes[from:start])

	if ms := qtyUnitPattern.FindAllStringSubmatch(before, -1); len(ms) > 0 {
		m := ms[len(ms)-1]
		if qty, ok := ParseQuantity(m[1]); ok && qty > 0 {
			return qty, m[2]
		}
	}

	to := end + quantityWindow
	if to > len(runes) {
		to = len(runes)
	}
	after := string(runes[end:to])

	if m := qtyUnitPattern.FindStringSubmatch(after); m != nil {
		if qty, ok := ParseQuantity(m[1]); ok && qty > 0 {
			return qty, m[2]
		}
	}

	return 1, defaultUnit
}

// fallbackProducts applies the two regex templates when the dictionary
// matched nothing.
func fallbackProducts(text string) []models.ProductEntity {
	var found []models.ProductEntity

	for _, m := range qtyUnitNamePattern.FindAllStringSubmatch(text, -1) {
		qty, ok := ParseQuantity(m[1])
		if !ok || qty <= 0 || !plausibleProductName(m[3]) {
			continue
		}
		found = append(found, models.ProductEntity{
			Name:       m[3],
			Quantity:   qty,
			Unit:       m[2],
			Confidence: regexProductConfidence,
		})
	}

	if len(found) > 0 {
		return found
	}

	for _, m := range nameQtyUnitPattern.FindAllStringSubmatch(text, -1) {
		qty, ok := ParseQuantity(m[2])
		if !ok || qty <= 0 || !plausibleProductName(m[1]) {
			continue
		}
		found = append(found, models.ProductEntity{
			Name:       m[1],
			Quantity:   qty,
			Unit:       m[3],
			Confidence: regexProductConfidence,
		})
	}

	return found
}

var pronounRunes = map[rune]bool{
	'我': true, '你': true, '他': true, '她': true, '它': true,
	'这': true, '那': true, '啥': true, '谁': true,
}

// plausibleProductName rejects pronouns and short surname-like tokens that
// the loose templates tend to capture.
func plausibleProductName(name string) bool {
	if pronounBlacklist[name] {
		return false
	}
	runes := []rune(name)
	if len(runes) < 2 {
		return false
	}
	for _, r := range runes {
		if pronounRunes[r] {
			return false
		}
	}
	if len(runes) == 2 && surnameRunes[runes[0]] {
		return false
	}
	return true
}

func dedupeProducts(products []models.ProductEntity) []models.ProductEntity {
	if len(products) == 0 {
		return nil
	}

	byName := make(map[string]models.ProductEntity)
	var order []string
	for _, p := range products {
		key := strings.ToLower(p.Name)
		existing, ok := byName[key]
		if !ok {
			byName[key] = p
			order = append(order, key)
			continue
		}
		if p.Confidence > existing.Confidence {
			byName[key] = p
		}
	}

	result := make([]models.ProductEntity, 0, len(order))
	for _, key := range order {
		result = append(result, byName[key])
	}
	return result
}

func (e *Extractor) extractPartner(text string, snap *Snapshot) *models.PartnerEntity {
	lower := strings.ToLower(text)

	for _, entry := range snap.Partners() {
		if strings.Contains(lower, strings.ToLower(entry.Name)) {
			return &models.PartnerEntity{
				Name:       entry.Name,
				PartnerID:  entry.ID,
				Level:      entry.Level,
				Confidence: dictPartnerConfidence,
			}
		}
	}

	for _, p := range partnerPatterns {
		m := p.FindString(text)
		if m == "" {
			continue
		}
		if !plausiblePartnerName(m, snap) {
			continue
		}
		return &models.PartnerEntity{
			Name:       m,
			Confidence: regexPartnerConfidence,
		}
	}

	return nil
}

// plausiblePartnerName requires 2-6 runes and rejects anything that reads as
// a product.
func plausiblePartnerName(name string, snap *Snapshot) bool {
	runes := []rune(name)
	if len(runes) < 2 || len(runes) > 6 {
		return false
	}
	if snap.HasProduct(name) {
		return false
	}
	if qtyUnitPattern.MatchString(name) {
		return false
	}
	return true
}

func extractPrices(text string) []models.PriceEntity {
	var prices []models.PriceEntity

	for _, m := range priceYuanPattern.FindAllStringSubmatch(text, -1) {
		if v, ok := ParseQuantity(m[1]); ok {
			prices = append(prices, models.PriceEntity{Value: v, Unit: "元", Context: m[0]})
		}
	}

	// X块Y reads as X.Y yuan.
	for _, m := range priceYuanJiaoPattern.FindAllStringSubmatch(text, -1) {
		whole, okW := ParseQuantity(m[1])
		tenth, okT := ParseQuantity(m[2])
		if okW && okT {
			prices = append(prices, models.PriceEntity{Value: whole + tenth/10, Unit: "元", Context: m[0]})
		}
	}

	for _, m := range priceJiaoPattern.FindAllStringSubmatch(text, -1) {
		if v, ok := ParseQuantity(m[1]); ok {
			prices = append(prices, models.PriceEntity{Value: v / 10, Unit: "元", Context: m[0]})
		}
	}

	return prices
}
