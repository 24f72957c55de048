package extractor

import "strconv"

var digitValues = map[rune]float64{
	'零': 0, '一': 1, '二': 2, '两': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

var placeValues = map[rune]float64{
	'十': 10, '百': 100, '千': 1000,
}

// ParseQuantity converts an Arabic or Chinese numeral string to a number.
// Chinese numerals accumulate by place value, so 三百二十五 is 325 and 十五
// is 15. Returns ok=false when the text is not a recognizable quantity.
func ParseQuantity(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}

	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return v, true
	}

	var total, current float64
	seen := false
	for _, r := range text {
		if d, ok := digitValues[r]; ok {
			current = d
			seen = true
			continue
		}
		if p, ok := placeValues[r]; ok {
			// Bare place value, as in 十五: treat the place as 1×place.
			if current == 0 {
				current = 1
			}
			total += current * p
			current = 0
			seen = true
			continue
		}
		return 0, false
	}
	if !seen {
		return 0, false
	}
	return total + current, true
}
