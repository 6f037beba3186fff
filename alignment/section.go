package alignment

import (
	"regexp"
	"strconv"
	"strings"
)

var sectionNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d+(?:\.\d+)*)\b`),
	regexp.MustCompile(`(?i)(?:Article|Section|Clause)\s*(\d+)`),
	regexp.MustCompile(`第([一二三四五六七八九十百零〇两\d]+)条`),
}

// extractSectionNumbers returns the section numbers referenced in text, in
// pattern order. CJK numerals are converted to Arabic digits so "第三条"
// compares equal to "3".
func extractSectionNumbers(text string) []string {
	if text == "" {
		return nil
	}
	var numbers []string
	for _, re := range sectionNumberPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m) < 2 || m[1] == "" {
				continue
			}
			numbers = append(numbers, arabicSectionNumber(m[1]))
		}
	}
	return numbers
}

var cjkDigits = map[rune]int{
	'零': 0, '〇': 0, '一': 1, '二': 2, '两': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

// arabicSectionNumber converts numerals such as "十二" or "一百零五" to digits.
// Inputs that already hold digits, or that cannot be parsed, are returned as is.
func arabicSectionNumber(s string) string {
	if _, err := strconv.Atoi(s); err == nil {
		return s
	}
	if strings.ContainsAny(s, "0123456789") {
		return s
	}
	total, current := 0, 0
	for _, r := range s {
		switch r {
		case '十':
			if current == 0 {
				current = 1
			}
			total += current * 10
			current = 0
		case '百':
			if current == 0 {
				current = 1
			}
			total += current * 100
			current = 0
		default:
			d, ok := cjkDigits[r]
			if !ok {
				return s
			}
			current = d
		}
	}
	return strconv.Itoa(total + current)
}

// sectionNumberScore compares two sets of section numbers: 0.75 for an exact
// match, 0.65 when one is a parent section of the other, otherwise 0.
func sectionNumberScore(termNumbers, clauseNumbers []string) float64 {
	best := 0.0
	for _, tn := range termNumbers {
		for _, cn := range clauseNumbers {
			switch {
			case tn == cn:
				return 0.75
			case isSectionPrefix(tn, cn) || isSectionPrefix(cn, tn):
				best = 0.65
			}
		}
	}
	return best
}

func isSectionPrefix(parent, child string) bool {
	return strings.HasPrefix(child, parent+".")
}
