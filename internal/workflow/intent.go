package workflow

import "strings"

// intentKeywords maps the lowercased leading keyword of an analysis input to
// its workflow kind. English and Chinese keywords are both accepted.
var intentKeywords = map[string]Kind{
	"company":       KindCompany,
	"公司":            KindCompany,
	"industry":      KindIndustry,
	"行业":            KindIndustry,
	"macroeconomic": KindMacroeconomic,
	"宏观经济":          KindMacroeconomic,
}

// Intent classifies input by its first whitespace-delimited token and returns
// the kind plus the remaining words joined by single spaces. Unrecognized or
// empty input yields KindUnknown.
func Intent(input string) (Kind, string) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return KindUnknown, ""
	}

	kind, ok := intentKeywords[strings.ToLower(fields[0])]
	if !ok {
		return KindUnknown, strings.Join(fields[1:], " ")
	}
	return kind, strings.Join(fields[1:], " ")
}
