package convo

import (
	"regexp"
	"strconv"
	"strings"
)

var cancelWords = []string{
	"отмена", "отменить", "стоп", "cancel", "stop", "выход", "меню",
}

// isCancelWord reports whether the message aborts the in-flight flow.
func isCancelWord(text string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	for _, w := range cancelWords {
		if lowered == w || lowered == "/"+w {
			return true
		}
	}
	return false
}

var vagueAddresses = []string{
	"у дома", "как обычно", "туда же", "там же", "домой", "сюда", "на место",
}

// isVagueAddress rejects addresses a courier cannot navigate by.
func isVagueAddress(text string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if len([]rune(lowered)) < 5 {
		return true
	}
	for _, v := range vagueAddresses {
		if lowered == v {
			return true
		}
	}
	return false
}

var priceRe = regexp.MustCompile(`\d+`)

// parsePrice extracts a positive integer price from free-form input.
func parsePrice(text string) (int64, bool) {
	match := priceRe.FindString(text)
	if match == "" {
		return 0, false
	}
	price, err := strconv.ParseInt(match, 10, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}

var routeSeps = []string{"—", " - ", "-", "\n", ">", "→"}

// parseRoute splits free-form route input into pickup and destination.
func parseRoute(text string) (from, to string, ok bool) {
	trimmed := strings.TrimSpace(text)
	for _, sep := range routeSeps {
		if parts := strings.SplitN(trimmed, sep, 2); len(parts) == 2 {
			from = strings.TrimSpace(parts[0])
			to = strings.TrimSpace(parts[1])
			if from != "" && to != "" {
				return from, to, true
			}
		}
	}
	return "", "", false
}

// matchOption maps a reply to one of the numbered options offered in the
// previous prompt, by number or by text prefix.
func matchOption(text string, options ...string) int {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return -1
	}
	if n, err := strconv.Atoi(lowered); err == nil {
		if n >= 1 && n <= len(options) {
			return n - 1
		}
		return -1
	}
	for i, opt := range options {
		if strings.HasPrefix(strings.ToLower(opt), lowered) || strings.Contains(lowered, strings.ToLower(opt)) {
			return i
		}
	}
	return -1
}

// isAffirmative recognises confirmation replies.
func isAffirmative(text string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	switch lowered {
	case "да", "ок", "подтверждаю", "подтвердить", "согласен", "согласна", "yes", "1", "+":
		return true
	}
	return false
}

// isNegative recognises refusal replies.
func isNegative(text string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	switch lowered {
	case "нет", "не надо", "отказ", "no", "2", "-":
		return true
	}
	return false
}
