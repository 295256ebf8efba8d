// Package pagerange turns human page selectors such as "1-3,5" into
// zero-based page indices.
//
// Parse is permissive: malformed or out-of-range fragments are dropped and
// the rest of the selector still applies. ParseStrict reports the first bad
// fragment instead.
package pagerange

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Parse returns the ascending, de-duplicated zero-based indices selected by
// selector in a document of total pages. An empty selector selects every page.
func Parse(selector string, total int) []int {
	pages, _ := parse(selector, total, false)
	return pages
}

// ParseStrict is Parse, except that any fragment which is not a number or a
// closed a-b range, or which falls completely outside 1..total, is an error.
func ParseStrict(selector string, total int) ([]int, error) {
	return parse(selector, total, true)
}

func parse(selector string, total int, strict bool) ([]int, error) {
	if total <= 0 {
		return nil, nil
	}
	selector = strings.TrimSpace(selector)
	if selector == "" {
		all := make([]int, total)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}

	set := make(map[int]struct{})
	for _, token := range strings.Split(selector, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		if strings.Contains(token, "-") {
			lo, hi, ok := splitRange(token)
			if !ok {
				if strict {
					return nil, fmt.Errorf("invalid page range %q", token)
				}
				continue
			}
			lo = max(lo, 1)
			hi = min(hi, total)
			if strict && lo > hi {
				return nil, fmt.Errorf("page range %q is outside 1-%d", token, total)
			}
			for p := lo; p <= hi; p++ {
				set[p-1] = struct{}{}
			}
			continue
		}

		p, err := strconv.Atoi(token)
		if err != nil {
			if strict {
				return nil, fmt.Errorf("invalid page number %q", token)
			}
			continue
		}
		if p < 1 || p > total {
			if strict {
				return nil, fmt.Errorf("page %d is outside 1-%d", p, total)
			}
			continue
		}
		set[p-1] = struct{}{}
	}

	pages := make([]int, 0, len(set))
	for p := range set {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages, nil
}

func splitRange(token string) (int, int, bool) {
	a, b, found := strings.Cut(token, "-")
	if !found {
		return 0, 0, false
	}
	lo, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, false
	}
	hi, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// Format renders zero-based indices as one-based page numbers, one string
// per page, in the form pdfcpu page selection takes: [0 1 2 4] becomes
// ["1" "2" "3" "5"].
func Format(pages []int) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = strconv.Itoa(p + 1)
	}
	return out
}
