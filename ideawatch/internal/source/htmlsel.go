// CLAUDE:SUMMARY Small CSS-subset selector engine over golang.org/x/net/html used by HTML sources.
package source

import (
	"strings"

	"golang.org/x/net/html"
)

// Supported selectors (space = descendant combinator):
//   - tag, .class, #id, tag.class, tag#id
//   - [attr], [attr=val], [attr*=val] (case-insensitive substring), [attr^=val]
//   - several attribute blocks on one part: div[class*=product][class*=item]

// selectAll returns all nodes under root (root included) matching selector.
func selectAll(root *html.Node, selector string) []*html.Node {
	parts := strings.Fields(selector)
	if len(parts) == 0 || root == nil {
		return nil
	}
	matches := matchSimple(root, parts[0])
	for i := 1; i < len(parts); i++ {
		var next []*html.Node
		seen := make(map[*html.Node]bool)
		for _, parent := range matches {
			for c := parent.FirstChild; c != nil; c = c.NextSibling {
				for _, n := range matchSimple(c, parts[i]) {
					if !seen[n] {
						seen[n] = true
						next = append(next, n)
					}
				}
			}
		}
		matches = next
	}
	return matches
}

// selectFirst returns the first match of any selector, tried in order.
func selectFirst(root *html.Node, selectors ...string) *html.Node {
	for _, sel := range selectors {
		if m := selectAll(root, sel); len(m) > 0 {
			return m[0]
		}
	}
	return nil
}

func matchSimple(root *html.Node, sel string) []*html.Node {
	m := parseSimpleSelector(sel)
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if matchesSelector(n, m) {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}

type attrCond struct {
	key string
	op  string // "", "=", "*=", "^="
	val string
}

type simpleSelector struct {
	tag   string
	id    string
	class string
	attrs []attrCond
}

func parseSimpleSelector(sel string) simpleSelector {
	var s simpleSelector

	for {
		open := strings.IndexByte(sel, '[')
		if open < 0 {
			break
		}
		end := strings.IndexByte(sel[open:], ']')
		if end < 0 {
			end = len(sel) - open
		}
		s.attrs = append(s.attrs, parseAttrCond(sel[open+1:open+end]))
		if open+end+1 > len(sel) {
			sel = sel[:open]
		} else {
			sel = sel[:open] + sel[open+end+1:]
		}
	}

	if idx := strings.IndexByte(sel, '#'); idx >= 0 {
		s.id = sel[idx+1:]
		sel = sel[:idx]
	}
	if idx := strings.IndexByte(sel, '.'); idx >= 0 {
		s.class = sel[idx+1:]
		sel = sel[:idx]
	}
	s.tag = sel
	return s
}

func parseAttrCond(part string) attrCond {
	for _, op := range []string{"*=", "^=", "="} {
		if idx := strings.Index(part, op); idx >= 0 {
			return attrCond{key: part[:idx], op: op, val: strings.Trim(part[idx+len(op):], `"'`)}
		}
	}
	return attrCond{key: part}
}

func matchesSelector(n *html.Node, s simpleSelector) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && n.Data != s.tag {
		return false
	}
	if s.id != "" && getAttr(n, "id") != s.id {
		return false
	}
	if s.class != "" {
		found := false
		for _, c := range strings.Fields(getAttr(n, "class")) {
			if c == s.class {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, a := range s.attrs {
		if !hasAttr(n, a.key) {
			return false
		}
		val := getAttr(n, a.key)
		switch a.op {
		case "=":
			if val != a.val {
				return false
			}
		case "*=":
			if !strings.Contains(strings.ToLower(val), strings.ToLower(a.val)) {
				return false
			}
		case "^=":
			if !strings.HasPrefix(val, a.val) {
				return false
			}
		}
	}
	return true
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

// textOf returns the whitespace-collapsed text content of n.
func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
