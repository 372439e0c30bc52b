package processor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExcerptLimit 摘要最多保留的字符数（按 rune），截断时再追加 Ellipsis
const (
	ExcerptLimit = 150
	Ellipsis     = "..."
)

// 块级元素之后补一个空格，避免 <p>a</p><p>b</p> 粘成 "ab"
const blockSelector = "p, div, br, li, h1, h2, h3, h4, h5, h6, tr, td, th, blockquote, pre, section, article, figure, figcaption"

// stripHTML 去掉标签并解码实体，只保留正文文本
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return htmlTagRe.ReplaceAllString(s, " ")
	}
	doc.Find("script, style, noscript, template").Remove()
	doc.Find(blockSelector).AfterHtml(" ")
	return doc.Text()
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

var (
	codeFenceRe  = regexp.MustCompile("(?s)```.*?```")
	headingRe    = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]*`)
	mdImageRe    = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLinkRe     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	inlineCodeRe = regexp.MustCompile("`([^`]*)`")
	emphasisRe   = regexp.MustCompile(`(\*\*|__|~~)`)
	blockquoteRe = regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`)
	listMarkerRe = regexp.MustCompile(`(?m)^[ \t]*(?:[-*+]|\d+\.)[ \t]+`)
	qiitaNoteRe  = regexp.MustCompile(`(?m)^:::.*$`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// stripMarkdown 去掉 Markdown 语法：代码块整体删除，标题符号、链接、强调等只保留文字
func stripMarkdown(s string) string {
	s = codeFenceRe.ReplaceAllString(s, " ")
	s = headingRe.ReplaceAllString(s, "")
	s = mdImageRe.ReplaceAllString(s, "")
	s = mdLinkRe.ReplaceAllString(s, "$1")
	s = inlineCodeRe.ReplaceAllString(s, "$1")
	s = emphasisRe.ReplaceAllString(s, "")
	s = blockquoteRe.ReplaceAllString(s, "")
	s = listMarkerRe.ReplaceAllString(s, "")
	s = qiitaNoteRe.ReplaceAllString(s, "")
	return s
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// truncateRunes 按 rune 截断，超长时追加省略号；返回值第二项表示是否发生截断
func truncateRunes(s string, limit int) (string, bool) {
	rs := []rune(s)
	if len(rs) <= limit {
		return s, false
	}
	return strings.TrimRight(string(rs[:limit]), " ") + Ellipsis, true
}

// firstImageRe 取正文里第一张图片的地址
var firstImageRe = regexp.MustCompile(`(?i)<img[^>]+src\s*=\s*["']([^"']+)["']`)

func firstImage(html string) string {
	m := firstImageRe.FindStringSubmatch(html)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}
