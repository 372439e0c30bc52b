package collector

import (
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const ogMaxBodyBytes = 1 << 20 // 1MB，只需要 <head>

// OGImageResolver 读取文章页的 og:image，给没有缩略图的文章补图
type OGImageResolver struct {
	Timeout time.Duration
}

func NewOGImageResolver(timeout time.Duration) *OGImageResolver {
	return &OGImageResolver{Timeout: timeout}
}

// Resolve 返回页面声明的 og:image（已转为绝对地址）；页面没有声明时返回空串
func (r *OGImageResolver) Resolve(pageURL string) (string, error) {
	if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
		return "", fmt.Errorf("ogimage: not an absolute url: %q", pageURL)
	}

	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.MaxBodySize(ogMaxBodyBytes),
	)
	if r.Timeout > 0 {
		c.SetRequestTimeout(r.Timeout)
	}

	var image string
	pick := func(e *colly.HTMLElement) {
		content := strings.TrimSpace(e.Attr("content"))
		if image == "" && content != "" {
			image = e.Request.AbsoluteURL(content)
		}
	}
	// 回调按注册顺序执行：og:image 优先，其次 twitter:image
	c.OnHTML(`meta[property="og:image"]`, pick)
	c.OnHTML(`meta[name="twitter:image"]`, pick)

	if err := c.Visit(pageURL); err != nil {
		return "", fmt.Errorf("ogimage: visit %s: %w", pageURL, err)
	}
	return image, nil
}
