package collector

import "github.com/LJTian/ArticleHub/internal/config"

// FromConfig 按配置注册数据源；顺序固定为 Zenn、Qiita、note，合并结果依赖这个顺序
func FromConfig(s config.SourcesConfig) []Fetcher {
	var fetchers []Fetcher

	if s.Zenn.Enabled {
		fetchers = append(fetchers, &ZennFetcher{
			FeedURL:  s.Zenn.FeedURL,
			MaxItems: s.Zenn.MaxItems,
			Timeout:  s.Zenn.Timeout,
		})
	}
	if s.Qiita.Enabled {
		fetchers = append(fetchers, &QiitaFetcher{
			APIBase:  s.Qiita.APIBase,
			Username: s.Qiita.Username,
			Token:    s.Qiita.Token,
			MaxItems: s.Qiita.MaxItems,
			Timeout:  s.Qiita.Timeout,
		})
	}
	if s.Note.Enabled {
		n := &NoteFetcher{
			FeedURL:  s.Note.FeedURL,
			Mode:     s.Note.Mode,
			MaxItems: s.Note.MaxItems,
			Timeout:  s.Note.Timeout,
		}
		if s.Note.ProxyURL != "" {
			n.Proxy = NewProxyResolver(s.Note.ProxyURL)
		}
		fetchers = append(fetchers, n)
	}

	return fetchers
}
