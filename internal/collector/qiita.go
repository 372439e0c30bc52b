package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// QiitaFetcher 通过 Qiita v2 REST 接口拉取用户文章
type QiitaFetcher struct {
	APIBase  string
	Username string
	// Token 可选，带上后速率限制更宽松
	Token    string
	MaxItems int
	Timeout  time.Duration
	Client   *http.Client
}

func (q *QiitaFetcher) Name() string {
	return "qiita_api"
}

func (q *QiitaFetcher) Platform() Platform {
	return PlatformQiita
}

func (q *QiitaFetcher) Fetch(ctx context.Context) ([]RawItem, error) {
	log.Printf("qiita: fetch items of %s ...", q.Username)

	if q.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.listURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("qiita: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if q.Token != "" {
		req.Header.Set("Authorization", "Bearer "+q.Token)
	}

	client := q.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qiita: list items: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qiita: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("qiita: read items: %w", err)
	}

	// 顶层必须是数组，否则整批作废；单条解析失败只跳过该条
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("qiita: unmarshal items: %w", err)
	}

	if len(raws) > q.MaxItems {
		raws = raws[:q.MaxItems]
	}

	results := make([]RawItem, 0, len(raws))
	for i, raw := range raws {
		var it QiitaItem
		if err := json.Unmarshal(raw, &it); err != nil {
			log.Printf("qiita: skip malformed item #%d: %v", i, err)
			continue
		}
		if it.ID == "" && it.URL == "" && it.Title == "" {
			log.Printf("qiita: skip empty item #%d", i)
			continue
		}
		results = append(results, RawItem{Platform: PlatformQiita, Index: len(results), Qiita: &it})
	}

	if len(results) == 0 {
		log.Println("qiita: no items fetched")
	}
	return results, nil
}

// qiitaMaxPerPage 为接口允许的 per_page 上限
const qiitaMaxPerPage = 100

func (q *QiitaFetcher) listURL() string {
	perPage := q.MaxItems
	if perPage > qiitaMaxPerPage {
		perPage = qiitaMaxPerPage
	}
	v := url.Values{}
	v.Set("page", "1")
	v.Set("per_page", strconv.Itoa(perPage))
	return strings.TrimRight(q.APIBase, "/") + "/users/" + url.PathEscape(q.Username) + "/items?" + v.Encode()
}
