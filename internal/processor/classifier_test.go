package processor

import "testing"

func TestClassifyPriorityOrder(t *testing.T) {
	cases := []struct {
		title   string
		excerpt string
		want    Category
	}{
		// 同时命中多组时取优先级最高的一组
		{"Stable Diffusion と LLM", "画像生成の話", CategoryAI},
		{"Stable Diffusion 入門", "プロンプトの書き方", CategoryImageGen},
		{"Prompt tips", "scraping with Playwright", CategoryPrompt},
		{"Python でスクレイピング", "requests と BeautifulSoup", CategoryScraping},
		{"React hooks", "FastAPI backend", CategoryFrontend},
		{"FastAPI 入門", "Docker で動かす", CategoryBackend},
		{"Terraform で AWS", "", CategoryInfra},
		{"日記", "今日は晴れ", CategoryOther},
		{"生成AIの使い方", "", CategoryAI},
		{"CHATGPT", "", CategoryAI},
	}

	for _, c := range cases {
		if got := Classify(c.title, c.excerpt); got != c.want {
			t.Fatalf("Classify(%q, %q) = %q, want %q", c.title, c.excerpt, got, c.want)
		}
	}
}

func TestClassifyWordBoundaries(t *testing.T) {
	// "html" 含 "ml"、"explains" 含 "ai"，都不应命中 AI
	if got := Classify("HTML tips", "explains layout"); got != CategoryFrontend {
		t.Fatalf("got %q, want frontend", got)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	title, excerpt := "Kubernetes and Go", "deploying a crawler"
	first := Classify(title, excerpt)
	for i := 0; i < 100; i++ {
		if got := Classify(title, excerpt); got != first {
			t.Fatalf("classification changed between calls: %q vs %q", first, got)
		}
	}
	if first != CategoryScraping {
		t.Fatalf("got %q, want scraping", first)
	}
}
