package processor

import "regexp"

// Category 文章主题分类
type Category string

const (
	CategoryAI       Category = "ai"
	CategoryImageGen Category = "image-generation"
	CategoryPrompt   Category = "prompt"
	CategoryScraping Category = "scraping"
	CategoryFrontend Category = "frontend"
	CategoryBackend  Category = "backend"
	CategoryInfra    Category = "infra"
	CategoryOther    Category = "other"
)

type categoryRule struct {
	Category Category
	Pattern  *regexp.Regexp
}

// categoryRules 顺序即优先级，命中第一组即返回；调整顺序会改变分类结果
var categoryRules = []categoryRule{
	{CategoryAI, regexp.MustCompile(`(?i)\b(?:ai|ml|llm|llms|gpt[-\w.]*|chatgpt|openai|claude|gemini|copilot|langchain|rag|machine learning|deep learning|neural|transformer)\b|生成ai|機械学習|深層学習|人工知能|大規模言語モデル`)},
	{CategoryImageGen, regexp.MustCompile(`(?i)\b(?:stable diffusion|midjourney|dall-?e|comfyui|novelai|image generation|lora|sdxl)\b|画像生成`)},
	{CategoryPrompt, regexp.MustCompile(`(?i)\bprompts?\b|prompt engineering|プロンプト`)},
	{CategoryScraping, regexp.MustCompile(`(?i)\b(?:scrap(?:e|er|ers|ing)|crawl(?:er|ers|ing)?|selenium|playwright|puppeteer|beautifulsoup|headless)\b|スクレイピング|クローラ|クローリング`)},
	{CategoryFrontend, regexp.MustCompile(`(?i)\b(?:react|vue|next\.?js|nuxt|svelte|angular|typescript|javascript|css|html|tailwind|frontend|front-end)\b|フロントエンド`)},
	{CategoryBackend, regexp.MustCompile(`(?i)\b(?:python|django|flask|fastapi|golang|rust|java|kotlin|node\.?js|php|laravel|rails|ruby|api|rest|graphql|sql|postgres(?:ql)?|mysql|database|backend|back-end)\b|go言語|バックエンド|データベース`)},
	{CategoryInfra, regexp.MustCompile(`(?i)\b(?:docker|kubernetes|k8s|aws|gcp|azure|terraform|ansible|linux|nginx|ci/cd|github actions|devops|vercel|cloudflare|infrastructure|infra|server)\b|インフラ|サーバー`)},
}

// Classify 对 title + excerpt 做大小写不敏感匹配，按优先级返回第一组命中的分类，未命中返回 other
func Classify(title, excerpt string) Category {
	text := title + " " + excerpt
	for _, r := range categoryRules {
		if r.Pattern.MatchString(text) {
			return r.Category
		}
	}
	return CategoryOther
}
