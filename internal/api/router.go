package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/LJTian/ArticleHub/internal/aggregator"
	"github.com/LJTian/ArticleHub/internal/cache"
	"github.com/LJTian/ArticleHub/internal/processor"
	"github.com/gin-gonic/gin"
)

const (
	cacheControlOK    = "public, max-age=3600, stale-while-revalidate=7200"
	cacheControlError = "no-cache"
)

// BatchSource 提供当前批次，由 cache.Cache 实现
type BatchSource interface {
	Get(ctx context.Context) (*aggregator.Batch, cache.Status, error)
}

type Server struct {
	source BatchSource
	now    func() time.Time
}

func NewServer(source BatchSource) *Server {
	return &Server{source: source, now: time.Now}
}

type articlesResponse struct {
	Success   bool                `json:"success"`
	Articles  []processor.Article `json:"articles"`
	Count     int                 `json:"count"`
	Timestamp string              `json:"timestamp"`
	Error     string              `json:"error,omitempty"`
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	for _, path := range []string{"/api/articles", "/api/v1/articles"} {
		r.GET(path, s.listArticles)
		r.OPTIONS(path, s.preflight)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) preflight(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
	c.Status(http.StatusOK)
}

// listArticles 所有数据源都失败时仍返回 200 + 空数组；只有内部异常才返回 500，且不带具体错误
func (s *Server) listArticles(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	defer func() {
		if r := recover(); r != nil {
			log.Printf("api: list articles panic: %v", r)
			s.internalError(c)
		}
	}()

	batch, status, err := s.source.Get(c.Request.Context())
	if err != nil || batch == nil {
		log.Printf("api: list articles: %v", err)
		s.internalError(c)
		return
	}

	articles := batch.Articles
	if articles == nil {
		articles = []processor.Article{}
	}

	c.Header("Cache-Control", cacheControlOK)
	c.Header("X-Cache", string(status))
	c.JSON(http.StatusOK, articlesResponse{
		Success:   true,
		Articles:  articles,
		Count:     len(articles),
		Timestamp: batch.GeneratedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) internalError(c *gin.Context) {
	c.Header("Cache-Control", cacheControlError)
	c.AbortWithStatusJSON(http.StatusInternalServerError, articlesResponse{
		Success:   false,
		Articles:  []processor.Article{},
		Count:     0,
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Error:     "internal server error",
	})
}
