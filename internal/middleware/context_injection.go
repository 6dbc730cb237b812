package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"leadpipeline/internal/queue"
	"leadpipeline/internal/repositories"
)

// InjectDB attaches the gorm handle to each request's gin context.
func InjectDB(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("db", db)
		c.Next()
	}
}

func InjectRedis(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("redis", rdb)
		c.Next()
	}
}

func InjectRepos(repos *repositories.Repositories) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("repos", repos)
		c.Next()
	}
}

func InjectQueue(q *queue.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("queue", q)
		c.Next()
	}
}

func Repos(c *gin.Context) *repositories.Repositories {
	return c.MustGet("repos").(*repositories.Repositories)
}

func Queue(c *gin.Context) *queue.Manager {
	return c.MustGet("queue").(*queue.Manager)
}
