package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
)

type postItem struct {
	PostID    string `json:"postId" binding:"required"`
	XsecToken string `json:"xsecToken" binding:"required"`
}

type batchPostRequest struct {
	Posts []postItem `json:"posts" binding:"required,min=1,max=50,dive"`
}

type crawlUserRequest struct {
	UserIDOrURL string `json:"userIdOrUrl" binding:"required"`
}

type batchUserRequest struct {
	Users []string `json:"users" binding:"required,min=1,max=50,dive,required"`
}

func (s *Server) handleCrawlPost(c *gin.Context) {
	target := models.PostTarget(c.Param("postId"), c.Query("xsec_token"))
	result, ok := s.crawlOne(c, target)
	if !ok {
		return
	}
	success(c, result.Post, "爬取成功")
}

func (s *Server) handleCrawlPostBatch(c *gin.Context) {
	var req batchPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	targets := make([]models.Target, len(req.Posts))
	for i, p := range req.Posts {
		targets[i] = models.PostTarget(p.PostID, p.XsecToken)
	}
	success(c, newBatchResponse(s.crawler.CrawlBatch(c.Request.Context(), targets)), "批量爬取完成")
}

func (s *Server) handleUserInfo(c *gin.Context) {
	s.crawlUser(c, c.Query("userIdOrUrl"))
}

func (s *Server) handleCrawlUser(c *gin.Context) {
	var req crawlUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	s.crawlUser(c, req.UserIDOrURL)
}

func (s *Server) crawlUser(c *gin.Context, ref string) {
	result, ok := s.crawlOne(c, models.UserTarget(ref))
	if !ok {
		return
	}
	success(c, result.User, "用户信息爬取成功")
}

func (s *Server) handleCrawlUserBatch(c *gin.Context) {
	var req batchUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	targets := make([]models.Target, len(req.Users))
	for i, u := range req.Users {
		targets[i] = models.UserTarget(u)
	}
	success(c, newBatchResponse(s.crawler.CrawlBatch(c.Request.Context(), targets)), "批量爬取用户信息完成")
}

// crawlOne 校验目标后爬取,失败时已写入响应
func (s *Server) crawlOne(c *gin.Context, target models.Target) (*models.ExtractionResult, bool) {
	if err := target.Validate(); err != nil {
		failErr(c, err)
		return nil, false
	}
	result, err := s.crawler.CrawlOne(c.Request.Context(), target)
	if err != nil {
		failErr(c, err)
		return nil, false
	}
	return result, true
}
