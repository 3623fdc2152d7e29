package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RecoveryAshes/XhsCrawler/internal/models"
	"github.com/RecoveryAshes/XhsCrawler/internal/utils"
)

// accountView 账号响应, Cookie 脱敏
type accountView struct {
	models.Account
	Cookie string `json:"cookie"`
}

func viewOf(a models.Account) accountView {
	return accountView{Account: a, Cookie: utils.MaskCookie(a.Cookie)}
}

type createAccountRequest struct {
	Name   string `json:"name" binding:"required"`
	Cookie string `json:"cookie" binding:"required"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) handleListAccounts(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		list []models.Account
		err  error
	)
	if raw := c.Query("status"); raw != "" {
		status, perr := models.ParseAccountStatus(raw)
		if perr != nil {
			failErr(c, perr)
			return
		}
		list, err = s.accounts.ListByStatus(ctx, status)
	} else {
		list, err = s.accounts.List(ctx)
	}
	if err != nil {
		failErr(c, err)
		return
	}

	views := make([]accountView, len(list))
	for i, a := range list {
		views[i] = viewOf(a)
	}
	success(c, views, "")
}

func (s *Server) handleCreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	if err := s.validator.ValidateCookie(req.Cookie); err != nil {
		failErr(c, err)
		return
	}
	account, err := models.NewAccount(req.Name, req.Cookie)
	if err != nil {
		failErr(c, err)
		return
	}
	if err := s.accounts.Create(c.Request.Context(), account); err != nil {
		failErr(c, err)
		return
	}
	success(c, viewOf(*account), "创建成功")
}

func (s *Server) handleGetAccount(c *gin.Context) {
	account, err := s.accounts.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, viewOf(*account), "")
}

func (s *Server) handleDeleteAccount(c *gin.Context) {
	if err := s.accounts.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	success(c, nil, "删除成功")
}

func (s *Server) handleUpdateAccountStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}
	status, err := models.ParseAccountStatus(req.Status)
	if err != nil {
		failErr(c, err)
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := s.accounts.UpdateStatus(ctx, id, status); err != nil {
		failErr(c, err)
		return
	}
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, viewOf(*account), "状态已更新")
}
