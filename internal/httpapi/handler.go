package httpapi

import (
	"net/http"
	"strconv"

	"github.com/Sonarrati/Cryptra-App/pkg/errutil"
	"github.com/Sonarrati/Cryptra-App/services/activity"
	"github.com/Sonarrati/Cryptra-App/services/referral"
	"github.com/Sonarrati/Cryptra-App/services/settlement"
	"github.com/Sonarrati/Cryptra-App/services/user"
	"github.com/Sonarrati/Cryptra-App/services/wallet"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Handler exposes the public v1 API over the domain services.
type Handler struct {
	users      *user.Service
	wallet     *wallet.Service
	activity   *activity.Service
	referral   *referral.Service
	settlement *settlement.Service
}

type HandlerParams struct {
	fx.In
	Users      *user.Service
	Wallet     *wallet.Service
	Activity   *activity.Service
	Referral   *referral.Service
	Settlement *settlement.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		users:      p.Users,
		wallet:     p.Wallet,
		activity:   p.Activity,
		referral:   p.Referral,
		settlement: p.Settlement,
	}
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	v1 := r.Group("/v1")

	v1.POST("/users", h.Register)
	v1.GET("/users/:id", h.GetUser)
	v1.POST("/users/:id/referral", h.ApplyReferral)
	v1.POST("/users/:id/checkin", h.CheckIn)
	v1.POST("/users/:id/activities", h.RecordActivity)

	v1.GET("/users/:id/wallet", h.GetWallet)
	v1.GET("/users/:id/earnings", h.ListEarnings)
	v1.GET("/users/:id/withdrawals", h.ListWithdrawals)
	v1.POST("/users/:id/withdrawals", h.RequestWithdrawal)

	v1.GET("/users/:id/referrals/stats", h.ReferralStats)
	v1.GET("/users/:id/referrals/downline", h.Downline)
	v1.GET("/users/:id/referrals/commissions", h.Commissions)

	v1.POST("/settlement/run", h.RunSettlement)
}

type registerRequest struct {
	Email        string `json:"email" binding:"required,email"`
	ReferralCode string `json:"referral_code"`
}

// Register creates the user and applies the invite code when one is given.
// An invalid code never fails the signup, it just yields no referral edges.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	u, err := h.users.Register(c.Request.Context(), req.Email)
	if err != nil {
		c.Error(err)
		return
	}

	if req.ReferralCode != "" {
		if err := h.referral.RecordSignup(c.Request.Context(), u.ID, req.ReferralCode); err != nil {
			zap.L().Warn("failed to apply referral code at signup",
				zap.String("user_id", u.ID),
				zap.Error(err),
			)
		}
	}

	c.JSON(http.StatusCreated, u)
}

func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, u)
}

type applyReferralRequest struct {
	ReferralCode string `json:"referral_code" binding:"required"`
}

func (h *Handler) ApplyReferral(c *gin.Context) {
	var req applyReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	if err := h.referral.RecordSignup(c.Request.Context(), c.Param("id"), req.ReferralCode); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) CheckIn(c *gin.Context) {
	result, err := h.activity.CheckIn(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type recordActivityRequest struct {
	Type     string  `json:"type" binding:"required"`
	TaskName string  `json:"task_name"`
	Reward   float64 `json:"reward"`
}

func (h *Handler) RecordActivity(c *gin.Context) {
	var req recordActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	result, err := h.activity.Record(c.Request.Context(), c.Param("id"), wallet.EarningType(req.Type), req.TaskName, req.Reward)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetWallet(c *gin.Context) {
	balance, err := h.wallet.BalanceOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (h *Handler) ListEarnings(c *gin.Context) {
	rows, err := h.wallet.History(c.Request.Context(), c.Param("id"), queryLimit(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"earnings": rows})
}

func (h *Handler) ListWithdrawals(c *gin.Context) {
	rows, err := h.wallet.Withdrawals(c.Request.Context(), c.Param("id"), queryLimit(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": rows})
}

type withdrawalRequest struct {
	Method  string  `json:"method" binding:"required"`
	Account string  `json:"account" binding:"required"`
	Amount  float64 `json:"amount" binding:"required,gt=0"`
}

func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var req withdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	w, err := h.wallet.Withdraw(c.Request.Context(), c.Param("id"), req.Method, req.Account, req.Amount)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h *Handler) ReferralStats(c *gin.Context) {
	stats, err := h.referral.GetStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) Downline(c *gin.Context) {
	maxLevel := referral.MaxLevel
	if raw := c.Query("max_level"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.Error(errutil.BadRequest("max_level must be a positive integer"))
			return
		}
		maxLevel = n
	}

	tree, err := h.referral.DownlineTree(c.Request.Context(), c.Param("id"), maxLevel)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

func (h *Handler) Commissions(c *gin.Context) {
	rows, err := h.referral.CommissionHistory(c.Request.Context(), c.Param("id"), queryLimit(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commissions": rows})
}

type runSettlementRequest struct {
	Date string `json:"date"`
}

func (h *Handler) RunSettlement(c *gin.Context) {
	var req runSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	job, err := h.settlement.Run(c.Request.Context(), req.Date)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func queryLimit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	return limit
}
