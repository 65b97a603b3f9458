package controllers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/robotlab/labhub/models"
	"github.com/robotlab/labhub/repository"
	"github.com/robotlab/labhub/services"
	"github.com/robotlab/labhub/utils"
)

// RuleController serves the point rule catalogue.
type RuleController struct {
	rules   repository.RuleStore
	timeout time.Duration
}

func NewRuleController(rules repository.RuleStore, timeout time.Duration) *RuleController {
	return &RuleController{rules: rules, timeout: timeout}
}

type ruleRequest struct {
	Name        string `json:"name" binding:"required"`
	Points      *int   `json:"points" binding:"required"`
	Description string `json:"description"`
}

func (r *RuleController) List(ctx *gin.Context) {
	rctx, cancel := storeContext(ctx, r.timeout)
	defer cancel()
	list, err := r.rules.ListRules(rctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, list)
}

func (r *RuleController) Get(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	rctx, cancel := storeContext(ctx, r.timeout)
	defer cancel()
	rule, err := r.rules.GetRule(rctx, id)
	if err != nil {
		respondError(ctx, notFoundAs(err, "规则不存在"))
		return
	}
	utils.Success(ctx, rule)
}

func (r *RuleController) Create(ctx *gin.Context) {
	var req ruleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "规则名称和积分不能为空")
		return
	}
	rule := models.Rule{
		Name:        utils.SanitizeText(req.Name),
		Points:      *req.Points,
		Description: utils.SanitizeText(req.Description),
	}
	rctx, cancel := storeContext(ctx, r.timeout)
	defer cancel()
	if err := r.rules.CreateRule(rctx, &rule); err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, rule)
}

func (r *RuleController) Update(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req ruleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "规则名称和积分不能为空")
		return
	}
	rctx, cancel := storeContext(ctx, r.timeout)
	defer cancel()
	rule, err := r.rules.GetRule(rctx, id)
	if err != nil {
		respondError(ctx, notFoundAs(err, "规则不存在"))
		return
	}
	rule.Name = utils.SanitizeText(req.Name)
	rule.Points = *req.Points
	rule.Description = utils.SanitizeText(req.Description)
	if err := r.rules.UpdateRule(rctx, rule); err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, rule)
}

func (r *RuleController) Delete(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	rctx, cancel := storeContext(ctx, r.timeout)
	defer cancel()
	if err := r.rules.DeleteRule(rctx, id); err != nil {
		respondError(ctx, notFoundAs(err, "规则不存在"))
		return
	}
	utils.Success(ctx, gin.H{"id": id})
}

// notFoundAs turns repository.ErrNotFound into a NotFound with msg.
func notFoundAs(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return services.ErrNotFound(msg)
	}
	return err
}
