package controllers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/robotlab/labhub/middleware"
	"github.com/robotlab/labhub/models"
	"github.com/robotlab/labhub/repository"
	"github.com/robotlab/labhub/services"
	"github.com/robotlab/labhub/utils"
)

// AttendanceController serves campaigns, manual triggers and check-ins.
type AttendanceController struct {
	store        repository.Store
	materializer *services.Materializer
	checkins     *services.CheckInService
	settings     services.Settings
	now          func() time.Time
	timeout      time.Duration
}

// NewAttendanceController builds the controller; a nil now means time.Now.
func NewAttendanceController(store repository.Store, m *services.Materializer, c *services.CheckInService, settings services.Settings, now func() time.Time, timeout time.Duration) *AttendanceController {
	if now == nil {
		now = time.Now
	}
	return &AttendanceController{store: store, materializer: m, checkins: c, settings: settings, now: now, timeout: timeout}
}

type attendanceRequest struct {
	Name          string   `json:"name" binding:"required"`
	Description   string   `json:"description"`
	DateStart     string   `json:"dateStart" binding:"required,ymd"`
	DateEnd       string   `json:"dateEnd" binding:"required,ymd"`
	LocationName  string   `json:"locationName" binding:"required"`
	Latitude      *float64 `json:"latitude" binding:"required,min=-90,max=90"`
	Longitude     *float64 `json:"longitude" binding:"required,min=-180,max=180"`
	Radius        *float64 `json:"radius" binding:"required,gt=0"`
	PenaltyPoints *int     `json:"penaltyPoints" binding:"omitempty,min=0"`
	TargetGrades  []string `json:"targetGrades"`
	TargetUserIDs []uint   `json:"targetUserIds"`
}

// apply copies the request onto a; PenaltyPoints stays as-is when omitted.
func (r attendanceRequest) apply(a *models.Attendance) {
	a.Name = utils.SanitizeText(r.Name)
	a.Description = utils.SanitizeText(r.Description)
	a.DateStart = r.DateStart
	a.DateEnd = r.DateEnd
	a.LocationName = utils.SanitizeText(r.LocationName)
	a.Latitude = *r.Latitude
	a.Longitude = *r.Longitude
	a.Radius = *r.Radius
	if r.PenaltyPoints != nil {
		a.PenaltyPoints = *r.PenaltyPoints
	}
	grades := make([]string, 0, len(r.TargetGrades))
	for _, g := range r.TargetGrades {
		if g = utils.SanitizeText(g); g != "" {
			grades = append(grades, g)
		}
	}
	a.TargetGrades = datatypes.JSONSlice[string](utils.Unique(grades))
	a.TargetUserIDs = datatypes.JSONSlice[uint](utils.Unique(r.TargetUserIDs))
}

func (c *AttendanceController) bind(ctx *gin.Context) (attendanceRequest, bool) {
	var req attendanceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "请填写所有必填字段")
		return req, false
	}
	if req.DateStart > req.DateEnd {
		badRequest(ctx, "开始日期不能晚于结束日期")
		return req, false
	}
	return req, true
}

// Create adds a campaign (admin).
func (c *AttendanceController) Create(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	req, ok := c.bind(ctx)
	if !ok {
		return
	}
	a := models.Attendance{PenaltyPoints: c.settings.DefaultPenalty, CreatedBy: userID}
	req.apply(&a)

	rctx, cancel := storeContext(ctx, c.timeout)
	defer cancel()
	if err := c.store.CreateAttendance(rctx, &a); err != nil {
		respondError(ctx, err)
		return
	}
	utils.Logger.Info("attendance created", zap.Uint("id", a.ID), zap.String("name", a.Name), zap.Uint("by", userID))
	utils.Success(ctx, a)
}

// List returns campaigns with their triggers and per-trigger check-in counts.
// Non-admins also see whether they checked in.
func (c *AttendanceController) List(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	admin := middleware.IsAdmin(ctx)
	rctx, cancel := storeContext(ctx, c.timeout)
	defer cancel()

	campaigns, err := c.store.ListAttendances(rctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ids := make([]uint, 0, len(campaigns))
	for _, a := range campaigns {
		ids = append(ids, a.ID)
	}
	triggers, err := c.store.ListTriggers(rctx, ids...)
	if err != nil {
		respondError(ctx, err)
		return
	}
	triggerIDs := make([]uint, 0, len(triggers))
	for _, t := range triggers {
		triggerIDs = append(triggerIDs, t.ID)
	}
	counts, err := c.store.CountRecords(rctx, triggerIDs...)
	if err != nil {
		respondError(ctx, err)
		return
	}
	var mine map[uint]models.AttendanceRecord
	if !admin {
		if mine, err = c.store.UserRecords(rctx, userID, triggerIDs...); err != nil {
			respondError(ctx, err)
			return
		}
	}

	byCampaign := make(map[uint][]gin.H, len(campaigns))
	for _, t := range triggers {
		item := triggerJSON(t)
		item["signedCount"] = counts[t.ID]
		if !admin {
			rec, signed := mine[t.ID]
			item["hasSigned"] = signed
			if signed {
				item["signedAt"] = rec.SignedAt
			} else {
				item["signedAt"] = nil
			}
		}
		byCampaign[t.AttendanceID] = append(byCampaign[t.AttendanceID], item)
	}

	out := make([]gin.H, 0, len(campaigns))
	for _, a := range campaigns {
		ts := byCampaign[a.ID]
		if ts == nil {
			ts = []gin.H{}
		}
		out = append(out, gin.H{"attendance": a, "triggers": ts})
	}
	utils.Success(ctx, out)
}

// Get returns one campaign with every trigger and its check-in records.
func (c *AttendanceController) Get(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	rctx, cancel := storeContext(ctx, c.timeout)
	defer cancel()

	a, err := c.store.GetAttendance(rctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(ctx, services.ErrNotFound("点名任务不存在"))
			return
		}
		respondError(ctx, err)
		return
	}
	triggers, err := c.store.ListTriggers(rctx, a.ID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	triggerIDs := make([]uint, 0, len(triggers))
	for _, t := range triggers {
		triggerIDs = append(triggerIDs, t.ID)
	}
	records, err := c.store.ListRecords(rctx, triggerIDs...)
	if err != nil {
		respondError(ctx, err)
		return
	}
	byTrigger := make(map[uint][]repository.RecordWithUser, len(triggers))
	for _, r := range records {
		byTrigger[r.TriggerID] = append(byTrigger[r.TriggerID], r)
	}

	admin := middleware.IsAdmin(ctx)
	items := make([]gin.H, 0, len(triggers))
	for _, t := range triggers {
		recs := byTrigger[t.ID]
		if recs == nil {
			recs = []repository.RecordWithUser{}
		}
		item := triggerJSON(t)
		item["records"] = recs
		item["signedCount"] = len(recs)
		if !admin {
			item["hasSigned"] = false
			item["mySignedAt"] = nil
			for _, r := range recs {
				if r.UserID == userID {
					item["hasSigned"] = true
					item["mySignedAt"] = r.SignedAt
					break
				}
			}
		}
		items = append(items, item)
	}
	utils.Success(ctx, gin.H{"attendance": a, "triggers": items})
}

// Update replaces a campaign's fields (admin).
func (c *AttendanceController) Update(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	req, ok := c.bind(ctx)
	if !ok {
		return
	}
	rctx, cancel := storeContext(ctx, c.timeout)
	defer cancel()

	a, err := c.store.GetAttendance(rctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(ctx, services.ErrNotFound("点名任务不存在"))
			return
		}
		respondError(ctx, err)
		return
	}
	req.apply(a)
	// a longer range reopens a campaign the materializer had already finished
	if a.DateEnd >= c.settings.Today(c.now()) {
		a.Completed = false
	}
	if err := c.store.UpdateAttendance(rctx, a); err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, a)
}

// Delete removes a campaign with its triggers and records (admin).
func (c *AttendanceController) Delete(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	rctx, cancel := storeContext(ctx, c.timeout)
	defer cancel()

	if err := c.store.DeleteAttendance(rctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(ctx, services.ErrNotFound("点名任务不存在"))
			return
		}
		respondError(ctx, err)
		return
	}
	utils.Logger.Info("attendance deleted", zap.Uint("id", id))
	utils.Success(ctx, gin.H{"id": id})
}

// Trigger forces today's trigger for a campaign (admin).
func (c *AttendanceController) Trigger(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req services.ManualTrigger
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "自定义时间格式应为 HH:MM")
		return
	}
	rctx, cancel := storeContext(ctx, c.timeout)
	defer cancel()

	t, err := c.materializer.TriggerNow(rctx, id, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, triggerJSON(*t))
}

type signRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

// Sign checks the caller in to a trigger; the route id is the trigger id.
func (c *AttendanceController) Sign(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	triggerID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req signRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "请提供位置信息")
		return
	}
	rctx, cancel := storeContext(ctx, c.timeout)
	defer cancel()

	res, err := c.checkins.CheckIn(rctx, triggerID, userID, *req.Latitude, *req.Longitude)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, res)
}
