package appointment

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/middleware"
	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/service/appointment"
	"github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/httputil"
	"github.com/jwalitptl/hospital-api/pkg/validator"
)

type Handler struct {
	service *appointment.Service
}

func NewHandler(service *appointment.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes expects r to already require authentication.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	doctors := r.Group("/doctors/:id")
	{
		doctors.GET("/availability", h.CheckAvailability)
		doctors.GET("/appointments", h.ListDoctorAppointments)
		doctors.GET("/slots", h.AvailableSlots)
	}

	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PATCH("/:id/status", h.UpdateStatus)
		appointments.PUT("/:id/schedule", h.Reschedule)
		appointments.DELETE("/:id", h.DeleteAppointment)
	}

	r.GET("/patients/:id/appointments", h.ListPatientAppointments)
}

func (h *Handler) CheckAvailability(c *gin.Context) {
	doctorID, window, ok := h.doctorWindow(c)
	if !ok {
		return
	}

	available, err := h.service.IsSlotAvailable(c.Request.Context(), doctorID, window.Start, window.End)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{
		"doctor_id": doctorID,
		"start":     window.Start,
		"end":       window.End,
		"available": available,
	})
}

func (h *Handler) ListDoctorAppointments(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	doctorID, window, ok := h.doctorWindow(c)
	if !ok {
		return
	}

	appointments, err := h.service.GetAppointmentsForDoctorInRange(c.Request.Context(), actor, doctorID, window.Start, window.End)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, appointments)
}

// AvailableSlots lists free slots on ?date=YYYY-MM-DD in the clinic's
// timezone. slot_minutes overrides the configured slot size.
func (h *Handler) AvailableSlots(c *gin.Context) {
	doctorID, ok := pathID(c, "doctor")
	if !ok {
		return
	}

	hours := h.service.WorkingHours()
	if hours.Location == nil {
		hours.Location = time.UTC
	}
	day, err := time.ParseInLocation(time.DateOnly, c.Query("date"), hours.Location)
	if err != nil {
		httputil.RespondWithError(c, errors.NewInvalidInput("date must be YYYY-MM-DD", err))
		return
	}
	if raw := c.Query("slot_minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil {
			httputil.RespondWithError(c, errors.NewInvalidInput("slot_minutes must be a positive integer", err))
			return
		}
		size, err := model.MinutesToDuration(minutes, 0)
		if err != nil {
			httputil.RespondWithError(c, errors.NewInvalidInput("slot_minutes "+err.Error(), nil))
			return
		}
		hours.SlotSize = size
	}

	slots, err := h.service.AvailableSlots(c.Request.Context(), doctorID, day, hours)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	free := slices.Collect(slots)
	if free == nil {
		free = []model.TimeSlot{}
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{
		"doctor_id":    doctorID,
		"date":         day.Format(time.DateOnly),
		"slot_minutes": int(hours.SlotSize / time.Minute),
		"slots":        free,
	})
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, validator.BindError(err))
		return
	}

	apt, err := h.service.CreateAppointment(c.Request.Context(), actor, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.Header("Location", fmt.Sprintf("%s/%s", c.FullPath(), apt.ID))
	httputil.RespondWithSuccess(c, http.StatusCreated, apt)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "appointment")
	if !ok {
		return
	}

	apt, err := h.service.GetAppointment(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, apt)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "appointment")
	if !ok {
		return
	}

	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, validator.BindError(err))
		return
	}

	apt, err := h.service.UpdateStatus(c.Request.Context(), actor, id, req.Status)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, apt)
}

func (h *Handler) Reschedule(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "appointment")
	if !ok {
		return
	}

	var req model.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, validator.BindError(err))
		return
	}

	apt, err := h.service.Reschedule(c.Request.Context(), actor, id, req.StartTime, req.DurationMinutes)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, apt)
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "appointment")
	if !ok {
		return
	}

	if err := h.service.DeleteAppointment(c.Request.Context(), actor, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) ListPatientAppointments(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	patientID, ok := pathID(c, "patient")
	if !ok {
		return
	}
	var window model.TimeRange
	if err := c.ShouldBindQuery(&window); err != nil {
		httputil.RespondWithError(c, validator.BindError(err))
		return
	}

	appointments, err := h.service.ListAppointmentsForPatient(c.Request.Context(), actor, patientID, window.Start, window.End)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, appointments)
}

func (h *Handler) doctorWindow(c *gin.Context) (uuid.UUID, model.TimeRange, bool) {
	var window model.TimeRange
	doctorID, ok := pathID(c, "doctor")
	if !ok {
		return uuid.Nil, window, false
	}
	if err := c.ShouldBindQuery(&window); err != nil {
		httputil.RespondWithError(c, validator.BindError(err))
		return uuid.Nil, window, false
	}
	return doctorID, window, true
}

func pathID(c *gin.Context, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, errors.NewInvalidInput(fmt.Sprintf("invalid %s ID", resource), err))
		return uuid.Nil, false
	}
	return id, true
}

func requireActor(c *gin.Context) (model.Identity, bool) {
	actor, ok := middleware.Actor(c)
	if !ok {
		httputil.RespondWithError(c, errors.NewUnauthenticated("authentication required", nil))
		return model.Identity{}, false
	}
	return actor, true
}
