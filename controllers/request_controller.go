package controller

import (
	"log"
	"time"

	"meetsync/dispatch"
	"meetsync/models"
	"meetsync/notify"
	"meetsync/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// RequestController exposes operational visibility into scheduling requests,
// the principal's open confirmations, and outbound messages awaiting approval.
type RequestController struct {
	DB         *gorm.DB
	Dispatcher *dispatch.Scheduler
	Ledger     *notify.Ledger
	Logger     *log.Logger
}

func NewRequestController(db *gorm.DB, dispatcher *dispatch.Scheduler, ledger *notify.Ledger, logger *log.Logger) *RequestController {
	return &RequestController{
		DB:         db,
		Dispatcher: dispatcher,
		Ledger:     ledger,
		Logger:     logger,
	}
}

// ListRequests returns a user's scheduling requests, newest first. Pass
// ?status= to filter.
func (rc *RequestController) ListRequests(c *fiber.Ctx) error {
	userID := utils.ParseUint(c.Params("userID"))
	if userID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid user ID", nil)
	}

	query := rc.DB.Where("user_id = ?", userID).Order("created_at DESC")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var requests []models.SchedulingRequest
	if err := query.Find(&requests).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch requests", err)
	}
	return c.JSON(utils.SuccessResponse(requests))
}

func (rc *RequestController) GetRequest(c *fiber.Ctx) error {
	requestID := utils.ParseUint(c.Params("id"))
	if requestID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request ID", nil)
	}

	var request models.SchedulingRequest
	if err := rc.DB.Preload("Messages").First(&request, requestID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Request not found", err)
	}
	return c.JSON(utils.SuccessResponse(request))
}

// CancelRequest moves a request to cancelled. Already-terminal requests stay
// as they are; the conditional update makes the guard race-free.
func (rc *RequestController) CancelRequest(c *fiber.Ctx) error {
	requestID := utils.ParseUint(c.Params("id"))
	if requestID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request ID", nil)
	}

	result := rc.DB.Model(&models.SchedulingRequest{}).
		Where("id = ? AND status NOT IN ?", requestID, []string{
			models.RequestStatusExpired,
			models.RequestStatusCancelled,
			models.RequestStatusConfirmed,
		}).
		Updates(map[string]interface{}{
			"status":     models.RequestStatusCancelled,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to cancel request", result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Request is already settled", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"cancelled": true}))
}

// ListConfirmations returns the user's open confirmation prompts from the
// ledger, oldest first.
func (rc *RequestController) ListConfirmations(c *fiber.Ctx) error {
	userID := utils.ParseUint(c.Params("userID"))
	if userID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid user ID", nil)
	}

	pending, err := rc.Ledger.ListPending(userID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch confirmations", err)
	}
	return c.JSON(utils.SuccessResponse(pending))
}

// ListPendingMessages returns outbound emails held for approval.
func (rc *RequestController) ListPendingMessages(c *fiber.Ctx) error {
	userID := utils.ParseUint(c.Params("userID"))
	if userID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid user ID", nil)
	}

	var messages []models.Message
	if err := rc.DB.Where("user_id = ? AND send_state = ?", userID, models.SendStatePendingApproval).
		Order("created_at ASC").Find(&messages).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch pending messages", err)
	}
	return c.JSON(utils.SuccessResponse(messages))
}

// ApproveMessage releases a held email for immediate dispatch.
func (rc *RequestController) ApproveMessage(c *fiber.Ctx) error {
	messageID := utils.ParseUint(c.Params("id"))
	if messageID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid message ID", nil)
	}

	msg, err := rc.Dispatcher.ApprovePending(messageID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Failed to approve message", err)
	}
	return c.JSON(utils.SuccessResponse(msg))
}

// RejectMessage discards a held email. This is the only path that destroys
// an outbound message.
func (rc *RequestController) RejectMessage(c *fiber.Ctx) error {
	messageID := utils.ParseUint(c.Params("id"))
	if messageID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid message ID", nil)
	}

	if _, err := rc.Dispatcher.RejectPending(messageID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Failed to reject message", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"rejected": true}))
}

type editMessageInput struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EditMessage updates a held email's subject or body before approval.
func (rc *RequestController) EditMessage(c *fiber.Ctx) error {
	messageID := utils.ParseUint(c.Params("id"))
	if messageID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid message ID", nil)
	}

	var input editMessageInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	msg, err := rc.Dispatcher.EditPending(messageID, input.Subject, input.Body)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Failed to edit message", err)
	}
	return c.JSON(utils.SuccessResponse(msg))
}
