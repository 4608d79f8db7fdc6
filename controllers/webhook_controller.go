package controller

import (
	"log"
	"strings"

	"meetsync/agent"
	"meetsync/models"
	"meetsync/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// WebhookController receives principal replies from external channels
// (SMS gateway, chat gateway) and routes them into the orchestration loop.
type WebhookController struct {
	DB     *gorm.DB
	Agent  *agent.Service
	Logger *log.Logger
}

func NewWebhookController(db *gorm.DB, agentService *agent.Service, logger *log.Logger) *WebhookController {
	return &WebhookController{
		DB:     db,
		Agent:  agentService,
		Logger: logger,
	}
}

type smsReplyInput struct {
	From string `json:"from" validate:"required"`
	Text string `json:"text" validate:"required"`
}

// HandleSMSReply processes an inbound SMS from the gateway. The sender is
// matched to a principal by phone number.
func (wc *WebhookController) HandleSMSReply(c *fiber.Ctx) error {
	var input smsReplyInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	var user models.User
	if err := wc.DB.Where("phone_number = ?", strings.TrimSpace(input.From)).First(&user).Error; err != nil {
		wc.Logger.Printf("SMS from unknown number %s ignored", input.From)
		return c.JSON(utils.SuccessResponse(fiber.Map{"handled": false}))
	}

	if err := wc.Agent.HandlePrincipalReply(c.Context(), user.ID, input.Text); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process reply", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"handled": true}))
}

type chatReplyInput struct {
	ChatID string `json:"chat_id" validate:"required"`
	Text   string `json:"text" validate:"required"`
}

// HandleChatReply processes an inbound chat message from the gateway. The
// sender is matched to a principal by chat id.
func (wc *WebhookController) HandleChatReply(c *fiber.Ctx) error {
	var input chatReplyInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	var user models.User
	if err := wc.DB.Where("chat_id = ?", strings.TrimSpace(input.ChatID)).First(&user).Error; err != nil {
		wc.Logger.Printf("Chat message from unknown chat %s ignored", input.ChatID)
		return c.JSON(utils.SuccessResponse(fiber.Map{"handled": false}))
	}

	if err := wc.Agent.HandlePrincipalReply(c.Context(), user.ID, input.Text); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process reply", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"handled": true}))
}
