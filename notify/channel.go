package notify

import (
	"encoding/json"
	"fmt"
	"log"

	"meetsync/models"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

// Channel delivers a confirmation body to the principal and returns the
// channel-side message id.
type Channel interface {
	Name() string
	Send(user *models.User, body string) (string, error)
}

// GatewayChannel delivers over an HTTP messaging gateway (SMS or chat
// transport behind one vendor API).
type GatewayChannel struct {
	name   string
	url    string
	apiKey string
	sender string
}

func NewSMSChannel(url, apiKey, sender string) *GatewayChannel {
	return &GatewayChannel{name: models.ChannelSMS, url: url + "/sms", apiKey: apiKey, sender: sender}
}

func NewChatChannel(url, apiKey, sender string) *GatewayChannel {
	return &GatewayChannel{name: models.ChannelChat, url: url + "/chat", apiKey: apiKey, sender: sender}
}

func (g *GatewayChannel) Name() string { return g.name }

func (g *GatewayChannel) Send(user *models.User, body string) (string, error) {
	target := user.PhoneNumber
	if g.name == models.ChannelChat {
		target = user.ChatID
	}
	if target == "" {
		return "", fmt.Errorf("user %d has no %s contact data", user.ID, g.name)
	}

	payload, err := json.Marshal(map[string]string{
		"to":   target,
		"from": g.sender,
		"body": body,
	})
	if err != nil {
		return "", err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(g.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.SetBody(payload)

	if err := fasthttp.Do(req, resp); err != nil {
		return "", fmt.Errorf("%s gateway request failed: %w", g.name, err)
	}
	if resp.StatusCode() >= 300 {
		return "", fmt.Errorf("%s gateway returned status %d", g.name, resp.StatusCode())
	}

	var result struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil || result.MessageID == "" {
		// Gateway delivered but gave no usable id
		return uuid.NewString(), nil
	}
	return result.MessageID, nil
}

// InAppChannel pushes over the websocket hub. It needs no external contact
// data or credentials, which makes it the universal fallback.
type InAppChannel struct {
	hub *Hub
}

func NewInAppChannel(hub *Hub) *InAppChannel {
	return &InAppChannel{hub: hub}
}

func (c *InAppChannel) Name() string { return models.ChannelInApp }

func (c *InAppChannel) Send(user *models.User, body string) (string, error) {
	id := uuid.NewString()
	c.hub.Push(user.ID, map[string]interface{}{
		"type":       "confirmation",
		"message_id": id,
		"body":       body,
	})
	return id, nil
}

// Channels resolves a principal's delivery channel with fallback.
type Channels struct {
	SMS    Channel
	Chat   Channel
	InApp  Channel
	Logger *log.Logger
}

// Resolve picks the principal's preferred channel; when the preferred channel
// lacks contact data it silently falls back to the in-app channel. The
// fallback is logged but invisible to callers.
func (cs *Channels) Resolve(user *models.User) Channel {
	switch user.PreferredChannel {
	case models.ChannelSMS:
		if cs.SMS != nil && user.PhoneNumber != "" {
			return cs.SMS
		}
	case models.ChannelChat:
		if cs.Chat != nil && user.ChatID != "" {
			return cs.Chat
		}
	case models.ChannelInApp:
		return cs.InApp
	}

	if user.PreferredChannel != models.ChannelInApp {
		cs.Logger.Printf("Falling back to in-app channel for user %d (preferred %s unavailable)",
			user.ID, user.PreferredChannel)
	}
	return cs.InApp
}
