package httpapi

import (
	"encoding/json"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
)

// Request bodies.

type createTaskRequest struct {
	Name          string `json:"name"`
	AssigneeID    string `json:"assignee_id"`
	Subject       string `json:"subject"`
	RequiredScore int    `json:"required_score"`
	CreditReward  int64  `json:"credit_reward"`
	Recurrence    string `json:"recurrence"`
}

type updateGenerationRequest struct {
	GeneratedContent json.RawMessage `json:"generated_content"`
}

type topUpRequest struct {
	Amount        float64 `json:"amount"` // dollars
	RecipientType string  `json:"recipient_type"`
	RecipientID   string  `json:"recipient_id,omitempty"`
}

type transferRequest struct {
	RecipientID string `json:"recipient_id"`
	Amount      int64  `json:"amount"` // minor units
	Description string `json:"description,omitempty"`
}

type adjustCreditsRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"` // signed, minor units
	Reason string `json:"reason"`
}

type orderStatusUpdateRequest struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Notes          string `json:"notes,omitempty"`
	Override       bool   `json:"override,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

type createOrderRequest struct {
	Items          []orderItemInput `json:"items"`
	PayWithCredits bool             `json:"pay_with_credits"`
}

type orderItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type characterRequest struct {
	Name      string `json:"name"`
	Persona   string `json:"persona"`
	VoiceID   string `json:"voice_id,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type speakRequest struct {
	Text string `json:"text"`
}

type chatThreadRequest struct {
	CharacterID string `json:"character_id"`
	Title       string `json:"title,omitempty"`
}

type chatMessageRequest struct {
	Content string `json:"content"`
}

type productRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Amount      int64  `json:"amount"`
	CreditPrice int64  `json:"credit_price"`
	Stock       int    `json:"stock"`
}

type noteRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type wishlistRequest struct {
	ProductID string `json:"product_id"`
}

type devTokenRequest struct {
	UserID string `json:"user_id"`
}

type createUserRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	ParentID    string `json:"parent_id,omitempty"`
}

// Response bodies. Contract shapes for the core endpoints are fixed; the
// rest follow the same success envelope.

type taskSummary struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Status domain.TaskStatus `json:"status"`
}

type taskTransitionResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Task    taskSummary `json:"task"`
}

type completeThreadResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	CreditsEarned int64  `json:"creditsEarned"`
}

type balanceResponse struct {
	Balance          int64  `json:"balance"` // minor units
	BalanceInDollars string `json:"balanceInDollars"`
	Currency         string `json:"currency"`
	UpdatedAt        string `json:"updatedAt"`
}

type topUpResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

type dataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type dataMessageResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

type speakResponse struct {
	Audio       string `json:"audio"` // base64
	ContentType string `json:"content_type"`
}

type chatReplyResponse struct {
	Success bool                `json:"success"`
	Message *domain.ChatMessage `json:"message"`
	Reply   *domain.ChatMessage `json:"reply"`
}

type healthDetailResponse struct {
	Status       string            `json:"status"`
	Integrations map[string]string `json:"integrations"`
	Uptime       string            `json:"uptime"`
	Version      string            `json:"version"`
}
