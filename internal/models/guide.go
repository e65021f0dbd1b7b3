package models

// GuideChatRequest is a message sent to the AI guide.
type GuideChatRequest struct {
	Message string `json:"message" validate:"required,max=500"`
}
