package models

// Target groups for segmented notifications.
const (
	GroupParticipantsOnly = "PARTICIPANTS_ONLY"
	GroupEvaluatorsOnly   = "EVALUATORS_ONLY"
	GroupAssistantsOnly   = "ASSISTANTS_ONLY"
	GroupAllConfirmed     = "ALL_CONFIRMED"
)

// Delivery channels.
const (
	ChannelEmail = "EMAIL"
	ChannelSMS   = "SMS"
	ChannelPush  = "PUSH"
)

type SendNotificationRequest struct {
	TargetGroup string `json:"target_group" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Body        string `json:"body" binding:"required"`
	Channel     string `json:"channel" binding:"required"`
}

// RecipientStatus is one line of a dispatch report.
type RecipientStatus struct {
	Email  string `json:"email"`
	Status string `json:"status"` // "delivered" or "failed"
	Error  string `json:"error,omitempty"`
}

// DispatchReport summarizes one segmented send.
type DispatchReport struct {
	Delivered  int               `json:"delivered"`
	Failed     int               `json:"failed"`
	Recipients []RecipientStatus `json:"recipients"`
}

var ValidGroups = map[string]bool{
	GroupParticipantsOnly: true,
	GroupEvaluatorsOnly:   true,
	GroupAssistantsOnly:   true,
	GroupAllConfirmed:     true,
}

var ValidChannels = map[string]bool{
	ChannelEmail: true,
	ChannelSMS:   true,
	ChannelPush:  true,
}
