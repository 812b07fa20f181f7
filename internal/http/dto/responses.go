package dto

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// WebhookAck is always 200 so the gateway stops retrying once we have
// durably classified the delivery.
type WebhookAck struct {
	OK      bool   `json:"ok"`
	Outcome string `json:"outcome"`
}
