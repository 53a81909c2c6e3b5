package domain

// ChatMessage is a free-text message sent to the simulation assistant.
type ChatMessage struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	UserID    string `json:"user_id"`
	Timestamp int64  `json:"timestamp"` // unix ns
}

// ChatResponse is the assistant's reply. When RequiresParameters is set,
// ParameterTemplate holds a ready-to-edit parameter set.
type ChatResponse struct {
	SessionID          string                `json:"session_id"`
	RequiresParameters bool                  `json:"requires_parameters"`
	ParameterTemplate  *SimulationParameters `json:"parameter_template"`
	Response           string                `json:"response"`
	Timestamp          int64                 `json:"timestamp"` // unix ns
}
