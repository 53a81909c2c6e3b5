package service

import (
	"context"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ArielSltty/Orion/internal/domain"
)

// Chat replies.
const (
	ReplyGreeting   = "Hello! I'm Orion Simulation Agent! 🤖 I can help you with financial simulations using Monte Carlo methods."
	ReplyMonteCarlo = "I can run Monte Carlo simulations! Please provide parameters like this:"
	ReplyThanks     = "You're welcome! Let me know if you need more simulations. 📊"
	ReplyFallback   = "I'm a financial simulation agent. I can run Monte Carlo simulations for you. Try asking about 'Monte Carlo' or 'parameters'!"
	ReplyFormat     = `Please provide parameters in this format:
{
  "initial_price": 100.0,
  "drift": 0.05,
  "volatility": 0.2,
  "time_horizon": 1.0,
  "time_steps": 252,
  "n_simulations": 1000
}`
)

var greetings = map[string]bool{"hello": true, "hi": true, "hey": true, "hola": true}

// Chat answers a chat message. A missing session id is assigned.
func (s *Service) Chat(_ context.Context, msg domain.ChatMessage) domain.ChatResponse {
	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	text, requires, template := Reply(msg.Text)

	s.metrics.RecordChat()
	s.logger.Debug("chat message",
		zap.String("session_id", sessionID),
		zap.String("user_id", msg.UserID),
		zap.Bool("requires_parameters", requires))

	return domain.ChatResponse{
		SessionID:          sessionID,
		RequiresParameters: requires,
		ParameterTemplate:  template,
		Response:           text,
		Timestamp:          s.now().UnixNano(),
	}
}

// Reply picks the keyword response for text. When the reply asks for
// parameters, template holds the defaults to start from.
func Reply(text string) (reply string, requiresParameters bool, template *domain.SimulationParameters) {
	lower := strings.ToLower(text)

	// Greetings match whole words so "this" or "which" do not count.
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if greetings[w] {
			return ReplyGreeting, false, nil
		}
	}

	switch {
	case strings.Contains(lower, "monte carlo"):
		p := domain.DefaultParameters()
		return ReplyMonteCarlo, true, &p
	case strings.Contains(lower, "parameter"), strings.Contains(lower, "how to"):
		return ReplyFormat, false, nil
	case strings.Contains(lower, "thank"):
		return ReplyThanks, false, nil
	}
	return ReplyFallback, false, nil
}
