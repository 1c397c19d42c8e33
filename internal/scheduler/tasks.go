package scheduler

import (
	"encoding/json"
	"time"

	"orderbot_backend/internal/conversation"
	"orderbot_backend/internal/pipeline"

	"github.com/hibiken/asynq"
)

const TaskProcessTurn = "conversation.turn.process"

// ProcessTurnPayload carries a stored inbound message to the worker.
type ProcessTurnPayload struct {
	ClientPhone string    `json:"clientPhone"`
	MessageID   int64     `json:"messageId"`
	ClientID    int64     `json:"clientId"`
	Content     string    `json:"content"`
	SentAt      time.Time `json:"sentAt"`
	Source      string    `json:"source"`
}

// Turn rebuilds the pipeline turn the payload was created from.
func (p ProcessTurnPayload) Turn() pipeline.Turn {
	source := pipeline.Source(p.Source)
	if source == "" {
		source = pipeline.SourceLive
	}
	return pipeline.Turn{
		ClientPhone: p.ClientPhone,
		Message: conversation.Message{
			ID:        p.MessageID,
			ClientID:  p.ClientID,
			Direction: conversation.DirectionReceived,
			Content:   p.Content,
			SentAt:    p.SentAt,
		},
		Source: source,
	}
}

func NewProcessTurnTask(payload ProcessTurnPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProcessTurn, data), nil
}

func ParseProcessTurnPayload(task *asynq.Task) (ProcessTurnPayload, error) {
	var payload ProcessTurnPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProcessTurnPayload{}, err
	}
	return payload, nil
}
