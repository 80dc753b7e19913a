package llm

import (
	"github.com/google/uuid"
	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/models"
)

// ChatLMLog builds the token-accounting record for a chat-completions call.
func ChatLMLog(resp *ChatCompletionResponse, calledFrom string) *models.LMLog {
	log := &models.LMLog{
		ID:         uuid.New(),
		APIType:    models.APITypeCompletions,
		CallID:     resp.ID,
		CalledFrom: calledFrom,
		ModelName:  resp.Model,
		CreatedAt:  dates.Now(),
	}
	if resp.Usage != nil {
		log.UserTokens = resp.Usage.PromptTokens
		log.ResponseTokens = resp.Usage.CompletionTokens
	}
	return log
}

// ResponseLMLog builds the token-accounting record for a responses-API call.
func ResponseLMLog(resp *Response, calledFrom string) *models.LMLog {
	log := &models.LMLog{
		ID:         uuid.New(),
		APIType:    models.APITypeResponses,
		CallID:     resp.ID,
		CalledFrom: calledFrom,
		ModelName:  resp.Model,
		CreatedAt:  dates.Now(),
	}
	if resp.Usage != nil {
		log.UserTokens = resp.Usage.InputTokens
		log.ResponseTokens = resp.Usage.OutputTokens
	}
	return log
}

// AccumulateLMLog folds per-call usage into a running log, keeping the last
// call's id and model. Multi-turn tool loops report one log per loop.
func AccumulateLMLog(total, call *models.LMLog) *models.LMLog {
	if total == nil {
		return call
	}
	if call == nil {
		return total
	}
	total.CallID = call.CallID
	total.ModelName = call.ModelName
	total.APIType = call.APIType
	total.SystemTokens += call.SystemTokens
	total.UserTokens += call.UserTokens
	total.ResponseTokens += call.ResponseTokens
	return total
}
