package recovery

import (
	"github.com/pbellet/sessionlog/pkg/conversation"
)

// perMessageOverhead approximates role and formatting tokens per message.
const perMessageOverhead = 4

// CharEstimator returns a TokenEstimator using a simple characters-per-token
// ratio. A ratio of ~4 works well for English. If charsPerToken is <= 0, it
// defaults to 4.0. Callers with a real tokenizer should inject their own
// estimator instead.
func CharEstimator(charsPerToken float64) TokenEstimator {
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	return func(messages []conversation.Message) int {
		total := 0
		for i := range messages {
			total += perMessageOverhead
			chars := len(messages[i].Payload.Content)
			for _, block := range messages[i].Payload.Blocks {
				chars += len(block.Text)
				chars += len(block.Args)
				chars += len(block.Result)
				chars += len(block.Data)
			}
			if chars > 0 {
				total += int(float64(chars)/charsPerToken) + 1
			}
		}
		return total
	}
}
