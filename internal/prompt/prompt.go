package prompt

// Use cases selectable per request. Each maps to a fixed system prompt that
// is prepended to the provider call; the prompt is never stored in session
// history.
const (
	UsecaseBasic   = "Basic Chatbot"
	UsecaseAgentic = "Agentic Chatbot"
)

const basicPrompt = "You are a helpful and efficient chatbot assistant."

const agenticPrompt = `You are an intelligent agentic chatbot with dynamic multi-server capabilities. You analyze user questions and combine information from restaurant, parking, and weather data sources into coherent, helpful answers. Mention which data sources were used when tool results are included. Always provide accurate, relevant, and comprehensive responses.`

// For returns the system prompt for a use case. Unknown use cases fall back
// to the basic chatbot prompt.
func For(usecase string) string {
	switch usecase {
	case UsecaseAgentic:
		return agenticPrompt
	default:
		return basicPrompt
	}
}

// Usecases returns the selectable use case names.
func Usecases() []string {
	return []string{UsecaseBasic, UsecaseAgentic}
}
