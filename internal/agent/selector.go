package agent

import "strings"

// serverMapping ties a class of questions to the MCP server that can answer
// them.
type serverMapping struct {
	server   string
	keywords []string
}

// defaultMappings cover the tool servers the surrounding application ships:
// restaurant, parking and weather information.
var defaultMappings = []serverMapping{
	{
		server: "restaurant",
		keywords: []string{
			"restaurant", "sushi", "food", "menu", "dining", "eat",
			"lunch", "dinner", "cuisine", "meal",
		},
	},
	{
		server: "parking",
		keywords: []string{
			"parking", "park", "spot", "garage", "lot", "vehicle", "car", "space",
		},
	},
	{
		server: "weather",
		keywords: []string{
			"weather", "temperature", "rain", "sunny", "cloudy",
			"climate", "forecast",
		},
	},
}

// selectServers returns the names of MCP servers relevant to the question.
// A question mentioning several topics selects every matching server.
func selectServers(question string, mappings []serverMapping) []string {
	question = strings.ToLower(question)

	var selected []string
	for _, m := range mappings {
		for _, kw := range m.keywords {
			if strings.Contains(question, kw) {
				selected = append(selected, m.server)
				break
			}
		}
	}
	return selected
}
