package gemini

import "google.golang.org/genai"

// =============================================================================
// Tool Declarations
// =============================================================================

// ColleagueHelpTool is the name of the escalation tool the model can invoke
// when a question cannot be answered from the cached inventory.
const ColleagueHelpTool = "request_colleague_help"

// colleagueHelpDeclaration declares the escalation tool baked into every
// context cache. The webhook shell delivers the invocation to a human
// colleague and the acknowledgement is returned to the model.
func colleagueHelpDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name: ColleagueHelpTool,
		Description: "Forward a question to a human colleague when the answer is not " +
			"available in the inventory context. Use only after attempting to answer " +
			"from the provided inventory.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"question": {
					Type:        genai.TypeString,
					Description: "The customer question to forward, with enough context to answer it.",
				},
				"reason": {
					Type:        genai.TypeString,
					Description: "Why the inventory context was insufficient.",
				},
			},
			Required: []string{"question"},
		},
	}
}

// cacheTools returns the tool set included in new context caches.
func cacheTools() []*genai.Tool {
	return []*genai.Tool{
		{FunctionDeclarations: []*genai.FunctionDeclaration{colleagueHelpDeclaration()}},
	}
}
