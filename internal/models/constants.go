package models

const (
	SemanticConfigName = "semantic-config"
	SourceSeparator    = "  |  "
	TruncationMarker   = "..."
)

// prompts
const (
	SummarySystemPrompt   = "You are a helpful assistant."
	SummaryPromptTemplate = "Summarize the following content while preserving all original information and extracting any tabular data:\n\n%s"

	AnswerSystemPrompt   = "You are a helpful assistant. Analyze the provided context and tables to answer questions about ownership and company information."
	AnswerPromptTemplate = "Context: %s\nTables: %s\n\nQuestion: %s\n\nAnswer:"
)

// Display text stored or shown in place of real content when a completion fails.
const (
	SummaryErrorText            = "Error: Could not generate summary."
	SummaryRetriesExhaustedText = "Error: Exceeded maximum retries due to rate limiting."
	AnswerErrorText             = "Error: Could not generate answer due to context length limitations."
	SearchErrorText             = "Error: Could not search the knowledge base."
)
