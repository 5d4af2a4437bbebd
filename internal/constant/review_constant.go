package constant

const (
	// ReviewPromptTemplate is filled with the retrieved context and the submitted code, in that order.
	ReviewPromptTemplate = "Review the following code. Similar code examples:\n%s\n\nCode to review:\n%s\n\nProvide a detailed review:"

	// ReviewErrorPrefix starts the review text returned when the completion call fails.
	ReviewErrorPrefix = "Error generating review: "

	ReviewContextSize = 3

	ConversationTitleMaxLen = 80
)
