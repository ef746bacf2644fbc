package i18n

// loadEnglishMessages loads all English translations.
func loadEnglishMessages() {
	messages[LangEN] = map[string]string{
		// Request validation
		"validate.author_human":   "this endpoint only accepts user (HUMAN) messages",
		"validate.single_text":    "the message must contain exactly one fragment of type 'text'",
		"validate.empty_text":     "the message must not be empty",
		"validate.invalid_id":     "invalid identifier format",
		"validate.nothing_to_set": "no fields to update",

		// Stream lifecycle
		"stream.agent_start":            "Processing your query...",
		"stream.conversation_not_found": "Conversation not found",
		"stream.previous_not_found":     "Previous message not found",
		"stream.internal_error":         "Internal error: %s",
		"stream.save_failed":            "Failed to save the response",

		// Pipeline stages
		"pipeline.analyze.system_prompt": "You are an expert query-analysis assistant. Your job is to:\n1. Identify the main intent of the query\n2. Extract important keywords\n3. Determine what kind of information needs to be looked up\n4. Suggest an approach for answering\n\nAnswer concisely and with structure.",
		"pipeline.analyze.prompt":        "Analyze this user query:\n\"%s\"\n\nProvide:\n- Main intent\n- Keywords (at most 5)\n- Kind of information needed\n- Suggested approach",
		"pipeline.generate.system_prompt": "You are a helpful and precise research assistant.\nYour job is to provide detailed, well-structured, easy-to-understand answers.\nAlways:\n- Answer clearly and in an organized way\n- Use examples when appropriate\n- If you are unsure about something, say so clearly\n- Keep a professional but friendly tone",
		"pipeline.analyze.complete":    "Analysis complete:\n\n%s",
		"pipeline.analyze.fallback":    "Continuing with the original query: %s",
		"pipeline.research.start":      "Starting research across available sources for query %s",
		"pipeline.generate.preparing":  "Generating response...",
		"pipeline.generate.failed":     "Sorry, an error occurred while generating the response. Error: %s",
		"pipeline.finalize.validating": "Validating response quality...",
		"pipeline.finalize.done":       "Processing completed successfully",
		"pipeline.placeholder":         "Response processed",
	}
}
