package i18n

// loadSpanishMessages loads all Spanish translations.
func loadSpanishMessages() {
	messages[LangES] = map[string]string{
		// Request validation
		"validate.author_human":   "este endpoint solo acepta mensajes de usuario (HUMAN)",
		"validate.single_text":    "el mensaje debe contener exactamente un fragmento de tipo 'text'",
		"validate.empty_text":     "el mensaje no puede estar vacío",
		"validate.invalid_id":     "formato de identificador inválido",
		"validate.nothing_to_set": "no hay datos para actualizar",

		// Stream lifecycle
		"stream.agent_start":            "Procesando tu consulta...",
		"stream.conversation_not_found": "Chat no encontrado",
		"stream.previous_not_found":     "Mensaje anterior no encontrado",
		"stream.internal_error":         "Error interno: %s",
		"stream.save_failed":            "Error al guardar la respuesta",

		// Pipeline stages
		"pipeline.analyze.system_prompt": "Eres un asistente experto en análisis de consultas. Tu trabajo es:\n1. Identificar la intención principal de la consulta\n2. Extraer palabras clave importantes\n3. Determinar qué tipo de información se necesita buscar\n4. Sugerir un enfoque para responder\n\nResponde de forma concisa y estructurada.",
		"pipeline.analyze.prompt":        "Analiza esta consulta del usuario:\n\"%s\"\n\nProporciona:\n- Intención principal\n- Palabras clave (máximo 5)\n- Tipo de información necesaria\n- Enfoque sugerido",
		"pipeline.generate.system_prompt": "Eres un asistente de investigación útil y preciso.\nTu trabajo es proporcionar respuestas detalladas, bien estructuradas y fáciles de entender.\nSiempre:\n- Responde de forma clara y organizada\n- Usa ejemplos cuando sea apropiado\n- Si no estás seguro de algo, dilo claramente\n- Mantén un tono profesional pero amigable",
		"pipeline.analyze.complete":    "Análisis completado:\n\n%s",
		"pipeline.analyze.fallback":    "Continuando con la consulta original: %s",
		"pipeline.research.start":      "Iniciando investigación en fuentes disponibles para la consulta %s",
		"pipeline.generate.preparing":  "Generando respuesta...",
		"pipeline.generate.failed":     "Lo siento, ocurrió un error al generar la respuesta. Error: %s",
		"pipeline.finalize.validating": "Validando calidad de la respuesta...",
		"pipeline.finalize.done":       "Procesamiento completado exitosamente",
		"pipeline.placeholder":         "Respuesta procesada",
	}
}
