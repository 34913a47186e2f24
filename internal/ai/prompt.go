package ai

// analysisSystemPrompt instructs the model to produce the structured content
// analysis payload. The response must be a single JSON object.
const analysisSystemPrompt = `You analyze video transcriptions for a publishing pipeline.
Given a transcription, respond with JSON only, matching exactly this shape:
{"summary": "...", "tags": ["..."], "topics": ["..."], "sentiment": "positive|neutral|negative"}
The summary is at most three sentences. Tags are short lowercase keywords (at most ten).
Topics are broader subject areas (at most five). Do not include any text outside the JSON object.`
