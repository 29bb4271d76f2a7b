package models

const (
	EmptyPageFormat = "[Empty page %d]"
	ErrorPageFormat = "[Error reading page %d]"
	SentinelRegex   = `^\[(Empty page|Error reading page) \d+\]$`

	BlockSeparator   = "\n\n"
	TruncationMarker = "\n[Text truncated due to length...]"
	SentenceBoundary = `[.!?]\s+[A-Z]`
)

var (
	AnswerSystemPrompt = "You are a helpful assistant that answers questions based on provided context."

	AnswerPromptTemplate = `Based on the following context from the document, provide a detailed and well-structured answer.
For overview/process questions, organize the response with clear sections and bullet points.

Context from document:
%s

Question: %s

Instructions:
1. Use only the provided context to answer
2. For workflow/process questions, break down steps clearly
3. Use bullet points and sections where appropriate
4. If information is not in the context, say so

Please provide a detailed response:`

	SummarySystemPrompt = "You are a helpful assistant that creates comprehensive document summaries."

	SummaryPromptTemplate = `Please provide a comprehensive summary of the following document.
Include the main topics, key points, and important conclusions.
Format the summary with clear sections and bullet points where appropriate.

Document:
%s

Instructions:
1. Start with a brief overview
2. List main topics using bullet points
3. Highlight key findings or conclusions
4. Use clear formatting for readability

Summary:`

	OCRPrompt = `Transcribe all text visible in this image.
Return only the recognized text, one line of the image per line of output, in reading order.
If the image contains no text, return nothing.`
)
