package compress

// compressionPrompt is the fixed system instruction for the summarization
// call. The resulting text replaces the compressed portion of history
// verbatim, so it must stand alone as conversation context.
const compressionPrompt = `You are compressing the earlier portion of a long conversation so it can continue within a bounded context window. Write a concise summary that preserves:
1. The main topics discussed and the user's goals
2. Key decisions, conclusions and constraints
3. Important facts, data and tool results mentioned
4. Any pending tasks or open questions

Write the summary as plain prose. Do not address the user, do not mention that this is a summary, and do not invent information that is not present in the conversation.`

// compressionAck is the fixed model acknowledgment inserted after the
// summary turn.
const compressionAck = "Got it. Thanks for the additional context!"
