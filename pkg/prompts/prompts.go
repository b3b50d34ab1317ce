package prompts

var (
	ThinkTemplate = `{{.SystemPrompt}}

User question: {{.Task}}

Available tools:
{{.Tools}}
{{.History}}{{.LastObservation}}
Respond in exactly this format:

THOUGHT: [your reasoning about the current situation and what to do next]
ACTION: [TOOL or FINISH]
TOOL: [if ACTION is TOOL, the tool name, e.g. network.ping]
PARAMS: [if ACTION is TOOL, the parameters as JSON, e.g. {"target": "example.com", "count": 4}]

Rules:
1. If you need a value produced by an earlier step (such as a resolved IP address), take it from the last observation instead of guessing.
2. If the task is complete, set ACTION to FINISH.
3. Run one tool at a time.
4. PARAMS must be valid JSON.

Now give your decision:`

	ThinkBatchTemplate = `{{.SystemPrompt}}

User question: {{.Task}}

Available tools:
{{.Tools}}
{{.History}}{{.LastObservation}}
Respond in exactly this format (you may plan several tools at once):

THOUGHT: [your reasoning about the current situation and what to do next]
ACTION: [TOOL or FINISH]

To plan multiple tools (at most {{.MaxBatchSize}}):
TOOL_1: [first tool name]
PARAMS_1: [first tool parameters as JSON]
TOOL_2: [second tool name, optional]
PARAMS_2: [second tool parameters as JSON, optional]

Or a single tool:
TOOL: [tool name]
PARAMS: [parameters as JSON]

Rules:
1. If you need a value produced by an earlier step (such as a resolved IP address), take it from the last observation instead of guessing.
2. Only tools that do not depend on each other's output may be planned together; dependent calls must be separate steps.
3. If the task is complete, set ACTION to FINISH.
4. PARAMS must be valid JSON.

Now give your decision:`

	RouterPreamble = `You are a routing system. Analyze the user's question and decide which agents should handle it.

Available agents:
`

	RouterInstructions = `
Your task:
1. Analyze the user's question.
2. Decide which agents are needed and in what order.
3. Give each agent a concrete task description, carrying over any specific values from the question (domains, IPs, table names).

Reply with valid JSON only, no other text:
{
  "agents": [
    {"name": "agent_name", "task": "concrete task description"}
  ],
  "reasoning": "your analysis"
}`

	RouterInstructionsFirstAction = `
Your task:
1. Analyze the user's question.
2. Decide which agents are needed and in what order.
3. Give each agent a concrete task description, carrying over any specific values from the question (domains, IPs, table names).
4. Plan the first agent's opening tool call.

Reply with valid JSON only, no other text:
{
  "agents": [
    {"name": "agent_name", "task": "concrete task description"}
  ],
  "first_action": {
    "thought": "why this call comes first",
    "tool": "tool name, e.g. network.ping or mysql.execute_query",
    "params": {"param": "value"}
  },
  "reasoning": "your analysis"
}`

	RouterUserTemplate = `User question: {{.Question}}`

	AnalysisTemplate = `You are a {{.Expert}}. Answer the user's question from the tool output below.

## User question
{{.Question}}

## Tool output
{{.Results}}

Base every statement on the actual data above. If a tool failed, say so and why; never invent data. Explain what the output means, state the key findings, and answer the question directly. Keep it short.`
)
