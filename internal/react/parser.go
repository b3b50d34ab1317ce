package react

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"netagent/pkg/models"
)

// The parser copes with whatever dialect the model happened to answer in.
// Strategies are tried in a fixed order and the first one that yields a
// usable action wins: a JSON object (fenced or inline), then the line
// grammar (English or Chinese labels), then the batch grammar. Behavior
// depends on this ordering; don't reshuffle it.

var (
	fencedJSONRe = regexp.MustCompile("(?is)```json\\s*(\\{.+?\\})\\s*```")
	fencedRe     = regexp.MustCompile("(?s)```\\s*(\\{.+?\\})\\s*```")
	inlineJSONRe = regexp.MustCompile(`(?is)(\{[^{}]*"(?:ACTION|THOUGHT|TOOL)"[^{}]*\})`)

	thoughtRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)THOUGHT:\s*(.+?)(?:\nACTION:|\nTOOL:|\n\n|$)`),
		regexp.MustCompile(`(?i)"THOUGHT":\s*"([^"]+)"`),
		regexp.MustCompile(`(?s)思考[:：]\s*(.+?)(?:\n行动[:：]|\n工具[:：]|\n\n|$)`),
	}
	actionRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)ACTION:\s*(TOOL|FINISH|[a-zA-Z_][a-zA-Z0-9_.]*)`),
		regexp.MustCompile(`(?i)"ACTION":\s*"?(TOOL|FINISH|[a-zA-Z_][a-zA-Z0-9_.]*)"?`),
		regexp.MustCompile(`(?i)行动[:：]\s*(工具|完成|TOOL|FINISH)`),
	}
	toolRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)TOOL:\s*([a-zA-Z_][a-zA-Z0-9_.]*)`),
		regexp.MustCompile(`(?i)"TOOL":\s*"?([a-zA-Z_][a-zA-Z0-9_.]*)"?`),
		regexp.MustCompile(`工具[:：]\s*([a-zA-Z_][a-zA-Z0-9_.]*)`),
	}
	paramsRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)PARAMS:\s*(\{.+?\})(?:\n[A-Z]|\n\n|$)`),
		regexp.MustCompile(`(?s)"PARAMS":\s*(\{.+?\})`),
		regexp.MustCompile(`(?s)参数[:：]\s*(\{.+?\})`),
	}

	finishWordRe = regexp.MustCompile(`(?i)\bFINISH\b`)
)

const maxBatchTools = 9

// Parse turns free-form model output into a structured decision. When
// toolPrefix is non-empty, bare tool names are completed to
// "prefix.name"; names that already carry any namespace are left alone.
func Parse(output, toolPrefix string) models.Decision {
	d := models.Decision{Action: models.Action{Type: models.ActionUnknown, Params: map[string]any{}}}
	actionParsed := false

	if jd, ok := parseJSONDialect(output, toolPrefix); ok {
		d = jd
		actionParsed = true
	} else {
		actionParsed = parseLineDialect(output, toolPrefix, &d)
	}

	if !actionParsed || d.Action.Type == models.ActionUnknown {
		d.Action.Type = resolveAmbiguous(output, d.Action.Tool)
	}

	if batch := parseBatchDialect(output, toolPrefix); len(batch) > 0 {
		d.Action.Type = models.ActionTool
		d.Action.Tool = batch[0].Tool
		d.Action.Params = batch[0].Params
		if len(batch) > 1 {
			d.Batch = batch
		}
	}

	log.Debug().Str("action", string(d.Action.Type)).Str("tool", d.Action.Tool).Msg("parsed model output")
	return d
}

// parseJSONDialect handles a JSON object carrying ACTION/THOUGHT/TOOL keys,
// fenced or inline. Returns false when no object with an action was found so
// the line grammar gets its turn.
func parseJSONDialect(output, toolPrefix string) (models.Decision, bool) {
	var raw string
	if m := fencedJSONRe.FindStringSubmatch(output); m != nil {
		raw = m[1]
	} else if m := fencedRe.FindStringSubmatch(output); m != nil {
		raw = m[1]
	} else if m := inlineJSONRe.FindStringSubmatch(output); m != nil {
		raw = m[1]
	}
	if raw == "" {
		return models.Decision{}, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		log.Warn().Err(err).Msg("json dialect unmarshal failed, trying line grammar")
		return models.Decision{}, false
	}

	d := models.Decision{Action: models.Action{Params: map[string]any{}}}
	d.Thought, _ = jsonKey(obj, "THOUGHT").(string)

	action, _ := jsonKey(obj, "ACTION").(string)
	if action == "" {
		return models.Decision{}, false
	}

	switch strings.ToUpper(action) {
	case "FINISH":
		d.Action.Type = models.ActionFinish
	case "TOOL":
		d.Action.Type = models.ActionTool
		d.Action.Tool, _ = jsonKey(obj, "TOOL").(string)
		d.Action.Params = jsonParams(obj)
	default:
		// the model wrote the tool name straight into the action field
		d.Action.Type = models.ActionTool
		d.Action.Tool = action
		d.Action.Params = jsonParams(obj)
	}
	d.Action.Tool = EnsureToolPrefix(d.Action.Tool, toolPrefix)
	return d, true
}

func jsonKey(obj map[string]any, key string) any {
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func jsonParams(obj map[string]any) map[string]any {
	switch v := jsonKey(obj, "PARAMS").(type) {
	case map[string]any:
		return v
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err == nil {
			return m
		}
	}
	return map[string]any{}
}

// parseLineDialect fills d from the THOUGHT:/ACTION:/TOOL:/PARAMS: line
// grammar and its Chinese equivalents. Returns whether an action was
// identified.
func parseLineDialect(output, toolPrefix string, d *models.Decision) bool {
	actionParsed := false

	if m := firstMatch(thoughtRes, output); m != "" {
		d.Thought = strings.TrimSpace(m)
	}

	if m := firstMatch(actionRes, output); m != "" {
		actionParsed = true
		switch strings.ToUpper(m) {
		case "FINISH", "完成":
			d.Action.Type = models.ActionFinish
		case "TOOL", "工具":
			d.Action.Type = models.ActionTool
		default:
			// ACTION: mysql.list_tables
			d.Action.Type = models.ActionTool
			d.Action.Tool = m
		}
	}

	if d.Action.Type == models.ActionTool || !actionParsed {
		if d.Action.Tool == "" {
			if m := firstMatch(toolRes, output); m != "" {
				d.Action.Tool = m
				d.Action.Type = models.ActionTool
				actionParsed = true
			}
		}
		if m := firstMatch(paramsRes, output); m != "" {
			var params map[string]any
			if err := json.Unmarshal([]byte(m), &params); err != nil {
				log.Warn().Err(err).Msg("params json unmarshal failed")
			} else {
				d.Action.Params = params
			}
		}
		d.Action.Tool = EnsureToolPrefix(d.Action.Tool, toolPrefix)
	}

	return actionParsed
}

// resolveAmbiguous decides what an output without an explicit action means.
// A found tool name implies TOOL; an explicit finish keyword implies FINISH;
// otherwise FINISH is the fallback of last resort, logged so a premature
// termination can be told apart from a real model decision.
func resolveAmbiguous(output, toolName string) models.ActionType {
	if toolName != "" {
		log.Info().Str("tool", toolName).Msg("no explicit action, inferring tool call from tool name")
		return models.ActionTool
	}
	if finishWordRe.MatchString(output) || strings.Contains(output, "完成任务") || strings.Contains(output, "任务完成") {
		log.Warn().Msg("no explicit action, finish keyword found in output")
		return models.ActionFinish
	}
	log.Warn().Str("output_head", head(output, 500)).Msg("parser defaulted to finish: no action, tool or finish signal in model output")
	return models.ActionFinish
}

// parseBatchDialect reads repeated TOOL_{i}:/PARAMS_{i}: pairs. Indexing
// starts at 1 and stops at the first missing index.
func parseBatchDialect(output, toolPrefix string) []models.QueuedTool {
	var batch []models.QueuedTool
	for i := 1; i <= maxBatchTools; i++ {
		toolRe := regexp.MustCompile(fmt.Sprintf(`(?i)TOOL_%d:\s*([a-zA-Z_][a-zA-Z0-9_.]*)`, i))
		m := toolRe.FindStringSubmatch(output)
		if m == nil {
			break
		}

		params := map[string]any{}
		paramsRe := regexp.MustCompile(fmt.Sprintf(`(?is)PARAMS_%d:\s*(\{.+?\})(?:\n[A-Z]|\nTOOL_|\n\n|$)`, i))
		if pm := paramsRe.FindStringSubmatch(output); pm != nil {
			_ = json.Unmarshal([]byte(pm[1]), &params)
		}

		batch = append(batch, models.QueuedTool{
			Tool:   EnsureToolPrefix(strings.TrimSpace(m[1]), toolPrefix),
			Params: params,
		})
	}
	if len(batch) > 0 {
		log.Info().Int("count", len(batch)).Msg("parsed batch-planned tools")
	}
	return batch
}

// EnsureToolPrefix completes a bare tool name with the agent's namespace.
// Names that already carry any namespace are never rewritten.
func EnsureToolPrefix(name, prefix string) string {
	if name == "" || prefix == "" {
		return name
	}
	if strings.Contains(name, ".") {
		return name
	}
	return prefix + "." + name
}

func firstMatch(res []*regexp.Regexp, s string) string {
	for _, re := range res {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[1]
		}
	}
	return ""
}

func head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
