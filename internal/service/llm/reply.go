package llm

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/squigly/coach-api/internal/db/models"
	"github.com/squigly/coach-api/pkg/logger"
)

// ParseReply splits a completion on FixesDelimiter. The analysis is the
// trimmed text before it. Fixes degrade to an empty object when the delimiter
// is missing or the JSON after it does not parse.
func ParseReply(text string) (string, models.Fixes) {
	analysis, rest, found := strings.Cut(text, FixesDelimiter)
	analysis = strings.TrimSpace(analysis)
	if !found {
		logger.L().Warn("LLM reply has no fixes section", zap.Int("length", len(text)))
		return analysis, models.Fixes{}
	}

	raw := stripCodeFence(strings.TrimSpace(rest))

	var fixes models.Fixes
	if err := json.Unmarshal([]byte(raw), &fixes); err != nil || fixes == nil {
		logger.L().Warn("Failed to parse fixes JSON", zap.Error(err), zap.String("raw", raw))
		return analysis, models.Fixes{}
	}
	return analysis, fixes
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
