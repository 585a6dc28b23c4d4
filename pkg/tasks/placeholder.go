package tasks

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cadenzo/cadenzo/pkg/models"
)

// Placeholder tokens are resolved over the serialized JSON text of the task
// config, not over a parsed object graph. A token whose field is absent from
// the data document stays in place verbatim.
var placeholderPattern = regexp.MustCompile(`\{\{(data\.[^{}]+|workflow\.instanceId|workflow\.timestamp)\}\}`)

const (
	instanceIDToken = "workflow.instanceId"
	timestampToken  = "workflow.timestamp"
	dataTokenPrefix = "data."
)

// ResolvePlaceholders substitutes {{data.<field>}}, {{workflow.instanceId}}
// and {{workflow.timestamp}} tokens in the config document against the merged
// data document and the running instance.
func ResolvePlaceholders(config, data models.Document, instanceID string, now time.Time) (models.Document, error) {
	raw, err := config.JSON()
	if err != nil {
		return nil, err
	}

	resolved := placeholderPattern.ReplaceAllStringFunc(string(raw), func(token string) string {
		ref := strings.TrimSuffix(strings.TrimPrefix(token, "{{"), "}}")

		switch ref {
		case instanceIDToken:
			return escapeJSONString(instanceID)
		case timestampToken:
			return escapeJSONString(now.UTC().Format(time.RFC3339))
		}

		field := strings.TrimPrefix(ref, dataTokenPrefix)

		value, ok := data.StringField(field)
		if !ok {
			return token
		}

		return escapeJSONString(value)
	})

	doc, err := models.ParseDocument([]byte(resolved))
	if err != nil {
		return nil, fmt.Errorf("config is not valid JSON after placeholder substitution: %w", err)
	}

	return doc, nil
}

// escapeJSONString escapes a substitution value so it stays valid inside a
// JSON string literal. Values without special characters come back unchanged.
func escapeJSONString(s string) string {
	raw, err := json.Marshal(s)
	if err != nil {
		return s
	}

	return string(raw[1 : len(raw)-1])
}
