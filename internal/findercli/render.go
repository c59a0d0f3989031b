package findercli

import (
	"encoding/json"
	"strings"

	"finder/internal/model"
)

func RenderJSONL(items []model.PathEntry) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	for _, item := range items {
		_ = enc.Encode(item)
	}
	return b.String()
}

func RenderPaths(items []model.PathEntry) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString(item.Path)
		b.WriteByte('\n')
	}
	return b.String()
}
