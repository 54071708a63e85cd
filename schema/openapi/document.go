package openapi

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

type openAPIDocumentBuilder struct {
	config    generatorConfig
	typeTag   string
	component string
	schema    map[string]any
}

func newOpenAPIDocumentBuilder(config generatorConfig, typeTag string, schema map[string]any) *openAPIDocumentBuilder {
	return &openAPIDocumentBuilder{
		config:    config,
		typeTag:   typeTag,
		component: componentName(typeTag),
		schema:    schema,
	}
}

func (b *openAPIDocumentBuilder) build() (map[string]any, error) {
	if b.schema == nil {
		return nil, fmt.Errorf("openapi: schema for %q cannot be nil", b.typeTag)
	}

	document := map[string]any{
		"openapi": b.config.openAPIVersion,
		"info":    b.buildInfo(),
		"paths":   b.buildPaths(),
		"components": map[string]any{
			"schemas": map[string]any{
				b.component: b.schema,
			},
		},
	}

	if err := validateDocument(document); err != nil {
		return nil, err
	}

	return document, nil
}

func (b *openAPIDocumentBuilder) buildInfo() map[string]any {
	info := map[string]any{
		"title":   b.config.title,
		"version": b.config.version,
	}
	if b.config.description != "" {
		info["description"] = b.config.description
	}
	return info
}

func (b *openAPIDocumentBuilder) buildPaths() map[string]any {
	method := b.config.method
	if method == "" {
		method = "put"
	}

	ref := map[string]any{"$ref": "#/components/schemas/" + b.component}
	content := make(map[string]any, len(b.config.contentTypes))
	for _, contentType := range b.config.contentTypes {
		content[contentType] = map[string]any{"schema": ref}
	}

	statuses := make([]string, 0, len(b.config.responses))
	for status := range b.config.responses {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	responses := make(map[string]any, len(statuses))
	for _, status := range statuses {
		responses[status] = map[string]any{"description": b.config.responses[status]}
	}

	operation := map[string]any{
		"operationId": b.operationID(method),
		"requestBody": map[string]any{
			"required": true,
			"content":  content,
		},
		"responses": responses,
	}
	if b.config.summary != "" {
		operation["summary"] = b.config.summary
	}
	if strings.Contains(b.config.path, StratumPlaceholder) {
		operation["parameters"] = []any{stratumParameter(b.config.strata)}
	}

	return map[string]any{
		b.expand(b.config.path): map[string]any{
			method: operation,
		},
	}
}

// stratumParameter describes the path segment naming the stratum to write.
func stratumParameter(names []string) map[string]any {
	schema := map[string]any{"type": "string"}
	if len(names) > 0 {
		enum := make([]any, len(names))
		for i, name := range names {
			enum[i] = name
		}
		schema["enum"] = enum
	}
	return map[string]any{
		"name":        "stratum",
		"in":          "path",
		"required":    true,
		"description": "Stratum receiving the trait values.",
		"schema":      schema,
	}
}

func (b *openAPIDocumentBuilder) operationID(method string) string {
	if b.config.operationID != "" {
		return b.expand(b.config.operationID)
	}
	return fmt.Sprintf("%s:%s", method, b.expand(b.config.path))
}

// expand substitutes the type tag. StratumPlaceholder stays as the OpenAPI
// path parameter.
func (b *openAPIDocumentBuilder) expand(template string) string {
	return strings.ReplaceAll(template, TypePlaceholder, b.typeTag)
}

// componentName turns a type tag such as "csv-item" into "CsvItem".
func componentName(typeTag string) string {
	var out strings.Builder
	upper := true
	for _, r := range typeTag {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		out.WriteRune(r)
	}
	if out.Len() == 0 {
		return "Model"
	}
	return out.String()
}

func validateDocument(document map[string]any) error {
	if document == nil {
		return fmt.Errorf("openapi: document cannot be nil")
	}
	openapi, _ := document["openapi"].(string)
	if openapi == "" {
		return fmt.Errorf("openapi: document missing version string")
	}
	info, _ := document["info"].(map[string]any)
	if info == nil {
		return fmt.Errorf("openapi: document missing info section")
	}
	if title, _ := info["title"].(string); title == "" {
		return fmt.Errorf("openapi: info.title must be set")
	}
	if version, _ := info["version"].(string); version == "" {
		return fmt.Errorf("openapi: info.version must be set")
	}
	paths, _ := document["paths"].(map[string]any)
	if len(paths) == 0 {
		return fmt.Errorf("openapi: document must define at least one path")
	}
	for pathKey, pathValue := range paths {
		pathItem, _ := pathValue.(map[string]any)
		if pathItem == nil {
			return fmt.Errorf("openapi: path %q invalid payload", pathKey)
		}
		if len(pathItem) == 0 {
			return fmt.Errorf("openapi: path %q missing operations", pathKey)
		}
		for method, operationValue := range pathItem {
			operation, _ := operationValue.(map[string]any)
			if operation == nil {
				return fmt.Errorf("openapi: operation %s %s invalid payload", method, pathKey)
			}
			if _, ok := operation["operationId"].(string); !ok {
				return fmt.Errorf("openapi: operation %s %s missing operationId", method, pathKey)
			}
			requestBody, _ := operation["requestBody"].(map[string]any)
			if requestBody == nil {
				return fmt.Errorf("openapi: operation %s %s missing requestBody", method, pathKey)
			}
			content, _ := requestBody["content"].(map[string]any)
			if len(content) == 0 {
				return fmt.Errorf("openapi: operation %s %s requestBody missing content", method, pathKey)
			}
			if _, ok := operation["responses"].(map[string]any); !ok {
				return fmt.Errorf("openapi: operation %s %s missing responses", method, pathKey)
			}
		}
	}
	return nil
}
