package openapi

import (
	"strings"

	strata "github.com/goliatone/go-strata"
)

// Placeholders expanded in operation paths and ids.
const (
	TypePlaceholder    = "{type}"
	StratumPlaceholder = "{stratum}"
)

type generatorConfig struct {
	openAPIVersion string

	title       string
	version     string
	description string

	method      string
	path        string
	operationID string
	summary     string

	contentTypes []string
	strata       []string
	responses    map[string]string
}

func defaultGeneratorConfig() generatorConfig {
	return generatorConfig{
		openAPIVersion: "3.0.3",
		title:          "Catalog Member Schema",
		version:        "1.0.0",
		method:         "put",
		path:           "/models/" + TypePlaceholder + "/strata/" + StratumPlaceholder,
		contentTypes:   []string{"application/json", "application/yaml"},
		strata:         []string{strata.StratumUser, strata.StratumDefinition, strata.StratumOverride},
		responses: map[string]string{
			"204": "Stratum updated",
		},
	}
}

// GeneratorOption configures the OpenAPI generator.
type GeneratorOption func(*generatorConfig)

// WithOpenAPIVersion overrides the OpenAPI version string (default: 3.0.3).
func WithOpenAPIVersion(version string) GeneratorOption {
	return func(cfg *generatorConfig) {
		if version != "" {
			cfg.openAPIVersion = version
		}
	}
}

// WithInfo sets the info block. Empty values keep the defaults.
func WithInfo(title, version, description string) GeneratorOption {
	return func(cfg *generatorConfig) {
		if title != "" {
			cfg.title = title
		}
		if version != "" {
			cfg.version = version
		}
		if description != "" {
			cfg.description = description
		}
	}
}

// WithOperation sets the stratum write operation. path and operationID may
// hold TypePlaceholder and StratumPlaceholder; an empty operationID is
// derived from method and path.
func WithOperation(method, path, operationID string) GeneratorOption {
	return func(cfg *generatorConfig) {
		if method != "" {
			cfg.method = strings.ToLower(method)
		}
		if path != "" {
			cfg.path = path
		}
		cfg.operationID = operationID
	}
}

// WithSummary attaches a summary to the write operation.
func WithSummary(summary string) GeneratorOption {
	return func(cfg *generatorConfig) {
		cfg.summary = strings.TrimSpace(summary)
	}
}

// WithContentTypes replaces the accepted request body types.
func WithContentTypes(contentTypes ...string) GeneratorOption {
	return func(cfg *generatorConfig) {
		if len(contentTypes) > 0 {
			cfg.contentTypes = append([]string(nil), contentTypes...)
		}
	}
}

// WithStrata lists the strata clients may write, published as the enum of
// the stratum path parameter.
func WithStrata(names ...string) GeneratorOption {
	return func(cfg *generatorConfig) {
		if len(names) > 0 {
			cfg.strata = append([]string(nil), names...)
		}
	}
}

// WithResponse adds or replaces the response documented for status.
func WithResponse(status, description string) GeneratorOption {
	return func(cfg *generatorConfig) {
		if status == "" {
			return
		}
		if cfg.responses == nil {
			cfg.responses = map[string]string{}
		}
		cfg.responses[status] = description
	}
}
