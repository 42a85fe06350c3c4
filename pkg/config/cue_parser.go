package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a bootstrap document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCUE  Format = "cue"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("unsupported configuration file %s: want .yaml, .json or .cue", path)
	}
}

// Parser loads bootstrap documents and validates them.
type Parser struct {
	ctx            *cue.Context
	schemaRegistry *SchemaRegistry
	validator      *validator.Validate
}

// NewParser creates a new parser.
func NewParser() *Parser {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Parser{
		ctx:            cuecontext.New(),
		schemaRegistry: NewSchemaRegistry(),
		validator:      v,
	}
}

// Load reads, parses and validates the bootstrap document at path.
func (p *Parser) Load(ctx context.Context, path string) (*BootstrapConfig, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return p.Parse(ctx, content, format, path)
}

// Parse decodes a bootstrap document and validates it. Fields the document
// omits keep the values of Default. filename is used in error locations.
func (p *Parser) Parse(ctx context.Context, content []byte, format Format, filename string) (*BootstrapConfig, error) {
	cfg := Default()

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, ValidationErrors{{File: filename, Message: err.Error()}}
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(content))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, ValidationErrors{{File: filename, Message: err.Error()}}
		}
	case FormatCUE:
		if err := p.parseCUE(content, filename, &cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}

	if err := p.Validate(ctx, &cfg); err != nil {
		if verrs, ok := err.(ValidationErrors); ok {
			for i := range verrs {
				verrs[i].File = filename
			}
		}
		return nil, err
	}
	return &cfg, nil
}

// ParseInline parses inline CUE content.
func (p *Parser) ParseInline(ctx context.Context, content string) (*BootstrapConfig, error) {
	return p.Parse(ctx, []byte(content), FormatCUE, "inline")
}

func (p *Parser) parseCUE(content []byte, filename string, cfg *BootstrapConfig) error {
	val := p.ctx.CompileBytes(content, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return p.convertCUEErrors(err)
	}

	unified, err := p.schemaRegistry.Apply(SchemaBootstrap, val)
	if err != nil {
		return p.convertCUEErrors(err)
	}

	data, err := unified.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to export %s: %w", filename, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return ValidationErrors{{File: filename, Message: err.Error()}}
	}
	return nil
}

// Validate checks field constraints and the consistency between fields.
func (p *Parser) Validate(ctx context.Context, cfg *BootstrapConfig) error {
	var errs ValidationErrors

	if err := p.validator.StructCtx(ctx, cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validation failed: %w", err)
		}
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				Path:    fieldPath(fe.Namespace()),
				Message: constraintMessage(fe),
			})
		}
	}

	errs = append(errs, checkConsistency(cfg)...)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// checkConsistency validates rules that span several fields.
func checkConsistency(cfg *BootstrapConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Log.Type == LogTypeMemory && cfg.Log.Memory == nil {
		errs = append(errs, ValidationError{Path: "log.memory", Message: "required when log type is MEMORY"})
	}
	if cfg.Log.Type == LogTypeLock && cfg.Lock == nil {
		errs = append(errs, ValidationError{Path: "lock", Message: "required when log type is LOCK"})
	}

	switch src := cfg.PolicyStore.Source; {
	case src.IsFile() && cfg.PolicyStore.Path == "":
		errs = append(errs, ValidationError{Path: "policy_store.path", Message: fmt.Sprintf("required for source %s", src)})
	case !src.IsFile() && src != "" && cfg.PolicyStore.Data == "":
		errs = append(errs, ValidationError{Path: "policy_store.data", Message: fmt.Sprintf("required for source %s", src)})
	}

	if lock := cfg.Lock; lock != nil {
		for name, d := range map[string]*Duration{
			"lock.log_interval":       lock.LogInterval,
			"lock.health_interval":    lock.HealthInterval,
			"lock.telemetry_interval": lock.TelemetryInterval,
		} {
			if d != nil && d.Duration < 0 {
				errs = append(errs, ValidationError{Path: name, Message: "must not be negative"})
			}
		}
	}

	return errs
}

func fieldPath(namespace string) string {
	// The first element is the Go type name.
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func constraintMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("%v is not one of [%s]", fe.Value(), fe.Param())
	case "url":
		return fmt.Sprintf("%v is not a valid URL", fe.Value())
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("failed constraint %s=%s", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed constraint %s", fe.Tag())
	}
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func (p *Parser) convertCUEErrors(err error) ValidationErrors {
	var validationErrors ValidationErrors

	for _, e := range cueerrors.Errors(err) {
		var file string
		var line, column int

		if pos := cueerrors.Positions(e); len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:    file,
			Line:    line,
			Column:  column,
			Path:    strings.Join(e.Path(), "."),
			Message: cueerrors.Details(e, nil),
		})
	}

	return validationErrors
}

// ExportJSON encodes a configuration as indented JSON.
func ExportJSON(cfg *BootstrapConfig) ([]byte, error) {
	return json.MarshalIndent(cfg, "", "  ")
}

// ExportYAML encodes a configuration as YAML.
func ExportYAML(cfg *BootstrapConfig) ([]byte, error) {
	return yaml.Marshal(cfg)
}
