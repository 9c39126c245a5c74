package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/te9no/pointerd/internal/hid"
)

// ValidationError describes one configuration problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// configSchema structurally validates the configuration document before
// the semantic checks run. Field-level constraints the schema can
// express live here; cross-field rules live in ValidateConfig.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "daemon": {
      "type": "object",
      "properties": {
        "socket_path": {"type": "string"},
        "pid_file": {"type": "string"},
        "save_debounce_ms": {"type": "integer", "minimum": 0, "maximum": 60000}
      }
    },
    "store": {
      "type": "object",
      "properties": {"path": {"type": "string"}}
    },
    "bridge": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "listen_addr": {"type": "string"}
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"enum": ["", "debug", "info", "warn", "error"]},
        "format": {"enum": ["", "text", "json"]}
      }
    },
    "layers": {
      "type": ["array", "null"],
      "maxItems": 32,
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "default": {"type": "boolean"},
          "bindings": {"type": ["array", "null"], "items": {"type": "string"}}
        },
        "required": ["name"]
      }
    },
    "channels": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "event_type": {"enum": ["", "rel"]},
          "scale_multiplier": {"type": "integer", "minimum": 0},
          "scale_divisor": {"type": "integer", "minimum": 0},
          "rotation_degrees": {"type": "integer", "minimum": -360, "maximum": 360},
          "temp_layer": {"type": "integer", "minimum": 0, "maximum": 31},
          "active_layers": {
            "type": ["array", "null"],
            "items": {"type": "integer", "minimum": 0, "maximum": 31}
          },
          "snap_mode": {"enum": ["", "none", "x", "y"]}
        },
        "required": ["name"]
      }
    },
    "hotkeys": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "key": {"type": "string", "minLength": 1},
          "behavior": {"enum": ["temp-config", "axis-snap", "keep-active"]},
          "channel": {"type": "string"},
          "snap_mode": {"enum": ["", "none", "x", "y"]}
        },
        "required": ["key", "behavior"]
      }
    },
    "keep_keycodes": {"type": ["array", "null"], "items": {"type": "string"}}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("pointerd-config.schema.json", strings.NewReader(configSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("pointerd-config.schema.json")
	})
	return compiledSchema, schemaErr
}

// ValidateConfig checks the configuration: first against the embedded
// JSON schema, then the cross-field rules the schema cannot express.
func ValidateConfig(c *Config) error {
	if err := validateSchema(c); err != nil {
		return err
	}

	var errs ValidationErrors

	if c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("version %d is newer than this daemon supports (%d)", c.Version, Version),
		})
	}

	errs = append(errs, validateLayers(c.Layers)...)
	errs = append(errs, validateChannels(c)...)
	errs = append(errs, validateHotkeys(c)...)
	errs = append(errs, validateKeepKeycodes(c.KeepKeycodes)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// validateSchema runs the document through the embedded schema. The
// struct is round-tripped through JSON so TOML and YAML input validate
// against the same schema.
func validateSchema(c *Config) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config for validation: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode config for validation: %w", err)
	}

	schema, err := compileSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	return nil
}

func validateLayers(layers []LayerDef) ValidationErrors {
	var errs ValidationErrors

	if len(layers) == 0 {
		errs = append(errs, ValidationError{
			Field:   "layers",
			Message: "at least one layer required",
		})
		return errs
	}

	seen := make(map[string]bool, len(layers))
	for i, l := range layers {
		field := fmt.Sprintf("layers[%d]", i)
		if seen[l.Name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate layer name %q", l.Name),
			})
		}
		seen[l.Name] = true

		for _, entry := range l.Bindings {
			fields := strings.Fields(entry)
			if len(fields) < 2 {
				errs = append(errs, ValidationError{
					Field:   field + ".bindings",
					Message: fmt.Sprintf("entry %q: want \"<key> <behavior>\"", entry),
				})
				continue
			}
			if _, ok := hid.Parse(fields[0]); !ok {
				errs = append(errs, ValidationError{
					Field:   field + ".bindings",
					Message: fmt.Sprintf("entry %q: unknown key %q", entry, fields[0]),
				})
			}
		}
	}
	return errs
}

func validateChannels(c *Config) ValidationErrors {
	var errs ValidationErrors

	if len(c.Channels) == 0 {
		errs = append(errs, ValidationError{
			Field:   "channels",
			Message: "at least one channel required",
		})
		return errs
	}

	layerCount := len(c.Layers)
	seen := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		field := fmt.Sprintf("channels[%d]", i)

		if seen[ch.Name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate channel name %q", ch.Name),
			})
		}
		seen[ch.Name] = true

		if ch.ScaleMultiplier == 0 || ch.ScaleDivisor == 0 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("scale factors must be nonzero (got %d/%d)", ch.ScaleMultiplier, ch.ScaleDivisor),
			})
		}
		if ch.TempLayerEnabled && int(ch.TempLayer) >= layerCount {
			errs = append(errs, ValidationError{
				Field:   field + ".temp_layer",
				Message: fmt.Sprintf("layer %d not defined (%d layers)", ch.TempLayer, layerCount),
			})
		}
		for _, id := range ch.ActiveLayers {
			if id < 0 || id >= layerCount {
				errs = append(errs, ValidationError{
					Field:   field + ".active_layers",
					Message: fmt.Sprintf("layer %d not defined (%d layers)", id, layerCount),
				})
			}
		}
		if ch.SnapMode != "none" && ch.SnapMode != "" && ch.SnapThreshold == 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".snap_threshold",
				Message: "snap_threshold required when snap_mode is set",
			})
		}
	}
	return errs
}

func validateHotkeys(c *Config) ValidationErrors {
	var errs ValidationErrors

	channels := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		channels[ch.Name] = true
	}

	for i, hk := range c.Hotkeys {
		field := fmt.Sprintf("hotkeys[%d]", i)

		if _, ok := hid.Parse(hk.Key); !ok {
			errs = append(errs, ValidationError{
				Field:   field + ".key",
				Message: fmt.Sprintf("unknown key %q", hk.Key),
			})
		}
		if hk.Channel != "" && !channels[hk.Channel] {
			errs = append(errs, ValidationError{
				Field:   field + ".channel",
				Message: fmt.Sprintf("unknown channel %q", hk.Channel),
			})
		}
		if hk.Behavior == "axis-snap" && hk.SnapMode != "" && hk.SnapMode != "none" && hk.SnapThreshold == 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".snap_threshold",
				Message: "snap_threshold required when snap_mode is set",
			})
		}
	}
	return errs
}

func validateKeepKeycodes(names []string) ValidationErrors {
	var errs ValidationErrors
	for i, name := range names {
		if _, ok := hid.Parse(name); !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("keep_keycodes[%d]", i),
				Message: fmt.Sprintf("unknown key %q", name),
			})
		}
	}
	return errs
}
