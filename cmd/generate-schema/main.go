package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/framefs/pkg/config"
)

func main() {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
	}

	schema := reflector.Reflect(&config.Config{})

	schema.Title = "FrameFS Configuration"
	schema.Description = "Configuration schema for the framefs mount command"
	schema.Version = "1.0.0"

	// Provider sections are free-form maps; describe what each accepts.
	if providers, ok := schema.Properties.Get("providers"); ok && providers.Properties != nil {
		for _, section := range []struct {
			name   string
			schema any
		}{
			{"framebuffer", &config.FramebufferConfig{}},
			{"badger", &config.BadgerConfig{}},
			{"s3", &config.S3Config{}},
		} {
			sub := (&jsonschema.Reflector{
				DoNotReference: true,
				FieldNameTag:   "mapstructure",
			}).Reflect(section.schema)
			sub.Version = ""
			providers.Properties.Set(section.name, sub)
		}
	}

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling schema: %v\n", err)
		os.Exit(1)
	}

	outputFile := "config.schema.json"
	if len(os.Args) > 1 {
		outputFile = os.Args[1]
	}

	if err := os.WriteFile(outputFile, schemaJSON, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("JSON schema written to %s\n", outputFile)
}
