package config

import (
	"os"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/hsync/internal/bytesize"
	"github.com/marmos91/hsync/internal/cli/output"
	"github.com/marmos91/hsync/pkg/config"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate JSON schema for IDE/validation",
	Long: `Print a JSON schema describing the configuration file. Editors with
YAML language support can use it for completion and validation.

Examples:
  hsync config schema > hsync.schema.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return output.PrintJSON(os.Stdout, Schema())
	},
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	byteSizeType = reflect.TypeOf(bytesize.ByteSize(0))
)

// Schema reflects the configuration struct into a JSON schema keyed by the
// same names the config file uses.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			switch t {
			case durationType:
				return &jsonschema.Schema{
					Type:        "string",
					Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
					Description: "Go duration, for example 30s or 5m",
				}
			case byteSizeType:
				return &jsonschema.Schema{
					Type:        "string",
					Pattern:     `^[0-9]+(\.[0-9]+)?\s*([KMGT]i?B?|B)?$`,
					Description: "Byte size, for example 64Ki or 1Mi",
				}
			}
			return nil
		},
	}
	s := r.Reflect(&config.Config{})
	s.Title = "hsync configuration"
	return s
}
