// Command qapi-gen compiles a QAPI schema (resolving its `include`
// directives) and writes the generated Go client code for it.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v2"

	"github.com/canonical/qapi/qapi/generate"
	"github.com/canonical/qapi/qapi/parser"
)

var (
	schemaDir    string
	outputPath   string
	pkgName      string
	stamp        bool
	overridePath string
)

// overridesFile is the shape of the --overrides YAML document: each
// section extends one of qapi/generate's fixed override tables without
// requiring a rebuild of this command.
type overridesFile struct {
	RecursionBreaks []struct {
		Owner  string `yaml:"owner"`
		Field  string `yaml:"field"`
		Target string `yaml:"target"`
	} `yaml:"recursion_breaks"`
	Base64Fields []struct {
		Owner string `yaml:"owner"`
		Field string `yaml:"field"`
	} `yaml:"base64_fields"`
	DictionaryFields []struct {
		Owner string `yaml:"owner"`
		Field string `yaml:"field"`
	} `yaml:"dictionary_fields"`
}

func applyOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read overrides: %w", err)
	}

	var f overridesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse overrides: %w", err)
	}

	for _, rb := range f.RecursionBreaks {
		generate.AddRecursionBreak(rb.Owner, rb.Field, rb.Target)
	}

	for _, b64 := range f.Base64Fields {
		generate.AddBase64Field(b64.Owner, b64.Field)
	}

	for _, dict := range f.DictionaryFields {
		generate.AddDictionaryField(dict.Owner, dict.Field)
	}

	return nil
}

var rootCmd = &cobra.Command{
	Use:   "qapi-gen <schema-file>",
	Short: "qapi-gen - generate a Go QAPI client package from a QMP/QGA schema",
	Long: "qapi-gen compiles a QAPI schema file, following its `include` " +
		"directives, and emits a single generated Go source file " +
		"containing the commands, structs, enums, alternates, unions " +
		"and events the schema declares.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rootFile := args[0]

		if overridePath != "" {
			if err := applyOverrides(overridePath); err != nil {
				return err
			}
		}

		result, err := parser.Compile(schemaDir, rootFile)
		if err != nil {
			return fmt.Errorf("compile schema: %w", err)
		}

		var opts []generate.Option
		if stamp {
			opts = append(opts, generate.WithStampID(uuid.NewString()))
		}

		src, err := generate.Generate(result.Decls, pkgName, opts...)
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}

		if outputPath == "" || outputPath == "-" {
			_, err = os.Stdout.Write(src)
			return err
		}

		if err := os.WriteFile(outputPath, src, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", outputPath, err)
		}

		return nil
	},
}

func main() {
	rootCmd.Flags().StringVarP(&schemaDir, "dir", "d", ".", "Directory the schema file and its includes are resolved against")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "-", "Output file for the generated Go source (- for stdout)")
	rootCmd.Flags().StringVarP(&pkgName, "package", "p", "qemuapi", "Package name for the generated file")
	rootCmd.Flags().BoolVar(&stamp, "stamp", false, "Add a Generated-From: <uuid> comment after the package clause of the output")
	rootCmd.Flags().StringVar(&overridePath, "overrides", "", "YAML file extending the recursion-break/base64/dictionary override tables")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "qapi-gen: %v\n", err)
		os.Exit(1)
	}
}
