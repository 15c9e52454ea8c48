package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oarkflow/permit"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "check":
		handleCheck()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("permit-check - Configuration and decision tool for permit")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  permit-check convert <input> <output>                        - Convert between formats")
	fmt.Println("  permit-check validate <file>                                 - Validate configuration")
	fmt.Println("  permit-check stats <file>                                    - Show configuration statistics")
	fmt.Println("  permit-check check <file> <tenant> <user> <key> [attrs.json] - Evaluate one permission check")
	fmt.Println()
	fmt.Println("Supported formats: .permit, .dsl, .yaml, .yml, .json")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: permit-check convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg, err := loadConfig(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permit-check validate <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Permissions: %d\n", len(cfg.Permissions))
	fmt.Printf("  Roles:       %d\n", len(cfg.Roles))
	fmt.Printf("  Groups:      %d\n", len(cfg.Groups))
	fmt.Printf("  Grants:      %d\n", len(cfg.UserRoles))
	fmt.Printf("  Overrides:   %d\n", len(cfg.Overrides))
	fmt.Printf("  Policies:    %d\n", len(cfg.Policies))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: permit-check stats <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	stat, _ := os.Stat(filename)

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Println()

	fmt.Println("Components:")
	fmt.Printf("  Permissions:       %d\n", len(cfg.Permissions))
	fmt.Printf("  Roles:             %d\n", len(cfg.Roles))
	fmt.Printf("  Role grants:       %d\n", len(cfg.RolePermissions))
	fmt.Printf("  Groups:            %d\n", len(cfg.Groups))
	fmt.Printf("  Group nestings:    %d\n", len(cfg.GroupMemberships))
	fmt.Printf("  User grants:       %d\n", len(cfg.UserRoles))
	fmt.Printf("  Overrides:         %d\n", len(cfg.Overrides))
	fmt.Printf("  Policies:          %d\n", len(cfg.Policies))
	fmt.Println()

	if len(cfg.Policies) > 0 {
		allowCount := 0
		denyCount := 0
		for _, p := range cfg.Policies {
			if p.Effect == permit.EffectAllow {
				allowCount++
			} else {
				denyCount++
			}
		}
		fmt.Println("Policy Details:")
		fmt.Printf("  Allow policies: %d\n", allowCount)
		fmt.Printf("  Deny policies:  %d\n", denyCount)
		fmt.Println()
	}

	if len(cfg.Compartments) > 0 {
		fmt.Println("Compartment Hierarchy:")
		for child, parent := range cfg.Compartments {
			fmt.Printf("  %s -> %s\n", child, parent)
		}
		fmt.Println()
	}

	fmt.Println("Engine Configuration:")
	fmt.Printf("  Depth ceiling: %d\n", cfg.Engine.DepthCeiling)
	fmt.Printf("  Cache TTL:     %dms\n", cfg.Engine.CacheTTLMs)
}

func handleCheck() {
	if len(os.Args) < 6 {
		fmt.Println("Usage: permit-check check <file> <tenant> <user> <key> [attrs.json]")
		os.Exit(1)
	}

	filename, tenant, user, key := os.Args[2], os.Args[3], os.Args[4], os.Args[5]

	var attrs map[string]any
	if len(os.Args) > 6 {
		if err := json.Unmarshal([]byte(os.Args[6]), &attrs); err != nil {
			fmt.Printf("Error parsing attrs: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	seeded, err := cfg.Seed()
	if err != nil {
		fmt.Printf("Error seeding stores: %v\n", err)
		os.Exit(1)
	}

	engine, err := permit.NewEngine(seeded.Catalog, seeded.Directory, seeded.Overrides, seeded.Policies, cfg.EngineOptions()...)
	if err != nil {
		fmt.Printf("Error building engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	dec, err := engine.Explain(context.Background(), &permit.CheckRequest{
		PrincipalID:   user,
		PermissionKey: key,
		TenantID:      tenant,
		Attrs:         attrs,
	})
	if err != nil {
		fmt.Printf("Error evaluating: %v\n", err)
		os.Exit(1)
	}

	verdict := "DENY"
	if dec.Allowed {
		verdict = "ALLOW"
	}
	fmt.Printf("%s %s for %s in %s\n", verdict, key, user, tenant)
	fmt.Printf("  Source: %s\n", dec.Source)
	for _, step := range dec.Trace {
		fmt.Printf("  - %s\n", step)
	}
	if !dec.Allowed {
		os.Exit(2)
	}
}

func loadConfig(filename string) (*permit.Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".permit", ".dsl":
		parser := permit.NewDSLParser()
		return parser.Parse(data)
	case ".yaml", ".yml":
		loader := permit.NewConfigLoader()
		return loader.LoadYAML(data)
	case ".json":
		loader := permit.NewConfigLoader()
		return loader.LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func saveConfig(cfg *permit.Config, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))

	var data []byte
	var err error

	switch ext {
	case ".permit", ".dsl":
		encoder := permit.NewDSLEncoder()
		data, err = encoder.Encode(cfg)
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}

	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
