package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/assetpack/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// Recognized config file names, in lookup order.
const (
	FileCUE  = "assetpack.cue"
	FileYAML = "assetpack.yaml"
	FileYML  = "assetpack.yml"
)

// Environment overrides.
const (
	EnvDebug  = "ASSETPACK_DEBUG"
	EnvOutput = "ASSETPACK_OUTPUT"
)

// Default returns the schema defaults rooted at root.
func Default(root string) (*Config, error) {
	ctx := cuecontext.New()
	cfg, err := decode(ctx, ctx.CompileString("{}"))
	if err != nil {
		return nil, err
	}
	cfg.Root, err = filepath.Abs(root)
	if err != nil {
		return nil, ir.NewConfigError("root: %v", err)
	}
	return cfg, nil
}

// Load reads the configuration for the project rooted at dir.
//
// The first of assetpack.cue, assetpack.yaml or assetpack.yml found in dir is
// unified with the schema; with none present the defaults are used. A .env
// file in dir is loaded into the process environment (existing variables
// win) before environment overrides are applied. The result is not validated
// so callers can apply flag overrides first.
func Load(dir string) (*Config, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, ir.NewConfigError("root: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, ir.NewConfigError("project directory: %v", err)
	}
	if !info.IsDir() {
		return nil, ir.NewConfigError("project directory: not a directory: %s", root)
	}

	ctx := cuecontext.New()
	var value cue.Value
	switch file := findConfigFile(root); filepath.Ext(file) {
	case "":
		value = ctx.CompileString("{}")
	case ".cue":
		value, err = loadCUE(ctx, root, file)
	default:
		value, err = loadYAML(ctx, file)
	}
	if err != nil {
		return nil, err
	}

	cfg, err := decode(ctx, value)
	if err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		cfg.Root = root
	} else if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(root, cfg.Root)
	}

	if err := loadDotenv(root); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile(root string) string {
	for _, name := range []string{FileCUE, FileYAML, FileYML} {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func loadCUE(ctx *cue.Context, root, file string) (cue.Value, error) {
	instances := load.Instances([]string{filepath.Base(file)}, &load.Config{Dir: root})
	if len(instances) == 0 {
		return cue.Value{}, ir.NewConfigError("%s: no CUE instance loaded", file)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, ir.NewConfigError("%s: loading CUE: %v", file, inst.Err)
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, ir.NewConfigError("%s: building CUE value: %v", file, err)
	}
	return value, nil
}

func loadYAML(ctx *cue.Context, file string) (cue.Value, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return cue.Value{}, ir.NewConfigError("%s: %v", file, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cue.Value{}, ir.NewConfigError("%s: parsing YAML: %v", file, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	value := ctx.Encode(raw)
	if err := value.Err(); err != nil {
		return cue.Value{}, ir.NewConfigError("%s: encoding YAML: %v", file, err)
	}
	return value, nil
}

// decode unifies value with #Config and decodes the concrete result.
func decode(ctx *cue.Context, value cue.Value) (*Config, error) {
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling config schema: %w", err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, ir.NewConfigError("invalid configuration: %v", err)
	}
	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, ir.NewConfigError("decoding configuration: %v", err)
	}
	if cfg.Define == nil {
		cfg.Define = map[string]string{}
	}
	return &cfg, nil
}

func loadDotenv(root string) error {
	p := filepath.Join(root, ".env")
	if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return ir.NewConfigError(".env: %v", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvDebug); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return ir.NewConfigError("%s: %v", EnvDebug, err)
		}
		cfg.Debug = b
	}
	if v, ok := os.LookupEnv(EnvOutput); ok && v != "" {
		cfg.Output = v
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
