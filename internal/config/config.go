// Package config loads the engine's settings from the environment,
// following an environment-suffixed override chain, and parses the
// optional field-map and sync-rules files.
//
// Grounded on the teacher's getenv/getenvInt helpers in
// chromemonkeys-chronicle's internal/config/config.go, generalized
// here to the suffix-resolution chain this engine's multi-environment
// deployments require.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sanketpandia/recondrive/internal/sync/schema"
)

// Config holds everything the engine needs to run one cycle.
type Config struct {
	Env string

	RelationalDSN string
	SheetToken    string
	SheetBaseID   string

	// TableByEntity gives, per entity, the sheet-side table id and/or
	// table name (§6.3): at least one of the two must be set.
	TableByEntity map[schema.Entity]TableRef

	// FieldMap gives, per entity, the configured sheet field-id/name
	// pair for each internal field key. A missing entry means the key
	// itself is used as the sheet field name with no field-id
	// fallback.
	FieldMap map[schema.Entity]map[string]FieldRef

	IntervalMinutes     int
	RelationalTolerance time.Duration
	SheetTolerance      time.Duration

	SheetRateLimitPerSec float64

	CacheBackend string // "memory" or "redis"
	RedisAddr    string
	RedisPass    string

	AdminAddr string
	LogLevel  string

	PreventBlankOverwrite bool
	BlankOverwriteAllow   map[string]map[schema.Entity]map[string]bool
}

// TableRef is a sheet table's addressing: at least one of ID/Name
// must be non-empty.
type TableRef struct {
	ID   string
	Name string
}

// FieldRef is a sheet field's addressing: the preferred name and a
// fallback field-id used when the sheet API rejects the name.
type FieldRef struct {
	ID   string
	Name string
}

const (
	minToleranceFloor = 5 * time.Second
	defaultRelTol     = 1000 * time.Millisecond
	defaultSheetTol   = 60000 * time.Millisecond
)

// Load reads Config from the environment and, when set, the field-map
// and sync-rules files.
func Load() (*Config, error) {
	env := getenv("ENV", "dev")

	cfg := &Config{
		Env:           env,
		RelationalDSN: lookupRequired(env, "RELATIONAL_DATABASE_URL"),
		SheetToken:    lookupRequired(env, "AIRTABLE_API_KEY"),
		SheetBaseID:   lookupRequired(env, "AIRTABLE_BASE_ID"),
		LogLevel:      lookup(env, "LOG_LEVEL", "info"),
		CacheBackend:  lookup(env, "CACHE_BACKEND", "memory"),
		RedisAddr:     lookup(env, "REDIS_ADDR", "localhost:6379"),
		RedisPass:     lookup(env, "REDIS_PASSWORD", ""),
		AdminAddr:     lookup(env, "ADMIN_ADDR", ":9090"),
	}

	if cfg.RelationalDSN == "" {
		return nil, fmt.Errorf("config: RELATIONAL_DATABASE_URL (or its %s-suffixed variant) is required", env)
	}
	if cfg.SheetToken == "" || cfg.SheetBaseID == "" {
		return nil, fmt.Errorf("config: AIRTABLE_API_KEY and AIRTABLE_BASE_ID (or their %s-suffixed variants) are required", env)
	}

	interval, err := strconv.Atoi(lookup(env, "SYNC_INTERVAL_MINUTES", "15"))
	if err != nil || interval <= 0 {
		interval = 15
	}
	cfg.IntervalMinutes = interval

	cfg.RelationalTolerance = durationFloor(lookupMillis(env, "RELATIONAL_TOLERANCE_MS", int(defaultRelTol/time.Millisecond)), minToleranceFloor)
	cfg.SheetTolerance = durationFloor(lookupMillis(env, "SHEET_TOLERANCE_MS", int(defaultSheetTol/time.Millisecond)), minToleranceFloor)

	rate, err := strconv.ParseFloat(lookup(env, "SHEET_RATE_LIMIT_PER_SEC", "5"), 64)
	if err != nil || rate <= 0 {
		rate = 5
	}
	cfg.SheetRateLimitPerSec = rate

	cfg.TableByEntity = make(map[schema.Entity]TableRef, len(schema.Entities))
	for _, e := range schema.Entities {
		upper := strings.ToUpper(string(e))
		ref := TableRef{
			ID:   lookup(env, upper+"_TABLE_ID", ""),
			Name: lookup(env, upper+"_TABLE_NAME", ""),
		}
		if ref.ID == "" && ref.Name == "" {
			return nil, fmt.Errorf("config: entity %q needs at least one of %s_TABLE_ID / %s_TABLE_NAME", e, upper, upper)
		}
		cfg.TableByEntity[e] = ref
	}

	fieldMap, err := loadFieldMap(env)
	if err != nil {
		return nil, err
	}
	cfg.FieldMap = fieldMap

	rules, err := loadSyncRules()
	if err != nil {
		return nil, err
	}
	cfg.PreventBlankOverwrite = rules.PreventBlankOverwrite
	cfg.BlankOverwriteAllow = rules.allowMap()

	return cfg, nil
}

func durationFloor(ms int, floor time.Duration) time.Duration {
	d := time.Duration(ms) * time.Millisecond
	if d < floor {
		return floor
	}
	return d
}

func lookupMillis(env, name string, fallback int) int {
	v := lookup(env, name, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func lookupRequired(env, name string) string {
	return lookup(env, name, "")
}

// lookup resolves name by trying the environment-suffixed variants in
// order (§6.3), then the base name, returning fallback if none are set.
func lookup(env, name, fallback string) string {
	envUpper := strings.ToUpper(env)
	envLower := strings.ToLower(env)
	candidates := []string{
		name + "_" + envUpper,
		name + "_" + envLower,
		envUpper + "_" + name,
		envLower + "_" + name,
		name,
	}
	for _, c := range candidates {
		if v, ok := os.LookupEnv(c); ok && v != "" {
			return v
		}
	}
	return fallback
}

func getenv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// syncRulesFile is the on-disk shape of the optional sync-rules file
// (§6.5), keyed with the camelCase names used by the sheet-facing
// tooling this engine's config files are shared with.
type syncRulesFile struct {
	PreventBlankOverwrite bool `json:"preventBlankOverwrite" yaml:"preventBlankOverwrite"`
	AllowBlankOverwrite   struct {
		AirtableToSupabase map[string][]string `json:"airtableToSupabase" yaml:"airtableToSupabase"`
		SupabaseToAirtable map[string][]string `json:"supabaseToAirtable" yaml:"supabaseToAirtable"`
	} `json:"allowBlankOverwrite" yaml:"allowBlankOverwrite"`
}

func (f syncRulesFile) allowMap() map[string]map[schema.Entity]map[string]bool {
	out := map[string]map[schema.Entity]map[string]bool{
		string(schema.SheetToRelational): toEntityFieldSet(f.AllowBlankOverwrite.AirtableToSupabase),
		string(schema.RelationalToSheet): toEntityFieldSet(f.AllowBlankOverwrite.SupabaseToAirtable),
	}
	return out
}

func toEntityFieldSet(in map[string][]string) map[schema.Entity]map[string]bool {
	out := make(map[schema.Entity]map[string]bool, len(in))
	for entity, fields := range in {
		set := make(map[string]bool, len(fields))
		for _, f := range fields {
			set[f] = true
		}
		out[schema.Entity(entity)] = set
	}
	return out
}

func loadSyncRules() (syncRulesFile, error) {
	path := os.Getenv("SYNC_RULES_FILE")
	if path == "" {
		return syncRulesFile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return syncRulesFile{}, fmt.Errorf("config: reading sync rules file %s: %w", path, err)
	}
	var rules syncRulesFile
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return syncRulesFile{}, fmt.Errorf("config: parsing sync rules file %s: %w", path, err)
	}
	return rules, nil
}

// fieldMapFileShape is the exported structure of AIRTABLE_FIELD_MAP_FILE:
// {env_name: {entity: {key: {id, name}}}}.
type fieldMapFileShape map[string]map[string]map[string]struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

func loadFieldMap(env string) (map[schema.Entity]map[string]FieldRef, error) {
	out := make(map[schema.Entity]map[string]FieldRef)

	if path := os.Getenv("AIRTABLE_FIELD_MAP_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading field map file %s: %w", path, err)
		}
		var shape fieldMapFileShape
		if err := yaml.Unmarshal(data, &shape); err != nil {
			return nil, fmt.Errorf("config: parsing field map file %s: %w", path, err)
		}
		for entity, fields := range shape[env] {
			set := make(map[string]FieldRef, len(fields))
			for key, ref := range fields {
				set[key] = FieldRef{ID: ref.ID, Name: ref.Name}
			}
			out[schema.Entity(entity)] = set
		}
		return out, nil
	}

	// Fall back to per-entity inline maps: <ENTITY>_FIELD_MAP,
	// comma-separated KEY=fieldId[|fieldName] pairs.
	for _, e := range schema.Entities {
		inline := lookup(env, strings.ToUpper(string(e))+"_FIELD_MAP", "")
		if inline == "" {
			continue
		}
		set := make(map[string]FieldRef)
		for _, pair := range strings.Split(inline, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) != 2 {
				continue
			}
			key := strings.TrimSpace(kv[0])
			rest := strings.SplitN(kv[1], "|", 2)
			ref := FieldRef{ID: strings.TrimSpace(rest[0])}
			if len(rest) == 2 {
				ref.Name = strings.TrimSpace(rest[1])
			}
			set[key] = ref
		}
		out[e] = set
	}

	return out, nil
}
