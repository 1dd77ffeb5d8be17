package runner

import (
	"errors"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/richinsley/comfyagent/comfyerr"
	"github.com/richinsley/comfyagent/internal/xjson"
	"github.com/richinsley/comfyagent/preset"
)

// ParseNumeric parses a finite number. With integer set, fractional values
// are rejected.
func ParseNumeric(value, name string, integer bool) (float64, error) {
	num, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
		return 0, comfyerr.Newf(comfyerr.InvalidParam, "%s must be a number", name).
			WithDetails(map[string]any{"value": value})
	}
	if integer && num != math.Trunc(num) {
		return 0, comfyerr.Newf(comfyerr.InvalidParam, "%s must be an integer", name).
			WithDetails(map[string]any{"value": value})
	}
	return num, nil
}

// maxExactInt is the largest magnitude a float64 holds without losing
// integer precision.
const maxExactInt = 1 << 53

// parseInt parses an int64. Plain digits are parsed exactly; other numeric
// forms such as 1e3 must be integral and within float64 integer precision.
func parseInt(value, name string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return 0, outOfRange(value, name)
	}
	num, err := ParseNumeric(value, name, true)
	if err != nil {
		return 0, err
	}
	if math.Abs(num) > maxExactInt {
		return 0, outOfRange(value, name)
	}
	return int64(num), nil
}

func outOfRange(value, name string) error {
	return comfyerr.Newf(comfyerr.InvalidParam, "%s is out of range", name).
		WithDetails(map[string]any{"value": value})
}

// ParseRunCount parses --n. Empty means a single run.
func ParseRunCount(v string) (int, error) {
	if v == "" {
		return 1, nil
	}
	n, err := parseInt(v, "n")
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, comfyerr.New(comfyerr.InvalidParam, "n must be at least 1").
			WithDetails(map[string]any{"value": v})
	}
	return int(n), nil
}

// ParseIntervalFlag parses an integer count of unit, e.g. --poll-interval-ms.
// Empty returns def.
func ParseIntervalFlag(v, name string, unit, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	n, err := parseInt(v, name)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * unit, nil
}

func parseBool(value string) (bool, error) {
	switch value {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, comfyerr.New(comfyerr.InvalidParam, "expected true, false, 1 or 0").
		WithDetails(map[string]any{"value": value})
}

// argValue is one parsed --flag. A flag given without a value is bare.
type argValue struct {
	value string
	bare  bool
}

// parsedArgs keeps flags in first-seen order; a repeated flag overrides the
// earlier value.
type parsedArgs struct {
	keys   []string
	values map[string]argValue
}

func (p *parsedArgs) set(key string, v argValue) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = v
}

// parseArgv reads --name value, --name=value and bare --name tokens. Tokens
// not starting with -- are skipped unless consumed as a value.
func parseArgv(argv []string) *parsedArgs {
	parsed := &parsedArgs{values: make(map[string]argValue)}
	for i := 0; i < len(argv); i++ {
		token := argv[i]
		if !strings.HasPrefix(token, "--") {
			continue
		}
		trimmed := token[2:]
		if trimmed == "" {
			continue
		}
		if name, inline, ok := strings.Cut(trimmed, "="); ok {
			if name != "" {
				parsed.set(name, argValue{value: inline})
			}
			continue
		}
		if i+1 >= len(argv) || argv[i+1] == "" || strings.HasPrefix(argv[i+1], "--") {
			parsed.set(trimmed, argValue{bare: true})
			continue
		}
		parsed.set(trimmed, argValue{value: argv[i+1]})
		i++
	}
	return parsed
}

// flags consumed by the run command itself
var knownRunFlags = map[string]bool{
	"json":             true,
	"dry-run":          true,
	"out":              true,
	"n":                true,
	"seed":             true,
	"seed-step":        true,
	"poll-interval-ms": true,
	"timeout-seconds":  true,
	"base-url":         true,
	"source":           true,
	"global":           true,
	"lang":             true,
	"metrics-file":     true,
	"log-level":        true,
	"log-format":       true,
}

func coerceParamValue(typ preset.ParamType, v argValue) (any, error) {
	switch typ {
	case preset.ParamString:
		return v.value, nil
	case preset.ParamInt:
		return parseInt(v.value, "int")
	case preset.ParamFloat:
		return ParseNumeric(v.value, "float", false)
	case preset.ParamBool:
		if v.bare {
			return true, nil
		}
		return parseBool(v.value)
	case preset.ParamJSON:
		var out any
		if err := xjson.Unmarshal([]byte(v.value), &out); err != nil {
			return nil, comfyerr.New(comfyerr.InvalidParam, "value is not valid JSON").
				WithDetails(map[string]any{"value": v.value})
		}
		return out, nil
	}
	return v.value, nil
}

// ResolveDynamicArgs maps the free-form run arguments onto the preset's
// parameters and uploads, then fills defaults and checks required parameters.
func ResolveDynamicArgs(args []string, p *preset.Preset) (map[string]any, map[string]string, error) {
	parsed := parseArgv(args)
	params := make(map[string]any)
	uploads := make(map[string]string)

	uploadFlags := make(map[string]string, len(p.Uploads))
	for _, name := range p.UploadNames() {
		uploadFlags[strings.TrimPrefix(p.Uploads[name].CLIFlag, "--")] = name
	}

	for _, key := range parsed.keys {
		v := parsed.values[key]
		if knownRunFlags[key] {
			continue
		}
		if upload, ok := uploadFlags[key]; ok {
			if v.bare {
				return nil, nil, comfyerr.Newf(comfyerr.InvalidParam, "--%s requires a file path", key).
					WithDetails(map[string]any{"flag": key})
			}
			uploads[upload] = v.value
			continue
		}
		def, ok := p.Parameters[key]
		if !ok {
			return nil, nil, comfyerr.Newf(comfyerr.UnknownParam, "unknown parameter --%s", key).
				WithDetails(map[string]any{"param": key})
		}
		if v.bare && def.Type != preset.ParamBool {
			return nil, nil, comfyerr.Newf(comfyerr.InvalidParam, "--%s requires a value", key).
				WithDetails(map[string]any{"param": key})
		}
		value, err := coerceParamValue(def.Type, v)
		if err != nil {
			return nil, nil, err
		}
		params[key] = value
	}

	for _, name := range p.ParameterNames() {
		if _, ok := params[name]; ok {
			continue
		}
		def := p.Parameters[name]
		if def.Default != nil {
			params[name] = def.Default
			continue
		}
		if def.Required {
			return nil, nil, comfyerr.Newf(comfyerr.MissingRequiredParam, "missing required parameter --%s", name).
				WithDetails(map[string]any{"param": name})
		}
	}
	return params, uploads, nil
}

const seedParam = "seed"

// ResolveSeedValues computes the seed for each of n runs. Without --seed and
// --seed-step every entry is nil and the preset's own seed is kept.
func ResolveSeedValues(p *preset.Preset, seedOpt, stepOpt string, n int) ([]*int64, error) {
	seeds := make([]*int64, n)
	if seedOpt == "" && stepOpt == "" {
		return seeds, nil
	}
	if _, ok := p.Parameters[seedParam]; !ok {
		return nil, comfyerr.New(comfyerr.MissingSeedTarget, "preset has no seed parameter")
	}
	if seedOpt == "" {
		return nil, comfyerr.New(comfyerr.InvalidParam, "--seed-step requires --seed")
	}

	if seedOpt == "random" {
		for i := range seeds {
			s := rand.Int63n(1 << 31)
			seeds[i] = &s
		}
		return seeds, nil
	}

	base, err := parseInt(seedOpt, "seed")
	if err != nil {
		return nil, err
	}
	var step int64
	if stepOpt != "" {
		if step, err = parseInt(stepOpt, "seed-step"); err != nil {
			return nil, err
		}
	}
	s := base
	for i := range seeds {
		if i > 0 {
			if (step > 0 && s > math.MaxInt64-step) || (step < 0 && s < math.MinInt64-step) {
				return nil, comfyerr.New(comfyerr.InvalidParam, "seed sequence overflows int64").
					WithDetails(map[string]any{"seed": seedOpt, "seed_step": stepOpt, "n": n})
			}
			s += step
		}
		seed := s
		seeds[i] = &seed
	}
	return seeds, nil
}
