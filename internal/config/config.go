// Package config bootstraps cmd/luarpcd and cmd/luarpc-probe from the
// process environment (or an env file) plus a handful of CLI flags,
// grounded on R2Northstar-Atlas's pkg/atlas.Config.UnmarshalEnv (a
// reflective `env:"NAME=default"` struct-tag unmarshaler) and its
// cmd/atlas main.go env-file-or-process-environment + pflag loading
// idiom (SPEC_FULL §9.3 / §10.3 / §10.4).
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-envparse"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// Config is the bootstrap configuration for a luarpcd server process.
// Struct tag format `env:"NAME=default"` mirrors the teacher's Config:
// NAME is read from the environment, default applies when NAME is
// unset; a trailing "?" on NAME (env:"NAME?=default") additionally
// allows NAME to be explicitly set to the empty string.
type Config struct {
	// Addr is the TCP address ServerHandle.Listen binds.
	Addr string `env:"LUARPCD_ADDR=:8473"`
	// MetricsAddr, if non-empty, serves /metrics (internal/rpcmetrics'
	// WritePrometheus) on its own HTTP listener.
	MetricsAddr string `env:"LUARPCD_METRICS_ADDR"`
	// Backlog is transport.Listen's accept backlog.
	Backlog int `env:"LUARPCD_BACKLOG=8"`
	// MaxLinkErrs is the nonfatal-error budget before a ServerHandle
	// escalates to a full shutdown (spec §4.E; default 20).
	MaxLinkErrs int `env:"LUARPCD_MAX_LINK_ERRS=20"`
	// FastPoll/SteadyPoll bound ServerHandle.Serve's adaptive poll.
	FastPoll   time.Duration `env:"LUARPCD_FAST_POLL=10ms"`
	SteadyPoll time.Duration `env:"LUARPCD_STEADY_POLL=250ms"`
	// LogLevel is the minimum zerolog level logged.
	LogLevel zerolog.Level `env:"LUARPCD_LOG_LEVEL=info"`
	// LogStdoutPretty switches to zerolog's human-readable console writer.
	LogStdoutPretty bool `env:"LUARPCD_LOG_STDOUT_PRETTY=false"`
}

// Flags are the CLI-only settings layered over Config; they are never
// read from the environment.
type Flags struct {
	EnvFile string
	Help    bool
}

// ParseFlags parses args (excluding the program name, i.e. os.Args[1:])
// and returns the flag set (for FlagUsages on --help) plus the parsed
// Flags.
func ParseFlags(args []string) (*pflag.FlagSet, *Flags, error) {
	fs := pflag.NewFlagSet("luarpcd", pflag.ContinueOnError)
	var f Flags
	fs.StringVar(&f.EnvFile, "env-file", "", "load configuration from this env file instead of the process environment")
	fs.BoolVarP(&f.Help, "help", "h", false, "show this help text")
	if err := fs.Parse(args); err != nil {
		return fs, nil, err
	}
	return fs, &f, nil
}

// Load builds a Config from the process environment, or from envFile if
// it is non-empty (matching the teacher's readEnv + UnmarshalEnv split).
func Load(envFile string) (*Config, error) {
	var es []string
	if envFile != "" {
		f, err := os.Open(envFile)
		if err != nil {
			return nil, fmt.Errorf("open env file: %w", err)
		}
		defer f.Close()
		m, err := envparse.Parse(f)
		if err != nil {
			return nil, fmt.Errorf("parse env file: %w", err)
		}
		for k, v := range m {
			es = append(es, k+"="+v)
		}
	} else {
		es = os.Environ()
	}

	var c Config
	if err := c.unmarshalEnv(es); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) unmarshalEnv(es []string) error {
	em := map[string]string{}
	for _, e := range es {
		if k, v, ok := strings.Cut(e, "="); ok {
			em[k] = v
		}
	}

	cv := reflect.ValueOf(c).Elem()
	for _, ctf := range reflect.VisibleFields(cv.Type()) {
		tag, ok := ctf.Tag.Lookup("env")
		if !ok {
			continue
		}
		key, val, _ := strings.Cut(tag, "=")
		unsettable := strings.HasSuffix(key, "?")
		key = strings.TrimSuffix(key, "?")

		if v, exists := em[key]; exists && (unsettable || v != "") {
			val = v
		}

		cvf := cv.FieldByName(ctf.Name)
		switch cvf.Interface().(type) {
		case string:
			cvf.SetString(val)
		case int:
			if val == "" {
				cvf.SetInt(0)
				continue
			}
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return fmt.Errorf("env %s: parse %q: %w", key, val, err)
			}
			cvf.SetInt(n)
		case bool:
			if val == "" {
				cvf.SetBool(false)
				continue
			}
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("env %s: parse %q: %w", key, val, err)
			}
			cvf.SetBool(b)
		case time.Duration:
			if val == "" {
				continue
			}
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("env %s: parse %q: %w", key, val, err)
			}
			cvf.Set(reflect.ValueOf(d))
		case zerolog.Level:
			if val == "" {
				continue
			}
			lvl, err := zerolog.ParseLevel(val)
			if err != nil {
				return fmt.Errorf("env %s: parse %q: %w", key, val, err)
			}
			cvf.Set(reflect.ValueOf(lvl))
		default:
			return fmt.Errorf("env %s: unsupported field type %s", key, cvf.Type())
		}
	}
	return nil
}
