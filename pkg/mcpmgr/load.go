package mcpmgr

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileServer is the YAML shape of one entry under the top-level "servers" key.
type fileServer struct {
	ID             string            `yaml:"id"`
	Name           string            `yaml:"name"`
	Transport      string            `yaml:"transport"`
	Command        string            `yaml:"command"`
	Args           []string          `yaml:"args"`
	Dir            string            `yaml:"dir"`
	Env            map[string]string `yaml:"env"`
	BaseURL        string            `yaml:"baseUrl"`
	Headers        map[string]string `yaml:"headers"`
	PreferSSE      *bool             `yaml:"preferSSE"`
	ConnectTimeout yamlDuration      `yaml:"connectTimeout"`
	CallTimeout    yamlDuration      `yaml:"callTimeout"`
	TerminateGrace yamlDuration      `yaml:"terminateGrace"`
}

type fileConfig struct {
	Servers []fileServer `yaml:"servers"`
}

// yamlDuration accepts either a Go duration string ("1m30s") or an integer
// number of seconds.
type yamlDuration time.Duration

func (d *yamlDuration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	if value.Tag == "!!int" {
		var secs int64
		if err := value.Decode(&secs); err != nil {
			return err
		}
		*d = yamlDuration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = yamlDuration(parsed)
	return nil
}

// LoadRegistry reads a YAML configuration file and builds a Registry from its
// "servers" section.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mcpmgr: read config: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry builds a Registry from YAML. Unrelated top-level keys are
// ignored so the same document can carry other sections. ${VAR} references in
// string fields are expanded from the environment.
func ParseRegistry(data []byte) (*Registry, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("mcpmgr: parse config: %w", err)
	}
	configs := make([]ServerConfig, 0, len(fc.Servers))
	for i, s := range fc.Servers {
		cfg, err := s.toConfig()
		if err != nil {
			return nil, fmt.Errorf("mcpmgr: servers[%d]: %w", i, err)
		}
		configs = append(configs, cfg)
	}
	return NewRegistry(configs...)
}

func (s fileServer) toConfig() (ServerConfig, error) {
	kind, ok := ParseTransportKind(s.Transport)
	if !ok {
		// An omitted transport is inferred from which fields are present.
		switch {
		case s.Transport == "" && s.Command != "":
			kind = TransportSubprocess
		case s.Transport == "" && s.BaseURL != "":
			kind = TransportNetwork
		default:
			return ServerConfig{}, fmt.Errorf("unknown transport %q for %q", s.Transport, s.ID)
		}
	}
	cfg := ServerConfig{
		ID:             s.ID,
		Name:           s.Name,
		Transport:      kind,
		Command:        os.ExpandEnv(s.Command),
		Dir:            os.ExpandEnv(s.Dir),
		BaseURL:        os.ExpandEnv(s.BaseURL),
		PreferSSE:      s.PreferSSE,
		ConnectTimeout: time.Duration(s.ConnectTimeout),
		CallTimeout:    time.Duration(s.CallTimeout),
		TerminateGrace: time.Duration(s.TerminateGrace),
	}
	if s.Transport == "sse" && cfg.PreferSSE == nil {
		prefer := true
		cfg.PreferSSE = &prefer
	}
	for _, a := range s.Args {
		cfg.Args = append(cfg.Args, os.ExpandEnv(a))
	}
	if len(s.Env) > 0 {
		cfg.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			cfg.Env[k] = os.ExpandEnv(v)
		}
	}
	if len(s.Headers) > 0 {
		cfg.Headers = make(http.Header, len(s.Headers))
		for k, v := range s.Headers {
			cfg.Headers.Set(k, os.ExpandEnv(v))
		}
	}
	return cfg, nil
}
