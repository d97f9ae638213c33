// Package providers loads news provider definitions and resolves their fetchers.
package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
)

// Provider describes one upstream news source and the partition matrix walked against it.
type Provider struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Type           string         `json:"type" yaml:"type"`
	SourceURL      string         `json:"source_url" yaml:"source_url"`
	Host           string         `json:"host" yaml:"host"`
	Categories     []string       `json:"categories" yaml:"categories"`
	Countries      []string       `json:"countries" yaml:"countries"`
	Language       string         `json:"language" yaml:"language"`
	ResultCap      int            `json:"result_cap" yaml:"result_cap"`
	RequestDelayMs int            `json:"request_delay_ms" yaml:"request_delay_ms"`
	TimeoutSeconds int            `json:"timeout_seconds" yaml:"timeout_seconds"`
	Config         map[string]any `json:"config" yaml:"config"`
}

// Defaults fills provider fields the registry file leaves empty.
type Defaults struct {
	Host       string
	Categories []string
	Countries  []string
	Language   string
	ResultCap  int
}

const (
	ProviderTypeRapidAPINews = "rapidapi_imdb_news"
	DefaultProviderID        = "imdb-news"

	defaultRequestDelayMs = 500
	defaultSourcePath     = "/news/v2/get-by-category"
)

// Registry is an ordered, id-indexed set of providers.
type Registry struct {
	providers []Provider
	idx       map[string]Provider
}

type registryFile struct {
	Providers []Provider `json:"providers" yaml:"providers"`
}

// NewRegistry validates providers and keeps their declaration order.
func NewRegistry(defaults Defaults, providers ...Provider) (*Registry, error) {
	if len(providers) == 0 {
		return nil, errors.New("providers registry is empty")
	}

	reg := &Registry{
		providers: make([]Provider, 0, len(providers)),
		idx:       make(map[string]Provider, len(providers)),
	}
	for i, raw := range providers {
		p := sanitizeProvider(raw, defaults)
		if err := validateProvider(p); err != nil {
			return nil, fmt.Errorf("provider[%d]: %w", i, err)
		}
		if _, exists := reg.idx[p.ID]; exists {
			return nil, fmt.Errorf("duplicate provider id %q", p.ID)
		}
		reg.providers = append(reg.providers, p)
		reg.idx[p.ID] = p
	}
	return reg, nil
}

// LoadRegistry reads providers from a YAML or JSON file. A missing file yields the single
// default provider built from defaults.
func LoadRegistry(path string, defaults Defaults) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return NewRegistry(defaults, DefaultProvider(defaults))
	}

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewRegistry(defaults, DefaultProvider(defaults))
	}
	if err != nil {
		return nil, fmt.Errorf("open providers file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}

	parsed, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Providers) == 0 {
		return nil, errors.New("providers file contains no providers entries")
	}
	return NewRegistry(defaults, parsed.Providers...)
}

// DefaultProvider is the RapidAPI IMDb news source configured purely from defaults.
func DefaultProvider(d Defaults) Provider {
	host := strings.TrimSpace(d.Host)
	return Provider{
		ID:         DefaultProviderID,
		Name:       "IMDb News (RapidAPI)",
		Type:       ProviderTypeRapidAPINews,
		SourceURL:  "https://" + host + defaultSourcePath,
		Host:       host,
		Categories: d.Categories,
		Countries:  d.Countries,
		Language:   d.Language,
		ResultCap:  d.ResultCap,
	}
}

// All returns providers in declaration order.
func (r *Registry) All() []Provider {
	if r == nil {
		return nil
	}
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// ByID returns the provider entry for the given id.
func (r *Registry) ByID(id string) (Provider, bool) {
	if r == nil {
		return Provider{}, false
	}
	p, ok := r.idx[strings.TrimSpace(id)]
	return p, ok
}

// Partitions is the category x country matrix, categories outermost.
func (p Provider) Partitions() []domain.Partition {
	out := make([]domain.Partition, 0, len(p.Categories)*len(p.Countries))
	for _, category := range p.Categories {
		for _, country := range p.Countries {
			out = append(out, domain.Partition{Category: category, Country: country})
		}
	}
	return out
}

// RequestDelay returns the per-request throttle duration for the provider.
func (p Provider) RequestDelay() time.Duration {
	if p.RequestDelayMs <= 0 {
		return time.Duration(defaultRequestDelayMs) * time.Millisecond
	}
	return time.Duration(p.RequestDelayMs) * time.Millisecond
}

// Timeout is the provider-specific partition timeout, zero when unset.
func (p Provider) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func parseRegistry(data []byte, ext string) (registryFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		if reg, err := unmarshalRegistry(d.name, data, d.fn); err == nil {
			return reg, nil
		}
	}

	return registryFile{}, errors.New("providers file format not recognized (expected YAML or JSON)")
}

type unmarshalFn func([]byte, any) error

func unmarshalRegistry(name string, data []byte, fn unmarshalFn) (registryFile, error) {
	var reg registryFile
	if err := fn(data, &reg); err != nil {
		return registryFile{}, fmt.Errorf("decode %s providers: %w", name, err)
	}
	return reg, nil
}

func sanitizeProvider(p Provider, d Defaults) Provider {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	p.SourceURL = strings.TrimSpace(p.SourceURL)
	p.Host = strings.TrimSpace(p.Host)
	p.Language = strings.TrimSpace(p.Language)

	if p.Name == "" {
		p.Name = p.ID
	}
	if p.Host == "" {
		p.Host = strings.TrimSpace(d.Host)
	}
	if p.SourceURL == "" && p.Host != "" && p.Type == ProviderTypeRapidAPINews {
		p.SourceURL = "https://" + p.Host + defaultSourcePath
	}
	p.Categories = upperList(p.Categories)
	if len(p.Categories) == 0 {
		p.Categories = upperList(d.Categories)
	}
	p.Countries = upperList(p.Countries)
	if len(p.Countries) == 0 {
		p.Countries = upperList(d.Countries)
	}
	if p.Language == "" {
		p.Language = d.Language
	}
	if p.Language == "" {
		p.Language = domain.DefaultLanguage
	}
	if p.ResultCap <= 0 {
		p.ResultCap = d.ResultCap
	}
	if p.Config == nil {
		p.Config = map[string]any{}
	}
	if p.RequestDelayMs <= 0 {
		p.RequestDelayMs = defaultRequestDelayMs
	}
	return p
}

func validateProvider(p Provider) error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	if p.Type == "" {
		return fmt.Errorf("type is required for provider %q", p.ID)
	}
	if p.SourceURL == "" {
		return fmt.Errorf("source_url is required for provider %q", p.ID)
	}
	if len(p.Categories) == 0 || len(p.Countries) == 0 {
		return fmt.Errorf("provider %q needs at least one category and one country", p.ID)
	}
	return nil
}

func upperList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
