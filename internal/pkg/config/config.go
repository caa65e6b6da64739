// Package config loads worker settings from a YAML file and the environment.
package config

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/mnemonic-no/act-api-go/pkg/act"
	"github.com/mnemonic-no/act-api-go/pkg/act/client"
	"github.com/mnemonic-no/act-api-go/pkg/act/errors"
	"github.com/mnemonic-no/act-api-go/pkg/act/validation"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	yaml "gopkg.in/yaml.v2"
)

const DefaultHTTPTimeout = 120

type Config struct {
	BaseURL       string `yaml:"actBaseurl"`
	UserID        string `yaml:"userId"`
	HTTPHeader    string `yaml:"httpHeader"`
	HTTPUser      string `yaml:"httpUser"`
	HTTPPassword  string `yaml:"httpPassword"`
	HTTPTimeout   int    `yaml:"httpTimeout"`
	ProxyString   string `yaml:"proxyString"`
	ProxyPlatform bool   `yaml:"proxyPlatform"`
	CertFile      string `yaml:"certFile"`
	LogLevel      string `yaml:"loglevel"`

	OutputFormat string `yaml:"outputFormat"`
	AccessMode   string `yaml:"accessMode"`
	Organization string `yaml:"organization"`
	OriginName   string `yaml:"originName"`
	OriginID     string `yaml:"originId"`

	PolicyFile      string `yaml:"policyFile"`
	StrictValidator bool   `yaml:"strictValidator"`
}

func defaults() *Config {
	return &Config{
		HTTPTimeout:  DefaultHTTPTimeout,
		LogLevel:     "info",
		OutputFormat: "json",
		AccessMode:   act.DefaultAccessMode,
	}
}

// Load reads the YAML document in data, if any, and lets environment variables
// named after the command line flags (ACT_BASEURL, HTTP_HEADER, ...) override it.
func Load(ctx context.Context, data io.Reader) (*Config, error) {
	cfg := defaults()

	if data != nil {
		buf, err := io.ReadAll(data)
		if err != nil {
			return nil, err
		}

		if err = yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration: %w", err)
		}
	}

	strs := map[string]*string{
		"ACT_BASEURL":   &cfg.BaseURL,
		"USER_ID":       &cfg.UserID,
		"HTTP_HEADER":   &cfg.HTTPHeader,
		"HTTP_USER":     &cfg.HTTPUser,
		"HTTP_PASSWORD": &cfg.HTTPPassword,
		"PROXY_STRING":  &cfg.ProxyString,
		"CERT_FILE":     &cfg.CertFile,
		"LOGLEVEL":      &cfg.LogLevel,
		"OUTPUT_FORMAT": &cfg.OutputFormat,
		"ACCESS_MODE":   &cfg.AccessMode,
		"ORGANIZATION":  &cfg.Organization,
		"ORIGIN_NAME":   &cfg.OriginName,
		"ORIGIN_ID":     &cfg.OriginID,
		"POLICY_FILE":   &cfg.PolicyFile,
	}

	for name, value := range strs {
		*value = env.GetVariableOrDefault(ctx, name, *value)
	}

	timeout := env.GetVariableOrDefault(ctx, "HTTP_TIMEOUT", strconv.Itoa(cfg.HTTPTimeout))
	seconds, err := strconv.Atoi(timeout)
	if err != nil || seconds <= 0 {
		return nil, errors.NewArgumentError("http timeout must be a positive number of seconds: %s", timeout)
	}
	cfg.HTTPTimeout = seconds

	bools := map[string]*bool{
		"PROXY_PLATFORM":   &cfg.ProxyPlatform,
		"STRICT_VALIDATOR": &cfg.StrictValidator,
	}

	for name, value := range bools {
		s := env.GetVariableOrDefault(ctx, name, strconv.FormatBool(*value))
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, errors.NewArgumentError("%s must be a boolean: %s", name, s)
		}
		*value = b
	}

	return cfg, nil
}

var unescapedComma = regexp.MustCompile(`(^|[^\\]),`)

// ParseHTTPHeaders parses a comma separated list of headers such as
// "HeaderA: val1, HeaderB: comma\,val2". Escaped commas are kept in names and values.
func ParseHTTPHeaders(headers string) (map[string][]string, error) {
	result := map[string][]string{}

	if strings.TrimSpace(headers) == "" {
		return result, nil
	}

	// Go regexp has no lookbehind, so mark the separators first
	const sep = "\x00"
	marked := unescapedComma.ReplaceAllString(headers, "${1}"+sep)

	for _, header := range strings.Split(marked, sep) {
		key, value, found := strings.Cut(header, ":")
		if !found {
			return nil, errors.NewArgumentError("no ':' in header, http header: %s", header)
		}

		key = strings.ReplaceAll(strings.TrimSpace(key), `\,`, ",")
		value = strings.ReplaceAll(strings.TrimSpace(value), `\,`, ",")

		result[key] = []string{value}
	}

	return result, nil
}

// HTTPClient builds the instrumented client used towards the platform.
func (c *Config) HTTPClient() (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if c.ProxyPlatform && c.ProxyString != "" {
		proxy, err := url.Parse(c.ProxyString)
		if err != nil {
			return nil, errors.NewArgumentError("invalid proxy string %s: %s", c.ProxyString, err.Error())
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	if c.CertFile != "" {
		pem, err := os.ReadFile(c.CertFile)
		if err != nil {
			return nil, errors.NewArgumentError("unable to read certificate file: %s", err.Error())
		}

		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}

		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.NewArgumentError("no certificates found in %s", c.CertFile)
		}

		transport.TLSClientConfig = &tls.Config{RootCAs: pool}
	}

	return &http.Client{
		Transport: otelhttp.NewTransport(transport),
		Timeout:   time.Duration(c.HTTPTimeout) * time.Second,
	}, nil
}

// ActConfig converts the worker settings into the library configuration.
func (c *Config) ActConfig(ctx context.Context) (act.Config, error) {
	headers, err := ParseHTTPHeaders(c.HTTPHeader)
	if err != nil {
		return act.Config{}, err
	}

	cfg := act.Config{
		BaseURL:         c.BaseURL,
		UserID:          c.UserID,
		Headers:         headers,
		Username:        c.HTTPUser,
		Password:        c.HTTPPassword,
		Debug:           strings.EqualFold(c.LogLevel, "debug"),
		OriginName:      c.OriginName,
		OriginID:        c.OriginID,
		AccessMode:      c.AccessMode,
		Organization:    c.Organization,
		StrictValidator: c.StrictValidator,
	}

	if c.PolicyFile != "" {
		policies, err := os.Open(c.PolicyFile)
		if err != nil {
			return act.Config{}, errors.NewArgumentError("unable to open policy file: %s", err.Error())
		}
		defer policies.Close()

		validator, err := validation.NewRegoValidator(ctx, policies)
		if err != nil {
			return act.Config{}, err
		}

		cfg.ObjectValidator = validator
	}

	return cfg, nil
}

// NewAct connects to the configured platform. An empty base URL gives an
// offline instance that only builds facts.
func (c *Config) NewAct(ctx context.Context) (*act.Act, error) {
	cfg, err := c.ActConfig(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.BaseURL == "" {
		return act.New(cfg)
	}

	httpClient, err := c.HTTPClient()
	if err != nil {
		return nil, err
	}

	api := client.NewAPIClient(cfg.BaseURL,
		client.UserID(cfg.UserID),
		client.Headers(cfg.Headers),
		client.BasicAuth(cfg.Username, cfg.Password),
		client.Debug(strconv.FormatBool(cfg.Debug)),
		client.HTTPClient(httpClient),
	)

	return act.New(cfg, act.WithAPIClient(api))
}
