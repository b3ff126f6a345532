// Package config resolves SDK settings from the process environment, a
// .env file, an optional YAML file and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Environment keys understood by Load.
const (
	EnvAK                      = "QIANFAN_AK"
	EnvSK                      = "QIANFAN_SK"
	EnvAccessKey               = "QIANFAN_ACCESS_KEY"
	EnvSecretKey               = "QIANFAN_SECRET_KEY"
	EnvAccessToken             = "QIANFAN_ACCESS_TOKEN"
	EnvBaseURL                 = "QIANFAN_BASE_URL"
	EnvIAMSignExpiration       = "QIANFAN_IAM_SIGN_EXPIRATION_SEC"
	EnvTokenRefreshMinInterval = "QIANFAN_ACCESS_TOKEN_REFRESH_MIN_INTERVAL"
	EnvRetryCount              = "QIANFAN_LLM_API_RETRY_COUNT"
	EnvRetryTimeout            = "QIANFAN_LLM_API_RETRY_TIMEOUT"
	EnvRetryBackoffFactor      = "QIANFAN_LLM_API_RETRY_BACKOFF_FACTOR"
	EnvRetryJitter             = "QIANFAN_LLM_API_RETRY_JITTER"
	EnvRetryMaxWaitInterval    = "QIANFAN_LLM_API_RETRY_MAX_WAIT_INTERVAL"
	EnvRetryErrCodes           = "QIANFAN_LLM_API_RETRY_ERR_CODES"
	EnvQPSLimit                = "QIANFAN_QPS_LIMIT"
	EnvRPMLimit                = "QIANFAN_RPM_LIMIT"
	EnvLogLevel                = "QIANFAN_LOG_LEVEL"
	EnvLogFormat               = "QIANFAN_LOG_FORMAT"

	// EnvDotEnvFile and EnvConfigFile locate the file sources. They are only
	// read from the process environment.
	EnvDotEnvFile = "QIANFAN_DOT_ENV_CONFIG_FILE"
	EnvConfigFile = "QIANFAN_CONFIG_FILE"
)

// Defaults applied when no source sets a value.
const (
	DefaultBaseURL                 = "https://aip.baidubce.com"
	DefaultDotEnvFile              = ".env"
	DefaultIAMSignExpiration       = 300 * time.Second
	DefaultTokenRefreshMinInterval = 3600 * time.Second
	DefaultRetryCount              = 1
	DefaultRetryTimeout            = 60 * time.Second
	DefaultRetryBackoffFactor      = 0
	DefaultRetryJitter             = 1.0
	DefaultRetryMaxWaitInterval    = 120 * time.Second

	// APIPath is appended to BaseURL for every model endpoint.
	APIPath = "/rpc/2.0/ai_custom/v1/wenxinworkshop"
)

// DefaultRetryErrCodes are the API error codes retried when
// QIANFAN_LLM_API_RETRY_ERR_CODES is unset: service unavailable, QPS limit,
// server high load, RPM limit and TPM limit.
var DefaultRetryErrCodes = []int{2, 18, 336100, 336501, 336502}

// Config is a resolved snapshot. Load returns a fresh value on every call,
// so callers may keep it without synchronisation.
type Config struct {
	AK          string
	SK          string
	AccessKey   string
	SecretKey   string
	AccessToken string
	BaseURL     string

	IAMSignExpiration       time.Duration
	TokenRefreshMinInterval time.Duration

	RetryCount           int
	RetryTimeout         time.Duration
	RetryBackoffFactor   float64
	RetryJitter          float64
	RetryMaxWaitInterval time.Duration
	RetryErrCodes        []int

	// QPSLimit and RPMLimit of zero mean unlimited.
	QPSLimit float64
	RPMLimit float64

	LogLevel  string
	LogFormat string
}

// Default returns the configuration used when no source sets anything.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load resolves the configuration. Process environment wins over the .env
// file, which wins over the YAML file named by QIANFAN_CONFIG_FILE. A missing
// .env file is ignored; a missing YAML file that was asked for is an error.
func Load() (*Config, error) {
	values := map[string]string{}

	if path := os.Getenv(EnvConfigFile); path != "" {
		fromFile, err := readYAML(path)
		if err != nil {
			return nil, err
		}
		merge(values, fromFile)
	}

	dotenv := os.Getenv(EnvDotEnvFile)
	if dotenv == "" {
		dotenv = DefaultDotEnvFile
	}
	fromDotEnv, err := godotenv.Read(dotenv)
	switch {
	case err == nil:
		merge(values, fromDotEnv)
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("config: read %s: %w", dotenv, err)
	}

	for _, key := range keys {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			values[key] = v
		}
	}

	return fromValues(values)
}

// SetEnvVariable sets a process environment variable so that the next Load
// sees it. It changes nothing else.
func SetEnvVariable(key, value string) error {
	if key == "" {
		return errors.New("config: empty environment variable name")
	}
	if err := os.Setenv(key, value); err != nil {
		return fmt.Errorf("config: set %s: %w", key, err)
	}
	return nil
}

// APIBaseURL is BaseURL joined with APIPath.
func (c *Config) APIBaseURL() string {
	return strings.TrimRight(c.BaseURL, "/") + APIPath
}

// HasIAM reports whether access key and secret key are both set.
func (c *Config) HasIAM() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}

// HasOAuth reports whether AK and SK are both set.
func (c *Config) HasOAuth() bool {
	return c.AK != "" && c.SK != ""
}

var keys = []string{
	EnvAK, EnvSK, EnvAccessKey, EnvSecretKey, EnvAccessToken, EnvBaseURL,
	EnvIAMSignExpiration, EnvTokenRefreshMinInterval,
	EnvRetryCount, EnvRetryTimeout, EnvRetryBackoffFactor, EnvRetryJitter,
	EnvRetryMaxWaitInterval, EnvRetryErrCodes,
	EnvQPSLimit, EnvRPMLimit, EnvLogLevel, EnvLogFormat,
}

func merge(dst, src map[string]string) {
	for k, v := range src {
		if v != "" && lo.Contains(keys, k) {
			dst[k] = v
		}
	}
}

// readYAML accepts a flat mapping from environment key to scalar or list.
func readYAML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch tv := v.(type) {
		case nil:
		case []any:
			out[k] = strings.Join(lo.Map(tv, func(item any, _ int) string { return fmt.Sprint(item) }), ",")
		default:
			out[k] = fmt.Sprint(tv)
		}
	}
	return out, nil
}

func fromValues(values map[string]string) (*Config, error) {
	p := parser{values: values}
	c := &Config{
		AK:          values[EnvAK],
		SK:          values[EnvSK],
		AccessKey:   values[EnvAccessKey],
		SecretKey:   values[EnvSecretKey],
		AccessToken: values[EnvAccessToken],
		BaseURL:     values[EnvBaseURL],
		LogLevel:    values[EnvLogLevel],
		LogFormat:   values[EnvLogFormat],

		IAMSignExpiration:       p.seconds(EnvIAMSignExpiration, DefaultIAMSignExpiration),
		TokenRefreshMinInterval: p.seconds(EnvTokenRefreshMinInterval, DefaultTokenRefreshMinInterval),
		RetryCount:              p.int(EnvRetryCount, DefaultRetryCount),
		RetryTimeout:            p.seconds(EnvRetryTimeout, DefaultRetryTimeout),
		RetryBackoffFactor:      p.float(EnvRetryBackoffFactor, DefaultRetryBackoffFactor),
		RetryJitter:             p.float(EnvRetryJitter, DefaultRetryJitter),
		RetryMaxWaitInterval:    p.seconds(EnvRetryMaxWaitInterval, DefaultRetryMaxWaitInterval),
		RetryErrCodes:           p.codes(EnvRetryErrCodes),
		QPSLimit:                p.float(EnvQPSLimit, 0),
		RPMLimit:                p.float(EnvRPMLimit, 0),
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.IAMSignExpiration <= 0 {
		c.IAMSignExpiration = DefaultIAMSignExpiration
	}
	if c.TokenRefreshMinInterval < 0 {
		c.TokenRefreshMinInterval = DefaultTokenRefreshMinInterval
	}
	if c.RetryCount <= 0 {
		c.RetryCount = DefaultRetryCount
	}
	if c.RetryTimeout <= 0 {
		c.RetryTimeout = DefaultRetryTimeout
	}
	if c.RetryMaxWaitInterval <= 0 {
		c.RetryMaxWaitInterval = DefaultRetryMaxWaitInterval
	}
	if c.RetryErrCodes == nil {
		c.RetryErrCodes = append([]int(nil), DefaultRetryErrCodes...)
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.QPSLimit < 0 {
		errs = append(errs, fmt.Errorf("config: %s must not be negative", EnvQPSLimit))
	}
	if c.RPMLimit < 0 {
		errs = append(errs, fmt.Errorf("config: %s must not be negative", EnvRPMLimit))
	}
	if c.RetryBackoffFactor < 0 || c.RetryJitter < 0 {
		errs = append(errs, fmt.Errorf("config: retry backoff factor and jitter must not be negative"))
	}
	return errors.Join(errs...)
}

// parser collects every conversion error so Load reports them together.
type parser struct {
	values map[string]string
	errs   []error
}

func (p *parser) fail(key, value string, err error) {
	p.errs = append(p.errs, fmt.Errorf("config: %s=%q: %w", key, value, err))
}

func (p *parser) int(key string, def int) int {
	v, ok := p.values[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v, ok := p.values[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

// seconds reads a value given in (possibly fractional) seconds.
func (p *parser) seconds(key string, def time.Duration) time.Duration {
	if _, ok := p.values[key]; !ok {
		return def
	}
	return time.Duration(p.float(key, def.Seconds()) * float64(time.Second))
}

func (p *parser) codes(key string) []int {
	v, ok := p.values[key]
	if !ok {
		return nil
	}
	codes, err := ParseErrCodes(v)
	if err != nil {
		p.fail(key, v, err)
		return nil
	}
	return codes
}

// ParseErrCodes parses a comma separated list of API error codes. Blank
// entries are skipped and duplicates removed.
func ParseErrCodes(s string) ([]int, error) {
	codes := []int{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		codes = append(codes, n)
	}
	return lo.Uniq(codes), nil
}
