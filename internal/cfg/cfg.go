package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/keithlinneman/gethead/internal/gethead"
	"github.com/keithlinneman/gethead/internal/log"
	"github.com/keithlinneman/gethead/internal/rulesrc"
)

// EnvPrefix is prepended to flag names to form environment variable names.
const EnvPrefix = "GETHEAD_"

type App struct {
	LogJSON           bool
	LogLevel          string
	HTTPPort          int
	AdminPort         int
	EnablePprof       bool
	EnablePyroscope   bool
	EnableTracing     bool
	PyroServer        string
	PyroTenantID      string
	OTLPEndpoint      string
	TraceSample       float64
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int
	RateLimitRPS      float64
	RateLimitBurst    int
	TrustedHops       int
	EnableCompression bool

	EnableHeadRoutes    bool
	IgnorePaths         string
	IgnorePathsFile     string
	IgnorePathsSSMParam string
	IgnorePathsS3URI    string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 10, "per-ip request refill rate, 0 disables rate limiting")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 30, "per-ip burst size")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "reverse proxies in front of the server trusted for X-Forwarded-For (0..5)")
	fs.BoolVar(&c.EnableCompression, "enable-compression", false, "gzip text and JSON GET responses, HEAD stays uncompressed")
	fs.BoolVar(&c.EnableHeadRoutes, "enable-head-routes", true, "Register a HEAD route for every GET route")
	fs.StringVar(&c.IgnorePaths, "ignore-paths", "", "comma separated paths that get no HEAD route, prefix re: for a regex (a comma inside a regex is kept unless followed by / or re:; use -ignore-paths-file otherwise)")
	fs.StringVar(&c.IgnorePathsFile, "ignore-paths-file", "", "YAML file with ignorePaths")
	fs.StringVar(&c.IgnorePathsSSMParam, "ignore-paths-ssm-param", "", "ssm parameter holding an ignorePaths YAML document")
	fs.StringVar(&c.IgnorePathsS3URI, "ignore-paths-s3-uri", "", "s3://bucket/key of an ignorePaths YAML document")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// IgnoreRules parses the -ignore-paths list.
func (c App) IgnoreRules() (gethead.Rules, error) {
	if c.IgnorePaths == "" {
		return nil, nil
	}
	return gethead.ParseRules(splitIgnorePaths(c.IgnorePaths))
}

// splitIgnorePaths splits on commas that start a new entry, i.e. that are
// followed by a path ("/...") or a pattern ("re:..."). Any other comma
// belongs to the regex before it, as in "re:^/a{1,3}".
func splitIgnorePaths(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		next := strings.TrimSpace(part)
		startsEntry := next == "" || strings.HasPrefix(next, "/") || strings.HasPrefix(next, "re:")
		if len(out) > 0 && !startsEntry {
			out[len(out)-1] += "," + part
			continue
		}
		out = append(out, part)
	}
	return out
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL, scheme and tenant)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Error link limits
	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	// Rate limiting
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be >= 0 (got %g)", c.RateLimitRPS))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be >= 1 when rate limiting is on (got %d)", c.RateLimitBurst))
	}
	if c.TrustedHops < 0 || c.TrustedHops > 5 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be 0..5 (got %d)", c.TrustedHops))
	}

	// Ignore rules
	if _, err := c.IgnoreRules(); err != nil {
		errs = append(errs, fmt.Errorf("invalid IGNORE_PATHS: %w", err))
	}
	if c.IgnorePathsS3URI != "" {
		if _, _, err := rulesrc.ParseS3URI(c.IgnorePathsS3URI); err != nil {
			errs = append(errs, fmt.Errorf("invalid IGNORE_PATHS_S3_URI: %w", err))
		}
	}
	if !c.EnableHeadRoutes && c.hasIgnoreRules() {
		errs = append(errs, fmt.Errorf("ignore paths configured but ENABLE_HEAD_ROUTES=false"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (c App) hasIgnoreRules() bool {
	return c.IgnorePaths != "" || c.IgnorePathsFile != "" || c.IgnorePathsSSMParam != "" || c.IgnorePathsS3URI != ""
}
