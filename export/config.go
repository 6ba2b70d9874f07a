package export

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mstoykov/envconfig"
)

const (
	BackendWebDriver = "webdriver"
	BackendCDP       = "cdp"

	DefaultDriverPort       = 4444
	DefaultPDFSettleTimeout = 150 * time.Millisecond
	DefaultStartTimeout     = 10 * time.Second
	DefaultProbeTimeout     = 2 * time.Second
)

// DefaultRuntimeURLs are loaded by online host documents.
var DefaultRuntimeURLs = []string{
	"https://cdn.plot.ly/plotly-2.35.2.min.js",
	"https://cdnjs.cloudflare.com/ajax/libs/jspdf/2.5.1/jspdf.umd.min.js",
}

// Config holds exporter settings. Every field has a usable default.
//
// OfflineBundles are inlined in order; PDF export in offline mode needs a
// jsPDF bundle next to the Plotly one.
type Config struct {
	Browser          string         `envconfig:"PLOTEXPORT_BROWSER"`
	Backend          string         `envconfig:"PLOTEXPORT_BACKEND"`
	DriverPort       int            `envconfig:"PLOTEXPORT_DRIVER_PORT"`
	DriverURL        string         `envconfig:"PLOTEXPORT_DRIVER_URL"`
	DriverPath       string         `envconfig:"WEBDRIVER_PATH"`
	BrowserPath      string         `envconfig:"BROWSER_PATH"`
	AutoSpawn        bool           `envconfig:"PLOTEXPORT_AUTO_SPAWN"`
	Offline          bool           `envconfig:"PLOTEXPORT_OFFLINE"`
	OfflineBundles   []string       `envconfig:"PLOTEXPORT_OFFLINE_BUNDLES"`
	RuntimeURLs      []string       `envconfig:"PLOTEXPORT_RUNTIME_URLS"`
	PDFSettleTimeout time.Duration  `envconfig:"PLOTEXPORT_PDF_SETTLE_TIMEOUT"`
	BrowserArgs      []string       `envconfig:"PLOTEXPORT_BROWSER_ARGS"`
	BrowserPrefs     map[string]any `ignored:"true"`
	ScriptTimeout    time.Duration  `envconfig:"PLOTEXPORT_SCRIPT_TIMEOUT"`
	StrictMIME       bool           `envconfig:"PLOTEXPORT_STRICT_MIME"`
	StartTimeout     time.Duration  `envconfig:"PLOTEXPORT_START_TIMEOUT"`
	ProbeTimeout     time.Duration  `envconfig:"PLOTEXPORT_PROBE_TIMEOUT"`
	WorkDir          string         `envconfig:"PLOTEXPORT_WORK_DIR"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() Config {
	return Config{
		Browser:          ChromeProfile.Name,
		Backend:          BackendWebDriver,
		DriverPort:       DefaultDriverPort,
		AutoSpawn:        true,
		RuntimeURLs:      append([]string{}, DefaultRuntimeURLs...),
		PDFSettleTimeout: DefaultPDFSettleTimeout,
		StartTimeout:     DefaultStartTimeout,
		ProbeTimeout:     DefaultProbeTimeout,
	}
}

// LoadEnv overlays environment variables on top of cfg. A nil lookup reads the
// process environment; variables that are not set leave fields untouched.
func LoadEnv(cfg Config, lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := envconfig.Process("", &cfg, lookup); err != nil {
		return cfg, NewError(KindValidation, "invalid environment configuration", err)
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := ProfileByName(c.Browser); err != nil {
		return err
	}
	switch c.Backend {
	case "", BackendWebDriver, BackendCDP:
	default:
		return NewError(KindValidation, fmt.Sprintf("unsupported backend: %q", c.Backend), nil)
	}
	if c.DriverPort <= 0 || c.DriverPort > 65535 {
		return NewError(KindValidation, fmt.Sprintf("invalid driver port %d", c.DriverPort), nil)
	}
	if c.DriverURL != "" {
		parsed, err := url.Parse(c.DriverURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return NewError(KindValidation, fmt.Sprintf("invalid driver url %q", c.DriverURL), err)
		}
		if p := parsed.Port(); p != "" {
			if port, err := strconv.Atoi(p); err != nil || port <= 0 || port > 65535 {
				return NewError(KindValidation, fmt.Sprintf("invalid driver url port %q", p), err)
			}
		}
	}
	if c.PDFSettleTimeout < 0 {
		return NewError(KindValidation, "pdf settle timeout must not be negative", nil)
	}
	if c.Offline && len(c.OfflineBundles) == 0 {
		return NewError(KindValidation, "offline mode requires at least one runtime bundle", nil)
	}
	if !c.Offline && len(c.RuntimeURLs) == 0 {
		return NewError(KindValidation, "online mode requires at least one runtime url", nil)
	}
	return nil
}

// Profile resolves the configured browser profile.
func (c Config) Profile() (BrowserProfile, error) {
	return ProfileByName(c.Browser)
}

// BaseURL returns the driver endpoint. DriverURL without an explicit port is
// combined with DriverPort; an empty DriverURL means loopback on DriverPort.
func (c Config) BaseURL() string {
	port := strconv.Itoa(c.DriverPort)
	if c.DriverURL == "" {
		return "http://127.0.0.1:" + port
	}
	parsed, err := url.Parse(c.DriverURL)
	if err != nil {
		return strings.TrimRight(c.DriverURL, "/")
	}
	if parsed.Port() == "" {
		parsed.Host = net.JoinHostPort(parsed.Hostname(), port)
	}
	return strings.TrimRight(parsed.String(), "/")
}

// EndpointPort returns the port the driver answers on: the explicit port of
// DriverURL when it has one, DriverPort otherwise.
func (c Config) EndpointPort() int {
	if c.DriverURL == "" {
		return c.DriverPort
	}
	parsed, err := url.Parse(c.DriverURL)
	if err != nil || parsed.Port() == "" {
		return c.DriverPort
	}
	port, err := strconv.Atoi(parsed.Port())
	if err != nil {
		return c.DriverPort
	}
	return port
}

// LocalDriver reports whether the driver endpoint is on this host, which is
// the only place a driver can be spawned.
func (c Config) LocalDriver() bool {
	if c.DriverURL == "" {
		return true
	}
	parsed, err := url.Parse(c.DriverURL)
	if err != nil {
		return false
	}
	host := parsed.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Capabilities builds the session capabilities from the configuration. An
// empty BrowserPath falls back to the profile's browser variables.
func (c Config) Capabilities() (Capabilities, error) {
	return c.CapabilitiesFromEnv(os.LookupEnv)
}

// CapabilitiesFromEnv is Capabilities with an explicit environment lookup.
func (c Config) CapabilitiesFromEnv(lookup func(string) (string, bool)) (Capabilities, error) {
	profile, err := c.Profile()
	if err != nil {
		return Capabilities{}, err
	}
	binary := strings.TrimSpace(c.BrowserPath)
	if binary == "" {
		binary = profile.BrowserBinary(lookup)
	}
	return profile.Capabilities(c.BrowserArgs, binary, c.BrowserPrefs), nil
}
