package export

import (
	"fmt"
	"strconv"
	"strings"
)

// Capabilities describes the browser requested at session creation.
type Capabilities struct {
	BrowserName string
	OptionsKey  string
	Args        []string
	Binary      string
	Prefs       map[string]any
}

// VendorOptions returns the vendor specific options object.
func (c Capabilities) VendorOptions() map[string]any {
	opts := map[string]any{}
	if len(c.Args) > 0 {
		opts["args"] = append([]string{}, c.Args...)
	}
	if c.Binary != "" {
		opts["binary"] = c.Binary
	}
	if len(c.Prefs) > 0 {
		opts["prefs"] = c.Prefs
	}
	return opts
}

// W3C returns the body of a WebDriver new-session request.
func (c Capabilities) W3C() map[string]any {
	match := map[string]any{
		"browserName": c.BrowserName,
	}
	if c.OptionsKey != "" {
		match[c.OptionsKey] = c.VendorOptions()
	}
	return map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": match,
		},
	}
}

// BrowserProfile bundles everything that differs between supported browsers.
type BrowserProfile struct {
	Name          string
	CapabilityKey string
	DefaultArgs   []string
	// DriverBinary is looked up on PATH when no explicit driver path is set.
	DriverBinary string
	// DriverEnv names the variables consulted for a driver path, in order.
	DriverEnv []string
	// BrowserEnv names the variables consulted for a browser binary path.
	BrowserEnv []string
	// PortArgs returns the driver command line arguments binding it to port.
	PortArgs func(port int) []string
	// InjectPrefs merges browser preferences into the capabilities.
	InjectPrefs func(caps *Capabilities, prefs map[string]any)
}

// ChromeProfile drives Chrome or Chromium through chromedriver.
var ChromeProfile = BrowserProfile{
	Name:          "chrome",
	CapabilityKey: "goog:chromeOptions",
	DefaultArgs: []string{
		"--headless=new",
		"--no-sandbox",
		"--disable-gpu",
		"--disable-dev-shm-usage",
		"--disable-extensions",
		"--disable-background-networking",
		"--hide-scrollbars",
		"--mute-audio",
		"--no-first-run",
		"--allow-file-access-from-files",
	},
	DriverBinary: "chromedriver",
	DriverEnv:    []string{"WEBDRIVER_PATH", "CHROMEDRIVER_PATH"},
	BrowserEnv:   []string{"BROWSER_PATH", "CHROME_BIN"},
	PortArgs: func(port int) []string {
		return []string{"--port=" + strconv.Itoa(port)}
	},
	InjectPrefs: mergePrefs,
}

// FirefoxProfile drives Firefox through geckodriver.
var FirefoxProfile = BrowserProfile{
	Name:          "firefox",
	CapabilityKey: "moz:firefoxOptions",
	DefaultArgs: []string{
		"-headless",
	},
	DriverBinary: "geckodriver",
	DriverEnv:    []string{"WEBDRIVER_PATH", "GECKODRIVER_PATH"},
	BrowserEnv:   []string{"BROWSER_PATH", "FIREFOX_BIN"},
	PortArgs: func(port int) []string {
		return []string{"--port", strconv.Itoa(port)}
	},
	InjectPrefs: func(caps *Capabilities, prefs map[string]any) {
		mergePrefs(caps, map[string]any{
			"security.fileuri.strict_origin_policy": false,
			"gfx.canvas.accelerated":                false,
		})
		mergePrefs(caps, prefs)
	},
}

// ProfileByName resolves a profile from configuration.
func ProfileByName(name string) (BrowserProfile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "chrome", "chromium", "google-chrome":
		return ChromeProfile, nil
	case "firefox", "gecko":
		return FirefoxProfile, nil
	default:
		return BrowserProfile{}, NewError(KindValidation, fmt.Sprintf("unsupported browser: %q", name), nil)
	}
}

// Capabilities builds the capabilities for this profile. Empty args fall back
// to the profile defaults.
func (p BrowserProfile) Capabilities(args []string, binary string, prefs map[string]any) Capabilities {
	if len(args) == 0 {
		args = p.DefaultArgs
	}
	caps := Capabilities{
		BrowserName: p.Name,
		OptionsKey:  p.CapabilityKey,
		Args:        append([]string{}, args...),
		Binary:      binary,
	}
	if p.InjectPrefs != nil {
		p.InjectPrefs(&caps, prefs)
	} else {
		mergePrefs(&caps, prefs)
	}
	return caps
}

// BrowserBinary returns the first non-empty BrowserEnv value, or "" to let the
// driver pick its default browser.
func (p BrowserProfile) BrowserBinary(lookup func(string) (string, bool)) string {
	if lookup == nil {
		return ""
	}
	for _, key := range p.BrowserEnv {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// DriverArgs returns the driver arguments for port.
func (p BrowserProfile) DriverArgs(port int) []string {
	if p.PortArgs == nil {
		return []string{"--port=" + strconv.Itoa(port)}
	}
	return p.PortArgs(port)
}

func mergePrefs(caps *Capabilities, prefs map[string]any) {
	if len(prefs) == 0 {
		return
	}
	if caps.Prefs == nil {
		caps.Prefs = make(map[string]any, len(prefs))
	}
	for key, value := range prefs {
		caps.Prefs[key] = value
	}
}
