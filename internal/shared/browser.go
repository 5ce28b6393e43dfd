package shared

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

var getRuntime = func() string { return runtime.GOOS }

// browserCommands maps GOOS to the launcher that opens a URL.
var browserCommands = map[string][]string{
	"darwin":  {"open"},
	"linux":   {"xdg-open"},
	"freebsd": {"xdg-open"},
	"windows": {"rundll32", "url.dll,FileProtocolHandler"},
}

// OpenBrowser opens rawURL in the default browser. Only http and https URLs are opened.
func OpenBrowser(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: not a web address: %q", ErrInvalidArgument, rawURL)
	}

	launcher, ok := browserCommands[getRuntime()]
	if !ok {
		return fmt.Errorf("unsupported platform: %s", getRuntime())
	}

	args := append(launcher[1:len(launcher):len(launcher)], u.String())
	if err := exec.Command(launcher[0], args...).Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
