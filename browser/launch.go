package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"
)

const launchPollInterval = 250 * time.Millisecond

type (
	// LaunchOptions configures a Chromium launch.
	LaunchOptions struct {
		// Port is the remote debugging port.
		Port int
		// DataDir is the Chromium user-data-dir for the profile.
		DataDir string
		// Headless launches with --headless=new.
		Headless bool
		// DownloadDir, when set, is applied as the download location via
		// Browser.setDownloadBehavior after the browser is up.
		DownloadDir string
		// Binary overrides auto-detection of the Chromium executable.
		Binary string
		// WaitFor bounds the /json/version readiness poll. Defaults to 10s.
		WaitFor time.Duration
	}

	// Finder locates a Chromium binary by walking a platform-specific
	// candidate list. The filesystem and PATH lookups are injectable so the
	// walk is unit-testable.
	Finder struct {
		// GOOS overrides the platform; defaults to runtime.GOOS.
		GOOS string
		// LookPath resolves a name on PATH; defaults to exec.LookPath.
		LookPath func(string) (string, error)
		// Stat probes absolute candidates; defaults to os.Stat.
		Stat func(string) (os.FileInfo, error)
		// Getenv reads environment variables; defaults to os.Getenv.
		Getenv func(string) string
	}

	// Process is a launched Chromium instance.
	Process struct {
		cmd  *exec.Cmd
		Port int
	}
)

var (
	darwinCandidates = []string{
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
		"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary",
		"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
	}
	linuxCandidates = []string{
		"google-chrome",
		"google-chrome-stable",
		"chromium",
		"chromium-browser",
		"chrome",
	}
	windowsCandidates = []string{
		`Google\Chrome\Application\chrome.exe`,
		`Chromium\Application\chrome.exe`,
		`Microsoft\Edge\Application\msedge.exe`,
	}
)

// Find returns the first Chromium binary present on this platform, or false
// when none is found.
func (f *Finder) Find() (string, bool) {
	goos := f.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	lookPath := f.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	stat := f.Stat
	if stat == nil {
		stat = os.Stat
	}
	getenv := f.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	switch goos {
	case "darwin":
		for _, candidate := range darwinCandidates {
			if _, err := stat(candidate); err == nil {
				return candidate, true
			}
		}
	case "windows":
		roots := []string{getenv("ProgramFiles"), getenv("ProgramFiles(x86)"), getenv("LocalAppData")}
		for _, root := range roots {
			if root == "" {
				continue
			}
			for _, suffix := range windowsCandidates {
				candidate := filepath.Join(root, suffix)
				if _, err := stat(candidate); err == nil {
					return candidate, true
				}
			}
		}
	default:
		for _, name := range linuxCandidates {
			if path, err := lookPath(name); err == nil {
				return path, true
			}
		}
	}
	return "", false
}

// Launch spawns Chromium with remote debugging enabled and polls the
// discovery endpoint until the browser answers or the wait window elapses.
// On timeout the subprocess is killed.
func Launch(ctx context.Context, opts LaunchOptions) (*Process, error) {
	binary := opts.Binary
	if binary == "" {
		found, ok := (&Finder{}).Find()
		if !ok {
			return nil, fmt.Errorf("no chrome or chromium binary found; install one or set the binary path explicitly")
		}
		binary = found
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("launch: port is required")
	}
	if opts.DataDir == "" {
		return nil, fmt.Errorf("launch: user data dir is required")
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("launch: create data dir: %w", err)
	}
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", opts.Port),
		"--user-data-dir=" + opts.DataDir,
		"--no-first-run",
		"--no-default-browser-check",
	}
	if opts.Headless {
		args = append(args, "--headless=new")
	}
	cmd := exec.Command(binary, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch %s: %w", binary, err)
	}

	wait := opts.WaitFor
	if wait <= 0 {
		wait = 10 * time.Second
	}
	base := fmt.Sprintf("http://127.0.0.1:%d", opts.Port)
	deadline := time.Now().Add(wait)
	for {
		if err := discover(base, opts.Port); err == nil {
			break
		}
		if time.Now().After(deadline) {
			_ = cmd.Process.Kill()
			return nil, &NotRunningError{Port: opts.Port, Cause: fmt.Errorf("browser did not answer within %s", wait)}
		}
		select {
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			return nil, ctx.Err()
		case <-time.After(launchPollInterval):
		}
	}

	p := &Process{cmd: cmd, Port: opts.Port}
	if opts.DownloadDir != "" {
		if err := p.applyDownloadDir(opts.DownloadDir); err != nil {
			// Non-fatal: downloads fall back to the browser default.
			return p, nil
		}
	}
	return p, nil
}

// Kill terminates the browser subprocess.
func (p *Process) Kill() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// applyDownloadDir connects to the first page target and applies
// Browser.setDownloadBehavior=allow with the given directory.
func (p *Process) applyDownloadDir(dir string) error {
	base := fmt.Sprintf("http://127.0.0.1:%d", p.Port)
	_, wsURLs, err := listTabs(base, p.Port)
	if err != nil || len(wsURLs) == 0 {
		return fmt.Errorf("no page target for download behavior")
	}
	client, err := Dial(wsURLs[0])
	if err != nil {
		return err
	}
	defer client.Close()
	_, err = client.Call("Browser.setDownloadBehavior", map[string]any{
		"behavior":     "allow",
		"downloadPath": dir,
	})
	return err
}
