package browser

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func statOnly(present ...string) func(string) (os.FileInfo, error) {
	set := make(map[string]bool, len(present))
	for _, p := range present {
		set[p] = true
	}
	return func(path string) (os.FileInfo, error) {
		if set[path] {
			return nil, nil
		}
		return nil, os.ErrNotExist
	}
}

func TestFinderDarwin(t *testing.T) {
	f := &Finder{
		GOOS: "darwin",
		Stat: statOnly("/Applications/Chromium.app/Contents/MacOS/Chromium"),
	}
	path, ok := f.Find()
	require.True(t, ok)
	require.Equal(t, "/Applications/Chromium.app/Contents/MacOS/Chromium", path)
}

func TestFinderDarwinPrefersChrome(t *testing.T) {
	f := &Finder{
		GOOS: "darwin",
		Stat: statOnly(
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		),
	}
	path, ok := f.Find()
	require.True(t, ok)
	require.Equal(t, "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome", path)
}

func TestFinderLinux(t *testing.T) {
	f := &Finder{
		GOOS: "linux",
		LookPath: func(name string) (string, error) {
			if name == "chromium" {
				return "/usr/bin/chromium", nil
			}
			return "", errors.New("not found")
		},
	}
	path, ok := f.Find()
	require.True(t, ok)
	require.Equal(t, "/usr/bin/chromium", path)
}

func TestFinderWindows(t *testing.T) {
	want := filepath.Join(`C:\Program Files`, `Google\Chrome\Application\chrome.exe`)
	f := &Finder{
		GOOS: "windows",
		Stat: statOnly(want),
		Getenv: func(key string) string {
			if key == "ProgramFiles" {
				return `C:\Program Files`
			}
			return ""
		},
	}
	path, ok := f.Find()
	require.True(t, ok)
	require.Equal(t, want, path)
}

func TestFinderNotFound(t *testing.T) {
	f := &Finder{
		GOOS:     "linux",
		LookPath: func(string) (string, error) { return "", errors.New("not found") },
	}
	_, ok := f.Find()
	require.False(t, ok)
}

func TestLaunchValidation(t *testing.T) {
	_, err := Launch(t.Context(), LaunchOptions{Binary: "/bin/true", DataDir: t.TempDir()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "port")
}
