// Package drivertest provides a fake DevTools driver for tests. The fake is
// the test binary itself re-executed as a child process: call RunIfHelper
// first thing in TestMain and point the driver config at os.Args[0].
package drivertest

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

// EnvMode selects how the helper process behaves.
const EnvMode = "UNITYSCRAPE_FAKE_DRIVER"

const (
	// ModeServe answers the status endpoint like a headful Chrome.
	ModeServe = "serve"
	// ModeHeadless answers the status endpoint like a Chrome started with
	// --headless=new.
	ModeHeadless = "headless"
	// ModeHang never becomes ready.
	ModeHang = "hang"
	// ModeExit exits before becoming ready.
	ModeExit = "exit"
)

// Version is what a browser reports at /json/version.
type Version struct {
	Browser   string
	UserAgent string
}

func userAgent(product string) string {
	return "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) " + product + " Safari/537.36"
}

var (
	Headful = Version{Browser: "Chrome/126.0.6478.126", UserAgent: userAgent("Chrome/126.0.6478.126")}
	// Headless is --headless=new: the product looks headful, only the user
	// agent gives it away.
	Headless = Version{Browser: "Chrome/126.0.6478.126", UserAgent: userAgent("HeadlessChrome/126.0.6478.126")}
	// OldHeadless is the legacy headless shell.
	OldHeadless = Version{Browser: "HeadlessChrome/126.0.6478.126", UserAgent: userAgent("HeadlessChrome/126.0.6478.126")}
)

// RunIfHelper turns the current process into the fake driver when EnvMode is
// set, and never returns in that case.
func RunIfHelper() {
	mode := os.Getenv(EnvMode)
	if mode == "" {
		return
	}
	os.Exit(run(mode, os.Args[1:]))
}

func run(mode string, args []string) int {
	switch mode {
	case ModeExit:
		return 3
	case ModeHang:
		time.Sleep(time.Hour)
		return 0
	}

	port := flagValue(args, "--remote-debugging-port")
	if port == "" {
		fmt.Fprintln(os.Stderr, "fake driver: --remote-debugging-port missing")
		return 2
	}
	host := flagValue(args, "--remote-debugging-address")
	if host == "" {
		host = "127.0.0.1"
	}

	version := Headful
	if mode == ModeHeadless {
		version = Headless
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, port))
	if err != nil {
		fmt.Fprintln(os.Stderr, "fake driver:", err)
		return 2
	}

	addr := ln.Addr().String()
	if err := http.Serve(ln, Handler(version, "ws://"+addr+"/devtools/browser/fake")); err != nil {
		return 1
	}
	return 0
}

func flagValue(args []string, name string) string {
	for _, a := range args {
		if v, ok := strings.CutPrefix(a, name+"="); ok {
			return v
		}
	}
	return ""
}

// Handler serves /json/version for a browser reporting v.
func Handler(v Version, wsURL string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		json.NewEncoder(w).Encode(map[string]string{
			"Browser":              v.Browser,
			"Protocol-Version":     "1.3",
			"User-Agent":           v.UserAgent,
			"webSocketDebuggerUrl": wsURL,
		})
	})
	return mux
}

// Running starts an in-process driver that a manager will find already
// running, and returns its port.
func Running(t *testing.T, v Version) int {
	t.Helper()

	srv := httptest.NewUnstartedServer(nil)
	srv.Config.Handler = Handler(v, "ws://"+srv.Listener.Addr().String()+"/devtools/browser/fake")
	srv.Start()
	t.Cleanup(srv.Close)

	_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	n, _ := strconv.Atoi(port)
	return n
}

// FreePort returns a local port nothing is listening on.
func FreePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	return ln.Addr().(*net.TCPAddr).Port
}

// Env returns the environment that makes the spawned test binary run as the
// fake driver in mode.
func Env(mode string) []string {
	return []string{EnvMode + "=" + mode}
}
