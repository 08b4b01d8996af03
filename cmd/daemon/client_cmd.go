package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/ManuGH/bundled/internal/config"
	"github.com/ManuGH/bundled/internal/platform/httpx"
)

func controlRequest(ctx context.Context, addr, method, path string, timeout time.Duration) (*http.Response, error) {
	client := httpx.NewClient(httpx.Options{Timeout: timeout, UserAgent: "bundled-cli"})
	req, err := http.NewRequestWithContext(ctx, method, "http://"+addr+path, nil)
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}

func runHealthcheckCLI(args []string) int {
	fs := flag.NewFlagSet("healthcheck", flag.ContinueOnError)
	mode := fs.String("mode", "ready", "healthcheck mode: ready (default) or live")
	addr := fs.String("addr", config.DefaultListen, "control API address")
	timeout := fs.Duration("timeout", 5*time.Second, "check timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path := "/healthz"
	if *mode == "ready" {
		path = "/readyz"
	}
	resp, err := controlRequest(context.Background(), *addr, http.MethodGet, path, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Healthcheck failed (network): %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Healthcheck failed (status): %s\n", resp.Status)
		return 1
	}
	fmt.Printf("Healthcheck successful (%s)\n", *mode)
	return 0
}

func getJSON(addr, path string, timeout time.Duration) (map[string]any, error) {
	resp, err := controlRequest(context.Background(), addr, http.MethodGet, path, timeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s", path, resp.Status)
	}
	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return body, nil
}

func runStatusCLI(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	addr := fs.String("addr", config.DefaultListen, "control API address")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	runs := fs.Int("history", 0, "also show the last N update runs")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	body, err := getJSON(*addr, "/api/v1/bundle", *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	if *runs > 0 {
		hist, err := getJSON(*addr, fmt.Sprintf("/api/v1/bundle/history?limit=%d", *runs), *timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "status: %v\n", err)
			return 1
		}
		body["history"] = hist["runs"]
	}
	out, _ := json.MarshalIndent(body, "", "  ")
	fmt.Println(string(out))
	return 0
}

func runRecoverCLI(args []string) int {
	fs := flag.NewFlagSet("recover", flag.ContinueOnError)
	addr := fs.String("addr", config.DefaultListen, "control API address")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: bundled recover [--addr host:port] reload|delete")
		return 2
	}

	resp, err := controlRequest(context.Background(), *addr, http.MethodPost, "/api/v1/recovery/"+url.PathEscape(fs.Arg(0)), *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recover: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		fmt.Fprintf(os.Stderr, "recover failed: %s %s\n", resp.Status, msg)
		return 1
	}
	fmt.Printf("Recovery action %q accepted\n", fs.Arg(0))
	return 0
}
