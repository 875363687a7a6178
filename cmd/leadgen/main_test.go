package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/octobees/leadgen/internal/auth"
	"github.com/octobees/leadgen/internal/dto"
)

func TestParseRunFlags(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseRunFlags([]string{
		"--query", "plumber", "--city", "Austin", "--lat", "30.2672", "--lng", "-97.7431",
		"--pages", "2", "--minScore", "40", "--enrichEmails", "--skipSuspicious", "--deepTrust",
	}, &stderr)
	if err != nil {
		t.Fatalf("unexpected error: %v (%s)", err, stderr.String())
	}
	if opts.Query != "plumber" || opts.City != "Austin" || opts.Pages != 2 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.Lat != 30.2672 || opts.Lng != -97.7431 || opts.Radius != 30000 {
		t.Fatalf("unexpected location: %+v", opts)
	}
	if opts.MinScore == nil || *opts.MinScore != 40 {
		t.Fatalf("expected min score 40")
	}
	if !opts.EnrichEmails || opts.EnrichSocial || !opts.SkipSuspicious || !opts.DeepTrust {
		t.Fatalf("unexpected toggles: %+v", opts)
	}
}

func TestParseRunFlagsDefaults(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseRunFlags([]string{"--query", "dentist", "--city", "Boise", "--lat", "43.6", "--lng", "-116.2"}, &stderr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Pages != 3 || opts.MinScore != nil {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
}

func TestParseRunFlagsErrors(t *testing.T) {
	cases := map[string][]string{
		"missing query":  {"--city", "Austin", "--lat", "1", "--lng", "1"},
		"missing city":   {"--query", "plumber", "--lat", "1", "--lng", "1"},
		"missing coords": {"--query", "plumber", "--city", "Austin"},
		"bad lat":        {"--query", "plumber", "--city", "Austin", "--lat", "north", "--lng", "1"},
		"lat suffix":     {"--query", "plumber", "--city", "Austin", "--lat", "30.2abc", "--lng", "1"},
		"lng suffix":     {"--query", "plumber", "--city", "Austin", "--lat", "1", "--lng", "-97.7x"},
		"unknown flag":   {"--query", "plumber", "--city", "Austin", "--lat", "1", "--lng", "1", "--bogus"},
		"extra argument": {"--query", "plumber", "--city", "Austin", "--lat", "1", "--lng", "1", "extra"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			var stderr bytes.Buffer
			if _, err := parseRunFlags(args, &stderr); err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(stderr.String(), "usage: leadgen") && !strings.Contains(stderr.String(), "Usage") {
				t.Fatalf("expected usage text, got %q", stderr.String())
			}
		})
	}
}

func TestRunExitCodes(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"--query", "plumber"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1 on missing arguments, got %d", code)
	}
	if code := run([]string{"-h"}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit 0 on help, got %d", code)
	}
}

func TestTokenSubcommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("ORG_ID", "acme-agency")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"token", "-subject", "ops-bot", "-role", "admin"}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit 0, got %d (%s)", code, stderr.String())
	}

	var resp dto.TokenResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	claims, err := auth.NewJWTManager("cli-secret", 0).ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "ops-bot" || claims.OrgID != "acme-agency" || claims.Role != auth.RoleAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	stdout.Reset()
	if code := run([]string{"token", "-role", "admin"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1 without subject, got %d", code)
	}
	if code := run([]string{"token", "-subject", "x", "-role", "root"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1 for unknown role, got %d", code)
	}
}
