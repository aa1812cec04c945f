package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func execute(t *testing.T, serve serveFunc, args ...string) error {
	t.Helper()
	root := newRootCmd(serve)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	return root.Execute()
}

func TestRootCommand_FlagDefaults(t *testing.T) {
	root := newRootCmd(nil)
	cases := map[string]string{
		"config": "/opt/dermis/config.json",
		"name":   "Dermis-Mirror",
	}
	for flag, want := range cases {
		f := root.Flags().Lookup(flag)
		if f == nil {
			t.Errorf("flag --%s not registered", flag)
			continue
		}
		if f.DefValue != want {
			t.Errorf("--%s default = %q, want %q", flag, f.DefValue, want)
		}
	}
}

func TestRootCommand_PassesName(t *testing.T) {
	var got string
	serve := func(ctx context.Context, name string, log *zap.Logger) error {
		if ctx == nil || log == nil {
			t.Error("serve called without context or logger")
		}
		got = name
		return nil
	}

	cfg := filepath.Join(t.TempDir(), "missing.json")
	if err := execute(t, serve, "--config", cfg, "--name", "Dermis-Test"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got != "Dermis-Test" {
		t.Errorf("served name = %q, want Dermis-Test", got)
	}
}

func TestRootCommand_DefaultName(t *testing.T) {
	var got string
	serve := func(ctx context.Context, name string, log *zap.Logger) error {
		got = name
		return nil
	}

	if err := execute(t, serve, "--config", filepath.Join(t.TempDir(), "missing.json")); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got != "Dermis-Mirror" {
		t.Errorf("served name = %q, want Dermis-Mirror", got)
	}
}

func TestRootCommand_ServeError(t *testing.T) {
	boom := errors.New("no hci device")
	serve := func(ctx context.Context, name string, log *zap.Logger) error { return boom }

	err := execute(t, serve, "--config", filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestRootCommand_RejectsArgs(t *testing.T) {
	called := false
	serve := func(ctx context.Context, name string, log *zap.Logger) error { called = true; return nil }

	if err := execute(t, serve, "extra"); err == nil {
		t.Error("expected error for positional argument")
	}
	if called {
		t.Error("serve should not run when args are rejected")
	}
}
