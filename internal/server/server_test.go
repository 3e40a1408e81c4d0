package server

import (
	"context"
	"testing"
	"time"

	"github.com/hyperjump/shiori/internal/config"
)

func TestServer_StopBeforeStart(t *testing.T) {
	srv := NewServer(stubService{}, &config.ServerConfig{Host: "127.0.0.1", Port: 0}, nil)
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Errorf("Start after Stop = %v, want nil", err)
	}
}

func TestServer_StopWhileStarting(t *testing.T) {
	srv := NewServer(stubService{}, &config.ServerConfig{Host: "127.0.0.1", Port: 0}, nil)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start = %v, want nil after Stop", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
