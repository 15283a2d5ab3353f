package logger

import "testing"

func TestGet(t *testing.T) {
	Init("test")
	if Get() == nil {
		t.Fatal("expected a logger")
	}
	// Init runs once; later calls keep the first logger.
	first := Get()
	Init("production")
	if Get() != first {
		t.Error("expected Init to be idempotent")
	}
	if Named("notify") == nil {
		t.Error("expected a named logger")
	}
}
