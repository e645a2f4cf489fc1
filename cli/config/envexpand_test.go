package config

import (
	"errors"
	"testing"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("IPCPIPE_SET", "hello")
	t.Setenv("IPCPIPE_EMPTY", "")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"set", "value: ${IPCPIPE_SET}", "value: hello"},
		{"unset", "value: ${IPCPIPE_UNSET_12345}", "value: "},
		{"default when unset", "value: ${IPCPIPE_UNSET_12345:-fallback}", "value: fallback"},
		{"default when empty", "value: ${IPCPIPE_EMPTY:-fallback}", "value: fallback"},
		{"default ignored when set", "value: ${IPCPIPE_SET:-fallback}", "value: hello"},
		{"empty default", "value: ${IPCPIPE_UNSET_12345:-}", "value: "},
		{"required set", "value: ${IPCPIPE_SET:?needed}", "value: hello"},
		{"escaped dollar", "price: $$5 ${IPCPIPE_SET}", "price: $5 hello"},
		{"bare dollar kept", "value: $IPCPIPE_SET", "value: $IPCPIPE_SET"},
		{"several", "${IPCPIPE_SET}-${IPCPIPE_SET}", "hello-hello"},
		{"no references", "plain: text", "plain: text"},
		{"invalid name kept", "value: ${1BAD}", "value: ${1BAD}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandEnv(tt.input)
			if err != nil {
				t.Fatalf("ExpandEnv failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandEnv_Required(t *testing.T) {
	t.Setenv("IPCPIPE_EMPTY", "")

	_, err := ExpandEnv("a: ${IPCPIPE_UNSET_12345:?set the hook url}\nb: ${IPCPIPE_EMPTY:?}\n")
	if !errors.Is(err, ErrRequiredEnv) {
		t.Fatalf("ExpandEnv = %v, want ErrRequiredEnv", err)
	}
	want := "required environment variable not set: IPCPIPE_UNSET_12345: set the hook url\n" +
		"required environment variable not set: IPCPIPE_EMPTY: not set"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err, want)
	}
}
