package ssh

import "testing"

func TestConfigAddr(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{Host: "prod.example.com"}, "prod.example.com:22"},
		{Config{Host: "prod.example.com", Port: 2222}, "prod.example.com:2222"},
		{Config{Host: "prod.example.com:2200", Port: 2222}, "prod.example.com:2200"},
		{Config{Host: "[::1]:23"}, "[::1]:23"},
	}
	for _, tt := range tests {
		if got := tt.cfg.Addr(); got != tt.want {
			t.Fatalf("Addr(%+v) = %s, want %s", tt.cfg, got, tt.want)
		}
	}
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{N: 4}
	if _, err := b.Write([]byte("abcd")); err != nil {
		t.Fatalf("write within limit: %v", err)
	}
	if _, err := b.Write([]byte("e")); err == nil {
		t.Fatalf("expected overflow error")
	}
}
