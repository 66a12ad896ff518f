package main

import (
	"strings"
	"testing"
)

func TestKeyFromHex(t *testing.T) {
	for _, tt := range []struct {
		name    string
		value   string
		wantErr string
	}{
		{name: "valid", value: strings.Repeat("ab", 32)},
		{name: "not hex", value: strings.Repeat("zz", 32), wantErr: "not hex-encoded"},
		{name: "too short", value: strings.Repeat("ab", 16), wantErr: "not 32 bytes long"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			key, err := keyFromHex(tt.value)
			switch {
			case tt.wantErr == "" && err != nil:
				t.Fatal(err)
			case tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)):
				t.Fatalf("want error containing %q, got %v", tt.wantErr, err)
			case tt.wantErr == "" && len(key) != 64:
				t.Errorf("key is %d bytes", len(key))
			}
		})
	}
}

func TestParseBindNetFromAddr(t *testing.T) {
	for _, tt := range []struct {
		address     string
		wantNetwork string
		wantAddress string
	}{
		{":8923", "tcp", "localhost:8923"},
		{"0.0.0.0:8923", "tcp", "0.0.0.0:8923"},
		{"unix:///run/expoasia/portal.sock", "unix", "/run/expoasia/portal.sock"},
		{"http://127.0.0.1:9090", "tcp", "127.0.0.1:9090"},
	} {
		t.Run(tt.address, func(t *testing.T) {
			network, address := parseBindNetFromAddr(tt.address)
			if network != tt.wantNetwork || address != tt.wantAddress {
				t.Logf("want: %s %s", tt.wantNetwork, tt.wantAddress)
				t.Logf("got:  %s %s", network, address)
				t.Error("wrong bind network or address")
			}
		})
	}
}
