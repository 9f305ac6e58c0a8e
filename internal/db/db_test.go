package db

import (
	"testing"
)

func TestPoolConfig(t *testing.T) {
	tests := []struct {
		name         string
		dsn          string
		maxConns     int32
		wantMaxConns int32
		wantErr      bool
	}{
		{
			name:         "configured pool size applied",
			dsn:          "postgres://u:p@localhost:5432/pulsehook?sslmode=disable",
			maxConns:     25,
			wantMaxConns: 25,
		},
		{
			name:         "zero falls back to default",
			dsn:          "postgres://u:p@localhost:5432/pulsehook?sslmode=disable",
			maxConns:     0,
			wantMaxConns: defaultMaxConns,
		},
		{
			name:         "negative falls back to default",
			dsn:          "postgres://u:p@localhost:5432/pulsehook?sslmode=disable",
			maxConns:     -1,
			wantMaxConns: defaultMaxConns,
		},
		{
			name:     "malformed dsn",
			dsn:      "postgres://u:p@localhost:5432/pulsehook?sslmode=%zz",
			maxConns: 10,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := poolConfig(tt.dsn, tt.maxConns)
			if (err != nil) != tt.wantErr {
				t.Fatalf("poolConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg.MaxConns != tt.wantMaxConns {
				t.Errorf("MaxConns = %d, want %d", cfg.MaxConns, tt.wantMaxConns)
			}
		})
	}
}
