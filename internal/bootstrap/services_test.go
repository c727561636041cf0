package bootstrap

import (
	"sort"
	"testing"

	"github.com/threatwire/threatwire/config"
)

func TestValidateServiceConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.AppConfig
		wantErr bool
	}{
		{
			name:    "nil config",
			wantErr: true,
		},
		{
			name:    "no services",
			cfg:     &config.AppConfig{Services: ""},
			wantErr: true,
		},
		{
			name:    "unknown service",
			cfg:     &config.AppConfig{Services: "scan-runner,uploader"},
			wantErr: true,
		},
		{
			name: "scan runner only",
			cfg:  &config.AppConfig{Services: "scan-runner"},
		},
		{
			name: "both services",
			cfg:  &config.AppConfig{Services: "scan-runner,reaper"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServiceConfig(tt.cfg)
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestGetEnabledServices(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.AppConfig
		want []string
	}{
		{
			name: "nil config",
			want: []string{},
		},
		{
			name: "invalid services yield empty list",
			cfg:  &config.AppConfig{Services: "uploader"},
			want: []string{},
		},
		{
			name: "both services",
			cfg:  &config.AppConfig{Services: "reaper, scan-runner"},
			want: []string{"reaper", "scan-runner"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetEnabledServices(tt.cfg)
			sort.Strings(got)
			if len(got) != len(tt.want) {
				t.Fatalf("GetEnabledServices() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("GetEnabledServices() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}
