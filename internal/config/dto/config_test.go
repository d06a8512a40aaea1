package dto

import (
	"testing"
	"time"
)

func TestApplicationConfig_Validate(t *testing.T) {
	valid := func() ApplicationConfig {
		return ApplicationConfig{
			Application: ApplicationInfo{Name: "edgeshuffle"},
			Graph:       GraphConfig{Name: "web", ChunkCapacity: 16},
			Fleet:       FleetConfig{Devices: 2, StreamDepth: 4},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*ApplicationConfig)
		wantErr bool
	}{
		{"valid", func(*ApplicationConfig) {}, false},
		{"missing name", func(c *ApplicationConfig) { c.Application.Name = "" }, true},
		{"missing graph name", func(c *ApplicationConfig) { c.Graph.Name = "" }, true},
		{"negative chunk capacity", func(c *ApplicationConfig) { c.Graph.ChunkCapacity = -1 }, true},
		{"no devices", func(c *ApplicationConfig) { c.Fleet.Devices = 0 }, true},
		{"negative memory limit", func(c *ApplicationConfig) { c.Fleet.MemoryLimitMB = -1 }, true},
		{"zero stream depth", func(c *ApplicationConfig) { c.Fleet.StreamDepth = 0 }, true},
		{"unlimited memory", func(c *ApplicationConfig) { c.Fleet.MemoryLimitMB = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(&config)
			if err := config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFleetConfig_MemoryLimitBytes(t *testing.T) {
	tests := []struct {
		mb   int64
		want int64
	}{
		{0, 0},
		{1, 1 << 20},
		{256, 256 << 20},
	}

	for _, tt := range tests {
		if got := (FleetConfig{MemoryLimitMB: tt.mb}).MemoryLimitBytes(); got != tt.want {
			t.Errorf("MemoryLimitBytes(%d MB) = %d, want %d", tt.mb, got, tt.want)
		}
	}
}

func TestShutdownConfig_Durations(t *testing.T) {
	config := ShutdownConfig{GracePeriodSeconds: 5, ForceTimeoutSeconds: 20}

	if got := config.GracePeriod(); got != 5*time.Second {
		t.Errorf("GracePeriod() = %v, want 5s", got)
	}
	if got := config.ForceTimeout(); got != 20*time.Second {
		t.Errorf("ForceTimeout() = %v, want 20s", got)
	}
}

func TestStorageBackendConfigs_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  interface{ Validate() error }
		wantErr bool
	}{
		{"s3 valid", &S3Config{Bucket: "lake", Region: "us-east-1"}, false},
		{"s3 no bucket", &S3Config{Region: "us-east-1"}, true},
		{"s3 no region", &S3Config{Bucket: "lake"}, true},
		{"azure valid", &AzureConfig{AccountName: "acct", Container: "edges"}, false},
		{"azure no container", &AzureConfig{AccountName: "acct"}, true},
		{"gcs valid", &GCSConfig{Bucket: "lake"}, false},
		{"gcs no bucket", &GCSConfig{ProjectID: "p"}, true},
		{"file valid", &FileConfig{BasePath: "/tmp"}, false},
		{"file no path", &FileConfig{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
