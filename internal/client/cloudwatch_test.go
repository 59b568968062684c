package client_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/Nao-Mk2/isp-log-reporter/internal/client"
)

func loadOptions(t *testing.T, o client.AuthOptions) config.LoadOptions {
	t.Helper()
	var lo config.LoadOptions
	for _, fn := range client.NewCloudWatchOptions(o) {
		if err := fn(&lo); err != nil {
			t.Fatalf("apply option: %v", err)
		}
	}
	return lo
}

func TestNewCloudWatchOptionsResolution(t *testing.T) {
	tests := []struct {
		name        string
		auth        client.AuthOptions
		profileEnv  string
		keyID       string
		secret      string
		wantRegion  string
		wantProfile string
		wantStatic  bool
	}{
		{name: "sdk defaults"},
		{name: "region only", auth: client.AuthOptions{Region: "eu-central-1"}, wantRegion: "eu-central-1"},
		{name: "profile flag", auth: client.AuthOptions{Profile: "home"}, wantProfile: "home"},
		{name: "AWS_PROFILE", profileEnv: "nas", wantProfile: "nas"},
		{name: "flag beats AWS_PROFILE", auth: client.AuthOptions{Profile: "home"}, profileEnv: "nas", wantProfile: "home"},
		{name: "profile beats static keys", auth: client.AuthOptions{Profile: "home"}, keyID: "AKID", secret: "s3cr3t", wantProfile: "home"},
		{name: "static keys", keyID: "AKID", secret: "s3cr3t", wantStatic: true},
		{name: "key without secret", keyID: "AKID"},
		{name: "region and static keys", auth: client.AuthOptions{Region: "us-west-2"}, keyID: "AKID", secret: "s3cr3t", wantRegion: "us-west-2", wantStatic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AWS_PROFILE", tt.profileEnv)
			t.Setenv("AWS_ACCESS_KEY_ID", tt.keyID)
			t.Setenv("AWS_SECRET_ACCESS_KEY", tt.secret)
			t.Setenv("AWS_SESSION_TOKEN", "")

			lo := loadOptions(t, tt.auth)
			if lo.Region != tt.wantRegion {
				t.Errorf("Region=%q, want %q", lo.Region, tt.wantRegion)
			}
			if lo.SharedConfigProfile != tt.wantProfile {
				t.Errorf("SharedConfigProfile=%q, want %q", lo.SharedConfigProfile, tt.wantProfile)
			}
			if got := lo.Credentials != nil; got != tt.wantStatic {
				t.Fatalf("static credentials set=%v, want %v", got, tt.wantStatic)
			}
			if tt.wantStatic {
				creds, err := lo.Credentials.Retrieve(context.Background())
				if err != nil {
					t.Fatalf("Retrieve: %v", err)
				}
				if creds.AccessKeyID != tt.keyID || creds.SecretAccessKey != tt.secret {
					t.Errorf("credentials=%+v", creds)
				}
			}
		})
	}
}

func TestNewCloudWatchClient(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", t.TempDir()+"/config")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", t.TempDir()+"/credentials")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKID")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "s3cr3t")
	t.Setenv("AWS_PROFILE", "")

	cw, err := client.NewCloudWatchClient(context.Background(),
		client.NewCloudWatchOptions(client.AuthOptions{Region: "eu-central-1"})...)
	if err != nil {
		t.Fatalf("NewCloudWatchClient: %v", err)
	}
	if got := cw.Options().Region; got != "eu-central-1" {
		t.Fatalf("client region=%q", got)
	}
}
