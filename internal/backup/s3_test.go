package backup

import (
	"strings"
	"testing"
)

func TestParseS3BucketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		wantBkt   string
		wantPre   string
		errSubstr string
	}{
		{
			name:    "bucket only",
			raw:     "s3://my-bucket",
			wantBkt: "my-bucket",
			wantPre: "",
		},
		{
			name:    "bucket with prefix",
			raw:     "s3://my-bucket/threatlens/backups",
			wantBkt: "my-bucket",
			wantPre: "threatlens/backups",
		},
		{
			name:      "invalid scheme",
			raw:       "https://my-bucket/threatlens",
			wantErr:   true,
			errSubstr: "s3:// scheme",
		},
		{
			name:      "missing bucket",
			raw:       "s3:///threatlens",
			wantErr:   true,
			errSubstr: "missing bucket",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotBkt, gotPre, err := parseS3BucketURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errSubstr != "" && !strings.Contains(err.Error(), tt.errSubstr) {
					t.Fatalf("err = %q, want substring %q", err.Error(), tt.errSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseS3BucketURL error: %v", err)
			}
			if gotBkt != tt.wantBkt {
				t.Fatalf("bucket = %q, want %q", gotBkt, tt.wantBkt)
			}
			if gotPre != tt.wantPre {
				t.Fatalf("prefix = %q, want %q", gotPre, tt.wantPre)
			}
		})
	}
}

func TestNewS3Uploader_MissingCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewS3Uploader(S3Config{
		BucketURL: "s3://my-bucket/threatlens",
		Endpoint:  "s3.amazonaws.com",
		UseSSL:    true,
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"", true, ""},
		{"https://s3.example.test", false, "https://s3.example.test"},
		{"s3.example.test", true, "https://s3.example.test"},
		{"s3.example.test", false, "http://s3.example.test"},
	}
	for _, tt := range tests {
		if got := normalizeEndpoint(tt.in, tt.useSSL); got != tt.want {
			t.Errorf("normalizeEndpoint(%q, %v) = %q, want %q", tt.in, tt.useSSL, got, tt.want)
		}
	}
}
