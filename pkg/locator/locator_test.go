package locator

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		loc    string
		want   string
	}{
		{"relative", "http://svc:8000", "/static/results/x.png", "http://svc:8000/static/results/x.png"},
		{"http passthrough", "http://svc:8000", "http://cdn/x.png", "http://cdn/x.png"},
		{"https passthrough", "http://svc:8000", "https://cdn/x.png", "https://cdn/x.png"},
		{"uppercase scheme", "http://svc:8000", "HTTPS://cdn/x.png", "HTTPS://cdn/x.png"},
		{"s3 passthrough", "http://svc:8000", "s3://bucket/x.png", "s3://bucket/x.png"},
		{"same origin", "", "/static/results/x.png", "/static/results/x.png"},
		{"empty locator", "http://svc:8000", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.origin, tt.loc); got != tt.want {
				t.Errorf("Resolve(%q, %q) = %q, want %q", tt.origin, tt.loc, got, tt.want)
			}
		})
	}
}

func TestIsAbsolute(t *testing.T) {
	if IsAbsolute("/static/x.png") {
		t.Error("relative path reported absolute")
	}
	if IsAbsolute("ftp://host/x.png") {
		t.Error("unrecognized scheme reported absolute")
	}
	if !IsAbsolute("http://host/x.png") {
		t.Error("http locator not reported absolute")
	}
}
