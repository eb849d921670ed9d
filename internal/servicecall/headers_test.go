package servicecall

import (
	"errors"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", in: "", want: map[string]string{}},
		{name: "blank", in: "  \n", want: map[string]string{}},
		{
			name: "flat object",
			in:   `{"Authorization":"Basic abc","Content-Type":"application/json"}`,
			want: map[string]string{"Authorization": "Basic abc", "Content-Type": "application/json"},
		},
		{name: "not json", in: `Authorization: Basic abc`, wantErr: true},
		{name: "non-string value", in: `{"X-Retries":3}`, wantErr: true},
		{name: "array", in: `["a","b"]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHeaders(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedHeaders) {
					t.Fatalf("error = %v, want ErrMalformedHeaders", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestWithBearerReplacesAuthorization(t *testing.T) {
	in := map[string]string{"authorization": "Basic old", "Accept": "application/json"}

	out := withBearer(in, "tkn")

	if len(out) != 2 || out["Authorization"] != "Bearer tkn" || out["Accept"] != "application/json" {
		t.Errorf("withBearer() = %v", out)
	}
	if in["authorization"] != "Basic old" {
		t.Error("withBearer modified its input")
	}
}
