package responseformat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

type payload struct {
	RunID  string `json:"run_id"`
	Events int    `json:"events"`
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		accept string
		want   string
	}{
		{"default", "/x", "", FormatJSON},
		{"query msgpack", "/x?format=msgpack", "", FormatMsgPack},
		{"query csv upper", "/x?format=CSV", "", FormatCSV},
		{"query beats accept", "/x?format=json", "application/x-msgpack", FormatJSON},
		{"accept msgpack", "/x", "application/x-msgpack", FormatMsgPack},
		{"accept csv", "/x", "text/csv", FormatCSV},
		{"unknown query", "/x?format=xml", "", FormatJSON},
	}

	f := NewFormatter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			if got := f.Format(req); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteResponse(t *testing.T) {
	f := NewFormatter()
	data := payload{RunID: "abc", Events: 3}

	t.Run("json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if err := f.WriteResponse(rec, req, http.StatusCreated, data, map[string]string{"X-Run-ID": "abc"}); err != nil {
			t.Fatal(err)
		}
		if rec.Code != http.StatusCreated {
			t.Errorf("status = %d", rec.Code)
		}
		if got := rec.Header().Get("Content-Type"); got != "application/json" {
			t.Errorf("content type = %q", got)
		}
		if rec.Header().Get("X-Run-ID") != "abc" || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("headers = %v", rec.Header())
		}
		var got payload
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		if got != data {
			t.Errorf("body = %+v", got)
		}
	})

	t.Run("msgpack", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x?format=msgpack", nil)
		if err := f.WriteResponse(rec, req, http.StatusOK, data, nil); err != nil {
			t.Fatal(err)
		}
		if got := rec.Header().Get("Content-Type"); got != "application/x-msgpack" {
			t.Errorf("content type = %q", got)
		}
		var got map[string]any
		if err := msgpack.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if got["run_id"] != "abc" {
			t.Errorf("msgpack keys should follow json tags: %v", got)
		}
	})
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x?format=csv", nil)
	if err := NewFormatter().WriteError(rec, req, http.StatusNotFound, "run not found"); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	var body ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "run not found" {
		t.Errorf("body = %+v", body)
	}
}
