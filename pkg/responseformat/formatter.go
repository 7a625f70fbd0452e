// Package responseformat negotiates and writes HTTP response bodies.
package responseformat

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	FormatJSON    = "json"
	FormatMsgPack = "msgpack"
	FormatCSV     = "csv"
)

// Formatter handles encoding and writing responses in JSON or MessagePack format
type Formatter struct{}

// NewFormatter creates a new response formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// Format returns the body format a request asked for. The format query
// parameter wins over the Accept header; JSON is the default.
func (f *Formatter) Format(req *http.Request) string {
	switch strings.ToLower(req.URL.Query().Get("format")) {
	case FormatMsgPack:
		return FormatMsgPack
	case FormatCSV:
		return FormatCSV
	case FormatJSON:
		return FormatJSON
	}

	accept := req.Header.Get("Accept")
	switch {
	case strings.Contains(accept, "application/x-msgpack"), strings.Contains(accept, "application/msgpack"):
		return FormatMsgPack
	case strings.Contains(accept, "text/csv"):
		return FormatCSV
	}
	return FormatJSON
}

// WriteResponse writes data with the given status code as MessagePack when the
// request asked for it and as JSON otherwise.
func (f *Formatter) WriteResponse(w http.ResponseWriter, req *http.Request, status int, data any, headers map[string]string) error {
	for k, v := range headers {
		w.Header().Set(k, v)
	}

	// Always set CORS header
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if f.Format(req) == FormatMsgPack {
		return f.writeMsgPack(w, status, data)
	}
	return f.writeJSON(w, status, data)
}

// ErrorBody is the payload of every non-2xx response.
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteError writes msg as an ErrorBody in the request's format. CSV requests
// get JSON errors.
func (f *Formatter) WriteError(w http.ResponseWriter, req *http.Request, status int, msg string) error {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if f.Format(req) == FormatMsgPack {
		return f.writeMsgPack(w, status, ErrorBody{Error: msg})
	}
	return f.writeJSON(w, status, ErrorBody{Error: msg})
}

func (f *Formatter) writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

func (f *Formatter) writeMsgPack(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/x-msgpack")
	w.WriteHeader(status)
	encoder := msgpack.NewEncoder(w)
	encoder.SetCustomStructTag("json") // Use json tags for MessagePack
	return encoder.Encode(data)
}
