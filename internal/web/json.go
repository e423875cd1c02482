package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sweeney/hrv-controller/internal/inputs"
)

// InputJSON is one raw input on /api/inputs.
type InputJSON struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Updated string `json:"updated"`
}

// InputsJSON is the /api/inputs response.
type InputsJSON struct {
	Inputs []InputJSON `json:"inputs"`
}

type commandResponse struct {
	Command string `json:"command"`
	Payload string `json:"payload,omitempty"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

func formatInputs(entries []inputs.Entry) InputsJSON {
	out := InputsJSON{Inputs: make([]InputJSON, 0, len(entries))}
	for _, e := range entries {
		out.Inputs = append(out.Inputs, InputJSON{
			Key:     e.Key,
			Value:   e.Value,
			Updated: e.Updated.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}
