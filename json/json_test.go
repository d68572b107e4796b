package json

import (
	"bytes"
	stdjson "encoding/json"
	"strings"
	"testing"
)

type compressRequest struct {
	Width *uint32 `json:"width,omitempty"`
	Level uint8   `json:"level" default:"2"`
	Strip string  `json:"strip" default:"none"`
	Cache bool    `json:"cache" default:"true"`
}

func TestMarshalAppliesDefaults(t *testing.T) {
	req := &compressRequest{Strip: "safe"}

	data, err := Marshal(req)
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	if req.Level != 2 || !req.Cache {
		t.Fatalf("expected defaults on the original struct, got %+v", req)
	}
	if req.Strip != "safe" {
		t.Fatalf("explicit Strip overwritten: %q", req.Strip)
	}

	var decoded compressRequest
	if err := stdjson.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("encoded JSON should be valid, got error: %v", err)
	}
	if decoded.Level != 2 || decoded.Strip != "safe" || !decoded.Cache || decoded.Width != nil {
		t.Fatalf("unexpected round trip %+v", decoded)
	}
}

func TestUnmarshalAppliesDefaultsForMissingFields(t *testing.T) {
	var req compressRequest
	if err := Unmarshal([]byte(`{"width":64}`), &req); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if req.Width == nil || *req.Width != 64 {
		t.Fatalf("expected width 64, got %v", req.Width)
	}
	if req.Level != 2 || req.Strip != "none" || !req.Cache {
		t.Fatalf("expected defaults, got %+v", req)
	}
}

func TestUnmarshalPreservesExplicitZeroValues(t *testing.T) {
	var req compressRequest
	if err := Unmarshal([]byte(`{"level":0,"cache":false,"strip":""}`), &req); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if req.Level != 0 || req.Cache || req.Strip != "" {
		t.Fatalf("explicit zero values lost: %+v", req)
	}
}

func TestNonStructValuesPassThrough(t *testing.T) {
	data, err := Marshal(map[string]int{"requests": 3})
	if err != nil {
		t.Fatalf("Marshal map: %v", err)
	}
	if string(data) != `{"requests":3}` {
		t.Fatalf("unexpected output %s", data)
	}

	var counts []int
	if err := Unmarshal([]byte(`[1,2]`), &counts); err != nil || len(counts) != 2 {
		t.Fatalf("Unmarshal slice: %v %v", counts, err)
	}

	var nilReq *compressRequest
	if _, err := Marshal(nilReq); err != nil {
		t.Fatalf("Marshal nil pointer: %v", err)
	}
}

func TestDecoderDisallowUnknownFields(t *testing.T) {
	decoder := NewDecoder(strings.NewReader(`{"level":3,"quality":80}`))
	decoder.DisallowUnknownFields()

	var req compressRequest
	if err := decoder.Decode(&req); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestEncoderIndentAndHTML(t *testing.T) {
	var buf bytes.Buffer
	encoder := NewEncoder(&buf)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(&struct {
		Message string `json:"message"`
	}{Message: "<width> & <level>"}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "\n  \"message\"") {
		t.Fatalf("expected indented output, got: %s", out)
	}
	if !strings.Contains(out, "<width> & <level>") {
		t.Fatalf("expected unescaped HTML, got: %s", out)
	}
}
