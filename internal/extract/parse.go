package extract

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sitrep-cli/internal/model"
)

// wireRow is the row object the model returns. Counts arrive as strings or
// numbers and are parsed here, once.
type wireRow struct {
	States    string      `json:"States"`
	Suspected model.Count `json:"Suspected"`
	Confirmed model.Count `json:"Confirmed"`
	Probable  model.Count `json:"Probable"`
	HCW       model.Count `json:"HCW"`
	Deaths    model.Count `json:"Deaths"`
}

// ParseRows decodes a model response into rows. It accepts a bare JSON array,
// an object with a "rows" array, and either wrapped in a markdown code fence.
func ParseRows(text string) ([]model.Row, error) {
	body := []byte(stripFence(text))
	if len(body) == 0 {
		return nil, eris.New("extract: empty response")
	}

	var wire []wireRow
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, eris.Wrap(err, "extract: decode row list")
		}
	case '{':
		var wrapped struct {
			Rows []wireRow `json:"rows"`
		}
		dec := json.NewDecoder(bytes.NewReader(body))
		if err := dec.Decode(&wrapped); err != nil {
			return nil, eris.Wrap(err, "extract: decode row object")
		}
		wire = wrapped.Rows
	default:
		return nil, eris.Errorf("extract: response is not JSON: %.40q", body)
	}

	if len(wire) == 0 {
		return nil, eris.New("extract: response contained no rows")
	}

	rows := make([]model.Row, len(wire))
	for i, w := range wire {
		rows[i] = model.Row{
			State:     strings.TrimSpace(w.States),
			Suspected: w.Suspected,
			Confirmed: w.Confirmed,
			Probable:  w.Probable,
			HCW:       w.HCW,
			Deaths:    w.Deaths,
		}
	}
	return rows, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
