package extract

import (
	"strings"

	"github.com/sells-group/sitrep-cli/internal/states"
)

// Column keys the model must use in every row object.
const (
	KeyStates    = "States"
	KeySuspected = "Suspected"
	KeyConfirmed = "Confirmed"
	KeyProbable  = "Probable"
	KeyHCW       = "HCW"
	KeyDeaths    = "Deaths"
)

// RowKeys lists the row object keys in table order.
var RowKeys = []string{KeyStates, KeySuspected, KeyConfirmed, KeyProbable, KeyHCW, KeyDeaths}

const promptTemplate = `The provided image contains a table with weekly Lassa Fever case data across States in Nigeria. Your task is to extract the data from the table.
The table has the following columns in this exact left-to-right order:
1. States
2. Suspected
3. Confirmed
4. Trend (ignore this column - it is not needed)
5. Probable
6. HCW*
7. Deaths (Confirmed Cases)

Process the table row by row and return a JSON list of objects, one object per row.
Each object must have exactly these keys, in this order: "States", "Suspected", "Confirmed", "Probable", "HCW", "Deaths".
"HCW" holds the HCW* column and "Deaths" holds the Deaths (Confirmed Cases) column.

Rules to avoid hallucination:
- Only transcribe values visible in the image. Never invent a row or a number.
- If a cell is empty, return an empty string for it. Do not guess.
- All numbers are non-negative integers. Copy them exactly as printed.
- Respect column alignment strictly. Numbers are right-aligned within their column; never shift a number into a neighbouring column.
- Ignore the Trend column entirely.

"States" must be one of these names (the image may contain typos; use these spellings): {{STATES}}.
Include only the states you see in the image, in the order they appear. Not every state appears in every report.
The last object must be the "Total" row.
Every object must contain all six keys, even when some values are blank.`

// Prompt is the instruction sent with every table image.
var Prompt = strings.Replace(promptTemplate, "{{STATES}}", strings.Join(states.Canonical, ", "), 1)
