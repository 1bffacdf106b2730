package inputs

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ShuntTask is one row of a shunt-task CSV (spec.md §6.1): a bus to probe
// plus up to six optional one-phase/two-phase (r, x, u) targets. A field
// value of -1 means "unspecified" (absent from the source file, or
// present as an empty cell / literal "0").
type ShuntTask struct {
	Bus                    int
	R1, X1, U1             float64
	R2, X2, U2             float64
}

const shuntTaskHeader = "node;r1;x1;u1;r2;x2;u2"

// Unspecified is the sentinel value for "field not given" (§6.1).
const Unspecified = -1.0

// ParseShuntTasks reads semicolon-delimited shunt-task rows from r. The
// header row must read exactly "node;r1;x1;u1;r2;x2;u2"; data rows are
// bus_id;r1;x1;u1;r2;x2;u2 with empty or literal "0" cells mapping to
// Unspecified, and both "." and "," accepted as the decimal separator —
// mirroring rastr_operations.py's locale-aware float parsing so CSVs
// exported under either a Russian or an English locale load identically.
func ParseShuntTasks(r io.Reader) ([]ShuntTask, error) {
	scanner := bufio.NewScanner(r)

	if !scanner.Scan() {
		return nil, fmt.Errorf("inputs: shunt-task file is empty")
	}
	header := strings.TrimSpace(scanner.Text())
	if header != shuntTaskHeader {
		return nil, fmt.Errorf("inputs: shunt-task header %q does not match expected %q", header, shuntTaskHeader)
	}

	var tasks []ShuntTask
	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ";")
		if len(fields) != 7 {
			return nil, fmt.Errorf("inputs: shunt-task line %d: expected 7 fields, got %d", lineNo, len(fields))
		}

		bus, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("inputs: shunt-task line %d: bad bus id %q: %w", lineNo, fields[0], err)
		}

		vals := make([]float64, 6)
		for i, f := range fields[1:] {
			v, err := parseShuntField(f)
			if err != nil {
				return nil, fmt.Errorf("inputs: shunt-task line %d: field %d: %w", lineNo, i+1, err)
			}
			vals[i] = v
		}

		tasks = append(tasks, ShuntTask{
			Bus: bus,
			R1:  vals[0], X1: vals[1], U1: vals[2],
			R2: vals[3], X2: vals[4], U2: vals[5],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("inputs: reading shunt-task file: %w", err)
	}
	return tasks, nil
}

func parseShuntField(raw string) (float64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "0" {
		return Unspecified, nil
	}
	normalized := strings.Replace(trimmed, ",", ".", 1)
	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %q as float: %w", raw, err)
	}
	return v, nil
}
