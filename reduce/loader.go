package reduce

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LoadEventsCSV reads an event list from a CSV file with two columns,
// wavelength (angstrom) and pixel id. A header row is detected and skipped.
// Instrument file formats (NeXus, McStas) are converted to this neutral form
// by external tooling.
func LoadEventsCSV(path string) (EventSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return EventSet{}, fmt.Errorf("opening event file: %w", err)
	}
	defer f.Close()

	events, err := ReadEventsCSV(f)
	if err != nil {
		return EventSet{}, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

// ReadEventsCSV reads wavelength,pixel records from r.
func ReadEventsCSV(r io.Reader) (EventSet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true

	var events EventSet
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return EventSet{}, fmt.Errorf("reading events: %w", err)
		}
		line++
		if line == 1 && isHeader(record) {
			continue
		}
		wavelength, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			return EventSet{}, fmt.Errorf("line %d: bad wavelength %q", line, record[0])
		}
		pixel, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			return EventSet{}, fmt.Errorf("line %d: bad pixel id %q", line, record[1])
		}
		events.Append(wavelength, pixel)
	}
	return events, nil
}

func isHeader(record []string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
	return err != nil
}
