package knmi

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/knmi-point-weather/internal/weather"
)

const (
	preambleLines = 5
	headerMarker  = "# STN,YYYYMMDD"
)

var stationLine = regexp.MustCompile(`^# \d{3}`)

type parseState int

const (
	statePreamble parseState = iota
	stateStationTable
	stateAwaitHeader
	stateDataRows
)

// columns holds the positions of the fixed and requested columns of the CSV
// header. A requested code absent from the header has index -1.
type columns struct {
	width int
	stn   int
	date  int
	hour  int
	codes []int
}

// Parser turns one raw KNMI hourly response into a station catalog and
// observation rows.
type Parser struct {
	codes []string

	state    parseState
	line     int
	stations weather.StationCatalog
	cols     columns

	data    strings.Builder
	dataAt  []int // source line number of each buffered data line
	hasHead bool
}

// NewParser creates a parser for a response requested with the given codes.
func NewParser(codes []string) *Parser {
	return &Parser{
		codes:    codes,
		stations: make(weather.StationCatalog),
	}
}

// Parse is a convenience wrapper around NewParser(codes).Parse(r).
func Parse(r io.Reader, codes []string) (weather.Chunk, error) {
	return NewParser(codes).Parse(r)
}

// Parse consumes r. A response without the CSV header yields a chunk with no
// rows and a nil error; malformed content yields a *weather.ChunkParseError.
func (p *Parser) Parse(r io.Reader) (weather.Chunk, error) {
	br := bufio.NewReader(r)
	for {
		raw, err := br.ReadString('\n')
		if len(raw) > 0 {
			p.line++
			if perr := p.feed(strings.TrimRight(raw, "\r\n")); perr != nil {
				return weather.Chunk{}, perr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return weather.Chunk{}, fmt.Errorf("read chunk: %w", err)
		}
	}

	chunk := weather.Chunk{
		Codes:    p.codes,
		Stations: p.stations,
	}
	if !p.hasHead {
		return chunk, nil
	}

	rows, err := p.parseRows()
	if err != nil {
		return weather.Chunk{}, err
	}
	chunk.Rows = rows
	return chunk, nil
}

func (p *Parser) feed(line string) error {
	switch p.state {
	case statePreamble:
		if p.line < preambleLines {
			return nil
		}
		p.state = stateStationTable
		return nil

	case stateStationTable:
		switch {
		case stationLine.MatchString(line):
			return p.addStation(line)
		case strings.HasPrefix(line, headerMarker):
			return p.readHeader(line)
		case len(p.stations) > 0:
			p.state = stateAwaitHeader
		}
		return nil

	case stateAwaitHeader:
		if strings.HasPrefix(line, headerMarker) {
			return p.readHeader(line)
		}
		return nil

	case stateDataRows:
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			return nil
		}
		p.data.WriteString(line)
		p.data.WriteByte('\n')
		p.dataAt = append(p.dataAt, p.line)
		return nil
	}
	return nil
}

func (p *Parser) addStation(line string) error {
	fields := strings.Fields(strings.TrimPrefix(line, "#"))
	if len(fields) < 3 {
		return &weather.ChunkParseError{Line: p.line, Err: fmt.Errorf("short station record %q", line)}
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return &weather.ChunkParseError{Line: p.line, Err: fmt.Errorf("station id: %w", err)}
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return &weather.ChunkParseError{Line: p.line, Err: fmt.Errorf("station %d longitude: %w", id, err)}
	}
	lat, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return &weather.ChunkParseError{Line: p.line, Err: fmt.Errorf("station %d latitude: %w", id, err)}
	}

	rec := weather.StationRecord{ID: id, Lat: lat, Lon: lon}
	if len(fields) > 3 {
		if alt, err := strconv.ParseFloat(fields[3], 64); err == nil {
			rec.Alt = alt
			rec.Name = strings.Join(fields[4:], " ")
		} else {
			rec.Name = strings.Join(fields[3:], " ")
		}
	}
	p.stations[id] = rec
	return nil
}

func (p *Parser) readHeader(line string) error {
	names := strings.Split(strings.TrimPrefix(line, "#"), ",")
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[strings.TrimSpace(n)] = i
	}

	cols := columns{width: len(names), codes: make([]int, len(p.codes))}
	var ok bool
	if cols.stn, ok = idx["STN"]; !ok {
		return &weather.ChunkParseError{Line: p.line, Err: errors.New("header without STN column")}
	}
	if cols.date, ok = idx["YYYYMMDD"]; !ok {
		return &weather.ChunkParseError{Line: p.line, Err: errors.New("header without YYYYMMDD column")}
	}
	if cols.hour, ok = idx["HH"]; !ok {
		return &weather.ChunkParseError{Line: p.line, Err: errors.New("header without HH column")}
	}
	for i, code := range p.codes {
		if j, found := idx[code]; found {
			cols.codes[i] = j
		} else {
			cols.codes[i] = -1
		}
	}

	p.cols = cols
	p.hasHead = true
	p.state = stateDataRows
	return nil
}

func (p *Parser) parseRows() ([]weather.ObservationRow, error) {
	reader := csv.NewReader(strings.NewReader(p.data.String()))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = p.cols.width

	rows := make([]weather.ObservationRow, 0, len(p.dataAt))
	for n := 0; ; n++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &weather.ChunkParseError{Line: p.sourceLine(n), Err: err}
		}

		row, err := p.parseRecord(record)
		if err != nil {
			return nil, &weather.ChunkParseError{Line: p.sourceLine(n), Err: err}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (p *Parser) sourceLine(n int) int {
	if n < len(p.dataAt) {
		return p.dataAt[n]
	}
	return p.line
}

func (p *Parser) parseRecord(record []string) (weather.ObservationRow, error) {
	stn, err := strconv.Atoi(strings.TrimSpace(record[p.cols.stn]))
	if err != nil {
		return weather.ObservationRow{}, fmt.Errorf("station id: %w", err)
	}
	day, err := time.ParseInLocation("20060102", strings.TrimSpace(record[p.cols.date]), time.UTC)
	if err != nil {
		return weather.ObservationRow{}, fmt.Errorf("date: %w", err)
	}
	hour, err := strconv.Atoi(strings.TrimSpace(record[p.cols.hour]))
	if err != nil {
		return weather.ObservationRow{}, fmt.Errorf("hour: %w", err)
	}
	if hour < 1 || hour > 24 {
		return weather.ObservationRow{}, fmt.Errorf("hour %d outside 1..24", hour)
	}

	values := make([]float64, len(p.cols.codes))
	for i, j := range p.cols.codes {
		values[i] = math.NaN()
		if j < 0 {
			continue
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(record[j]), 64); err == nil {
			values[i] = v
		}
	}

	return weather.ObservationRow{
		StationID: stn,
		// HH is the end of the observation hour.
		Timestamp: day.Add(time.Duration(hour-1) * time.Hour),
		Values:    values,
	}, nil
}
