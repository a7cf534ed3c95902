/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package iprange

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"io"
	"net"
	"os"
	"strings"

	"github.com/sabouaram/pwnet/pkgerr"
)

// Format selects which of the three on-disk shapes Load parses.
type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatCSV
)

// Load reads path as format into d, appending to whatever is already loaded.
func (d *Dataset) Load(path string, format Format) error {
	f, err := os.Open(path)
	if err != nil {
		return pkgerr.Wrap(pkgerr.MinPkgIPRange, "open dataset file", err)
	}
	defer f.Close()
	return d.LoadReader(f, format)
}

// LoadReader reads r as format into d. The three formats are an exhaustive
// switch with an explicit case per format, the same style the listener
// package's type dispatch uses.
func (d *Dataset) LoadReader(r io.Reader, format Format) error {
	switch format {
	case FormatText:
		return d.loadText(r)
	case FormatJSON:
		return d.loadJSON(r)
	case FormatCSV:
		return d.loadCSV(r)
	default:
		return pkgerr.New(pkgerr.MinPkgIPRange, "unknown dataset format")
	}
}

// loadText parses "begin end value" lines, one range per line. Blank lines
// and lines starting with '#' are skipped.
func (d *Dataset) loadText(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return pkgerr.New(pkgerr.MinPkgIPRange, "malformed text line: "+line)
		}
		if err := d.Insert(fields[0], fields[1], strings.Join(fields[2:], " ")); err != nil {
			return err
		}
	}
	return scanner.Err()
}

type jsonRange struct {
	Begin string `json:"begin"`
	End   string `json:"end"`
	Value string `json:"value"`
}

// loadJSON parses a JSON array of {"begin","end","value"} objects.
func (d *Dataset) loadJSON(r io.Reader) error {
	var rows []jsonRange
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return pkgerr.Wrap(pkgerr.MinPkgIPRange, "decode JSON dataset", err)
	}
	for _, row := range rows {
		if err := d.Insert(row.Begin, row.End, row.Value); err != nil {
			return err
		}
	}
	return nil
}

// loadCSV parses a "begin,end,value" relational file. A header row (one
// whose first field does not parse as an IP address) is skipped.
func (d *Dataset) loadCSV(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3

	first := true
	for {
		record, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return pkgerr.Wrap(pkgerr.MinPkgIPRange, "read CSV dataset", err)
		}
		if first {
			first = false
			if net.ParseIP(record[0]) == nil {
				continue
			}
		}
		if err := d.Insert(record[0], record[1], record[2]); err != nil {
			return err
		}
	}
}
