package asn

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// Table names inside the MaxMind GeoLite2-ASN-CSV archive.
const (
	IPv4TableName = "GeoLite2-ASN-Blocks-IPv4.csv"
	IPv6TableName = "GeoLite2-ASN-Blocks-IPv6.csv"
)

// LoadCSV builds an index from the GeoLite2-ASN-Blocks-IPv4/IPv6 CSV tables.
func LoadCSV(ipv4Path, ipv6Path string) (*Index, error) {
	x := NewIndex()
	for _, t := range []struct {
		path string
		fam  Family
	}{
		{ipv4Path, IPv4},
		{ipv6Path, IPv6},
	} {
		if err := x.readFile(t.path, t.fam); err != nil {
			return nil, err
		}
	}
	return x, nil
}

func (x *Index) readFile(path string, fam Family) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s table: %w", fam, err)
	}
	defer f.Close()

	if err := x.ReadCSV(f, fam); err != nil {
		var fe *FormatError
		if errors.As(err, &fe) && fe.File == "" {
			fe.File = path
		}
		return err
	}
	return nil
}

// ReadCSV appends the rows of one table to the index. The first row is the
// header and is required. Rows are (network, autonomous_system_number, ...);
// rows with fewer than two columns are skipped.
func (x *Index) ReadCSV(r io.Reader, fam Family) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return &FormatError{Line: 1, Message: "missing header row"}
		}
		return &FormatError{Line: 1, Message: "read header row", Cause: err}
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return &FormatError{Line: pe.Line, Message: "read row", Cause: err}
			}
			return &FormatError{Message: "read row", Cause: err}
		}
		line, _ := cr.FieldPos(0)
		if len(row) < 2 {
			continue
		}
		number, err := ParseNumber(row[1])
		if err != nil {
			return &FormatError{Line: line, Message: fmt.Sprintf("invalid ASN %q", row[1]), Cause: err}
		}
		x.Add(fam, number, row[0])
	}
}
