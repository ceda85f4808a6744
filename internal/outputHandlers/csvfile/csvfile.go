package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/AlfredBerg/rod-jobscraper/internal/models"
)

// CsvOutput appends one row per job to a fresh CSV file. Every row is
// flushed as soon as it is written so an interrupted run keeps what it got.
type CsvOutput struct {
	Path string

	f    *os.File
	w    *csv.Writer
	rows int
}

// Init replaces any existing file at Path and writes the header.
func (o *CsvOutput) Init() error {
	if o.Path == "" {
		return errors.New("csv output file not set")
	}

	if err := os.Remove(o.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing old %s: %w", o.Path, err)
	}

	f, err := os.OpenFile(o.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", o.Path, err)
	}
	o.f = f
	o.w = csv.NewWriter(f)

	if err := o.write(models.CSVHeader); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing header to %s: %w", o.Path, err)
	}
	return nil
}

func (o *CsvOutput) write(record []string) error {
	if err := o.w.Write(record); err != nil {
		return err
	}
	o.w.Flush()
	return o.w.Error()
}

func (o *CsvOutput) HandleJob(job *models.JobPosting) error {
	if err := o.write(job.Row()); err != nil {
		return fmt.Errorf("writing row to %s: %w", o.Path, err)
	}
	o.rows++
	return nil
}

// Rows is the number of data rows written since Init.
func (o *CsvOutput) Rows() int {
	return o.rows
}

func (o *CsvOutput) Cleanup() error {
	if o.f == nil {
		return nil
	}
	o.w.Flush()
	err := o.w.Error()
	if cerr := o.f.Close(); err == nil {
		err = cerr
	}
	o.f = nil
	return err
}

// CountRows reads a file written by CsvOutput back and returns the number of
// data rows. It fails if the header is not the expected one.
func CountRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(models.CSVHeader)

	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("reading header of %s: %w", path, err)
	}
	if !slices.Equal(header, models.CSVHeader) {
		return 0, fmt.Errorf("unexpected header in %s: %v", path, header)
	}

	rows := 0
	for {
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, fmt.Errorf("reading %s: %w", path, err)
		}
		rows++
	}
}
