package crawl

import (
	"time"

	"github.com/AlfredBerg/rod-jobscraper/internal/browser"
	"github.com/AlfredBerg/rod-jobscraper/internal/config"
	"github.com/AlfredBerg/rod-jobscraper/internal/models"
	"go.uber.org/multierr"
)

type OutputHandler interface {
	HandleJob(job *models.JobPosting) error
}

// Outputs hands every job to each handler in order.
type Outputs []OutputHandler

func (o Outputs) HandleJob(job *models.JobPosting) error {
	var err error
	for _, h := range o {
		err = multierr.Append(err, h.HandleJob(job))
	}
	return err
}

type Job struct {
	Session       browser.Session
	Target        string
	Selectors     config.Selectors
	OutputHandler OutputHandler

	// Count is the number of rows to write before stopping.
	Count int
	// PageSize is how many card positions are tried on each results page.
	PageSize int
	// MaxPages stops pagination after that many pages; 0 means no limit.
	MaxPages int

	Now func() time.Time
}

type Stats struct {
	Written        int
	Duplicates     int
	ListingMisses  int
	DetailFailures int
	Pages          int
}
