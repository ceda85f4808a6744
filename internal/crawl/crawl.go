package crawl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AlfredBerg/rod-jobscraper/internal/config"
	"github.com/AlfredBerg/rod-jobscraper/internal/log"
	"github.com/AlfredBerg/rod-jobscraper/internal/models"
)

// cardXPath points a listing selector at the card in the given position.
func cardXPath(tmpl string, index int) string {
	return strings.ReplaceAll(tmpl, config.IndexPlaceholder, strconv.Itoa(index))
}

// Crawl walks the search results page by page until Count rows have been
// written or there is no next page. Cards that cannot be read are skipped,
// postings already seen are skipped, and postings whose detail page fails
// are dropped. Only navigation to Target and output failures are errors.
func (j *Job) Crawl(ctx context.Context) (Stats, error) {
	logger := log.FromContext(ctx)
	now := j.Now
	if now == nil {
		now = time.Now
	}

	stats := Stats{}
	if err := j.Session.Navigate(j.Target); err != nil {
		return stats, fmt.Errorf("could not navigate to the initial page %s: %w", j.Target, err)
	}
	stats.Pages = 1

	seen := make(map[models.Key]struct{})

	for stats.Written < j.Count {
		for index := 1; index <= j.PageSize && stats.Written < j.Count; index++ {
			//Is the context canceled?
			if err := ctx.Err(); err != nil {
				return stats, err
			}

			start := time.Now()
			job, err := j.scrapeListing(index)
			if err != nil {
				stats.ListingMisses++
				logger.Debugf("skipping card %d on page %d: %s", index, stats.Pages, err)
				continue
			}
			job.ScrapedAt = now()
			job.DaysAgo = models.ParseDaysAgo(job.PostingTime)

			key := job.Key()
			if _, ok := seen[key]; ok {
				stats.Duplicates++
				continue
			}
			seen[key] = struct{}{}

			if err := j.scrapeDetail(ctx, job); err != nil {
				stats.DetailFailures++
				logger.Infof("error scraping additional data for %s: %s", job.VacancyLink, err)
				continue
			}
			job.TimeTaken = time.Since(start)

			if err := j.OutputHandler.HandleJob(job); err != nil {
				return stats, fmt.Errorf("writing %s: %w", job.VacancyLink, err)
			}
			stats.Written++
			logger.Infof("[%d/%d] %s @ %s (%.1fs)", stats.Written, j.Count, job.Position, job.CompanyName, job.TimeTakenSeconds())
		}

		if stats.Written >= j.Count {
			break
		}
		if j.MaxPages > 0 && stats.Pages >= j.MaxPages {
			logger.Warnf("reached the page limit of %d with %d/%d jobs", j.MaxPages, stats.Written, j.Count)
			break
		}
		if err := j.Session.Click(j.Selectors.Next); err != nil {
			logger.Warnf("no next page after page %d, stopping with %d/%d jobs: %s", stats.Pages, stats.Written, j.Count, err)
			break
		}
		stats.Pages++
		logger.Debugf("moved to page %d", stats.Pages)
	}

	return stats, nil
}

func (j *Job) scrapeListing(index int) (*models.JobPosting, error) {
	sel := j.Selectors.Listing
	job := &models.JobPosting{}

	fields := []struct {
		dst   *string
		xpath string
		attr  string
	}{
		{&job.Position, sel.Position, ""},
		{&job.VacancyLink, sel.Link, "href"},
		{&job.CompanyName, sel.CompanyName, ""},
		{&job.ExperienceNeeded, sel.Experience, ""},
		{&job.Salary, sel.Salary, ""},
		{&job.Location, sel.Location, ""},
		{&job.PostingTime, sel.PostingTime, ""},
	}

	for _, f := range fields {
		xp := cardXPath(f.xpath, index)
		var err error
		if f.attr != "" {
			*f.dst, err = j.Session.Attribute(xp, f.attr)
		} else {
			*f.dst, err = j.Session.Text(xp)
		}
		if err != nil {
			return nil, err
		}
	}
	return job, nil
}

// scrapeDetail fills the detail fields of job from its vacancy page, opened
// in a separate tab so the results page keeps its place.
func (j *Job) scrapeDetail(ctx context.Context, job *models.JobPosting) error {
	tab, err := j.Session.OpenTab(job.VacancyLink)
	if err != nil {
		return err
	}
	defer func() {
		if err := tab.Close(); err != nil {
			log.FromContext(ctx).Warnf("failed closing tab for %s: %s", job.VacancyLink, err)
		}
	}()

	sel := j.Selectors.Detail
	fields := []struct {
		dst   *string
		xpath string
	}{
		{&job.Openings, sel.Openings},
		{&job.Applicants, sel.Applicants},
		{&job.Education, sel.Education},
		{&job.EmploymentType, sel.EmploymentType},
		{&job.IndustryType, sel.IndustryType},
	}

	for _, f := range fields {
		text, err := tab.Text(f.xpath)
		if err != nil {
			return err
		}
		*f.dst = text
	}
	return nil
}
