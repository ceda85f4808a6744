package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/AlfredBerg/rod-jobscraper/internal/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const createJobs = `CREATE TABLE IF NOT EXISTS jobs (
	id integer not null primary key,
	run_id text not null,
	position text,
	company_name text,
	vacancy_link text,
	experience_needed text,
	salary text,
	location text,
	posting_time text,
	openings text,
	applicants text,
	education text,
	employment_type text,
	industry_type text,
	scraped_date text,
	scraped_time text,
	days_ago integer,
	time_taken real
);`

const insertJob = `INSERT INTO jobs(run_id, position, company_name, vacancy_link, experience_needed, salary,
	location, posting_time, openings, applicants, education, employment_type, industry_type,
	scraped_date, scraped_time, days_ago, time_taken) values(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

// SqliteOutput mirrors written jobs into a SQLite table. Rows from one run
// share a run_id. Inserts happen on a single writer goroutine.
type SqliteOutput struct {
	Database string
	Logger   *zap.SugaredLogger

	RunID   string
	db      *sql.DB
	jobChan chan models.JobPosting
	wg      sync.WaitGroup

	errMu sync.Mutex
	err   error
}

func (o *SqliteOutput) Init() error {
	if o.Database == "" {
		return errors.New("sqlite database file not set")
	}
	if o.Logger == nil {
		o.Logger = zap.S()
	}

	db, err := sql.Open("sqlite3", o.Database)
	if err != nil {
		return fmt.Errorf("opening %s: %w", o.Database, err)
	}
	o.db = db

	if _, err = db.Exec(createJobs); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create jobs table: %w", err)
	}

	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}

	//Buffered channel so a slow disk does not stall the scrape
	o.jobChan = make(chan models.JobPosting, 20)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for j := range o.jobChan {
			if err := o.insert(&j); err != nil {
				o.Logger.Errorf("failed to insert job %q: %s", j.VacancyLink, err)
				o.setErr(err)
			}
		}
	}()
	return nil
}

func (o *SqliteOutput) insert(j *models.JobPosting) error {
	var daysAgo sql.NullInt64
	if j.DaysAgo != nil {
		daysAgo = sql.NullInt64{Int64: int64(*j.DaysAgo), Valid: true}
	}

	_, err := o.db.Exec(insertJob, o.RunID,
		j.Position, j.CompanyName, j.VacancyLink, j.ExperienceNeeded, j.Salary, j.Location, j.PostingTime,
		j.Openings, j.Applicants, j.Education, j.EmploymentType, j.IndustryType,
		j.CurrentDate(), j.CurrentTime(), daysAgo, j.TimeTakenSeconds())
	return err
}

func (o *SqliteOutput) setErr(err error) {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	if o.err == nil {
		o.err = err
	}
}

// HandleJob queues the job for insertion. Insert failures surface from Cleanup.
func (o *SqliteOutput) HandleJob(job *models.JobPosting) error {
	o.jobChan <- *job
	return nil
}

// Cleanup drains the queue and closes the database.
func (o *SqliteOutput) Cleanup() error {
	if o.db == nil {
		return nil
	}
	close(o.jobChan)
	o.wg.Wait()

	err := o.db.Close()
	o.db = nil

	o.errMu.Lock()
	defer o.errMu.Unlock()
	if o.err != nil {
		return o.err
	}
	return err
}
