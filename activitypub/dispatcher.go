package activitypub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/sorrelsocial/sorrel/internal/algorithms"
	"github.com/sorrelsocial/sorrel/internal/backoff"
	"github.com/sorrelsocial/sorrel/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultWorkers is the size of the delivery worker pool.
const DefaultWorkers = 8

// DefaultGiveUp is how long a delivery is retried in process before it is
// parked for the background sweeper.
const DefaultGiveUp = 30 * time.Minute

// Job is one delivery of one activity to one inbox.
type Job struct {
	ID          uuid.UUID
	Account     *models.Account
	InboxURL    string
	ActivityURI string
	Activity    map[string]any
	Attempts    int
	started     time.Time
}

// PostFunc delivers an activity to an inbox.
type PostFunc func(ctx context.Context, account *models.Account, inbox string, activity map[string]any) error

// Dispatcher fans activities out to remote inboxes through a bounded
// worker pool. Failed deliveries are retried with exponential backoff and
// parked in the delivery_requests table when the retry budget runs out.
type Dispatcher struct {
	db      *gorm.DB
	workers int
	giveUp  time.Duration
	base    time.Duration
	queue   chan *Job

	// pending counts jobs that are enqueued or between retries
	pending sync.WaitGroup

	post PostFunc
	now  func() time.Time
}

func NewDispatcher(db *gorm.DB, workers int, giveUp time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if giveUp <= 0 {
		giveUp = DefaultGiveUp
	}
	return &Dispatcher{
		db:      db,
		workers: workers,
		giveUp:  giveUp,
		base:    time.Second,
		queue:   make(chan *Job, 1024),
		post:    postActivity,
		now:     time.Now,
	}
}

func postActivity(ctx context.Context, account *models.Account, inbox string, activity map[string]any) error {
	c, err := NewClient(account)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return c.Post(ctx, inbox, activity)
}

// Send expands the activity's addressing and enqueues a delivery for each
// recipient inbox.
func (d *Dispatcher) Send(account *models.Account, activity map[string]any) error {
	inboxes, err := d.ExpandRecipients(account, activity)
	if err != nil {
		return err
	}
	return d.Deliver(account, activity, inboxes)
}

// ExpandRecipients resolves the activity's to and cc addressing to a
// snapshot of concrete inbox URLs. The public token and the account's
// followers collection both expand to the follower inboxes as they are at
// this moment; later follower changes do not affect the delivery. Shared
// inboxes collapse to one entry.
func (d *Dispatcher) ExpandRecipients(account *models.Account, activity map[string]any) ([]string, error) {
	followersURI := account.Actor.URI + "/followers"
	var inboxes []string
	addFollowers := false
	for _, recipient := range append(anyToSlice(activity["to"]), anyToSlice(activity["cc"])...) {
		uri := stringFromAny(recipient)
		switch uri {
		case "", account.Actor.URI:
			// no self delivery
		case publicToken, followersURI:
			addFollowers = true
		default:
			actor, err := models.NewActors(d.db).FindByURI(uri)
			if err != nil {
				// an unknown direct recipient; nothing to deliver to
				continue
			}
			if actor.IsRemote() {
				inboxes = append(inboxes, actor.Inbox())
			}
		}
	}
	if addFollowers {
		followers, err := models.NewRelationships(d.db).Followers(account.Actor)
		if err != nil {
			return nil, err
		}
		for _, follower := range followers {
			if follower.IsRemote() {
				inboxes = append(inboxes, follower.Inbox())
			}
		}
	}
	return algorithms.Uniq(algorithms.Filter(inboxes, func(s string) bool { return s != "" })), nil
}

// Deliver enqueues one job per inbox. When the queue is full the job is
// parked immediately rather than blocking the caller.
func (d *Dispatcher) Deliver(account *models.Account, activity map[string]any, inboxes []string) error {
	for _, inbox := range inboxes {
		job := &Job{
			ID:          uuid.New(),
			Account:     account,
			InboxURL:    inbox,
			ActivityURI: stringFromAny(activity["id"]),
			Activity:    activity,
			started:     d.now(),
		}
		d.pending.Add(1)
		select {
		case d.queue <- job:
		default:
			d.pending.Done()
			if err := d.park(job, errors.New("delivery queue full")); err != nil {
				return err
			}
		}
	}
	return nil
}

// Drain blocks until every enqueued delivery has either succeeded or been
// parked. One-shot callers drain before shutting the worker pool down so
// nothing is lost with the process.
func (d *Dispatcher) Drain() {
	d.pending.Wait()
}

// Run drives the worker pool until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker(ctx)
		}()
	}
	wg.Wait()
	return nil
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-d.queue:
			d.attempt(ctx, job)
		}
	}
}

// attempt tries the delivery once, scheduling a retry on failure. A job
// that would exceed the give-up window is parked instead.
func (d *Dispatcher) attempt(ctx context.Context, job *Job) {
	err := d.post(ctx, job.Account, job.InboxURL, job.Activity)
	if err == nil {
		d.pending.Done()
		return
	}
	job.Attempts++
	delay := backoff.Delay(job.Attempts, d.base)
	fmt.Printf("dispatcher: delivery %s to %s failed (attempt %d): %v\n", job.ID, job.InboxURL, job.Attempts, err)
	if d.now().Add(delay).Sub(job.started) > d.giveUp {
		if perr := d.park(job, err); perr != nil {
			fmt.Println("dispatcher: parking delivery failed:", perr)
		}
		d.pending.Done()
		return
	}
	time.AfterFunc(delay, func() {
		select {
		case d.queue <- job:
		case <-ctx.Done():
			d.pending.Done()
		}
	})
}

// park records the failed delivery for the background sweeper.
func (d *Dispatcher) park(job *Job, cause error) error {
	body, err := json.Marshal(job.Activity)
	if err != nil {
		return err
	}
	return d.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.DeliveryRequest{
		Request: models.Request{
			Attempts:    uint32(job.Attempts),
			LastAttempt: d.now(),
			LastResult:  cause.Error(),
		},
		AccountID:   job.Account.ID,
		InboxURL:    job.InboxURL,
		ActivityURI: job.ActivityURI,
		Activity:    body,
	}).Error
}
