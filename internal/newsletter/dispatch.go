package newsletter

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/fragmede/hnreader/internal/store"
)

// maxParallelSends bounds concurrent deliveries.
const maxParallelSends = 4

type SubscriberLister interface {
	ActiveSubscribers(ctx context.Context) ([]store.Subscriber, error)
}

// Failure records one recipient that could not be sent to.
type Failure struct {
	Email string `json:"email"`
	Err   string `json:"error"`
}

// Report summarises a send. Delivery is best effort: a failure for one
// recipient does not stop the others.
type Report struct {
	Recipients int       `json:"recipients"`
	Sent       int       `json:"sent"`
	Failed     []Failure `json:"failed,omitempty"`
}

func (r Report) Message() string {
	if len(r.Failed) == 0 {
		return fmt.Sprintf("Email sent to %d subscribers", r.Sent)
	}
	return fmt.Sprintf("Email sent to %d of %d subscribers", r.Sent, r.Recipients)
}

type Dispatcher struct {
	subs   SubscriberLister
	sender Sender
	from   string
	appURL string
	log    *log.Logger
}

func NewDispatcher(subs SubscriberLister, sender Sender, from, appURL string, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		subs:   subs,
		sender: sender,
		from:   from,
		appURL: strings.TrimRight(appURL, "/"),
		log:    logger.WithPrefix("newsletter"),
	}
}

// UnsubscribeURL is the link placed in every email sent to email.
func (d *Dispatcher) UnsubscribeURL(email string) string {
	return d.appURL + "/api/newsletter/unsubscribe?email=" + url.QueryEscape(email)
}

// Send delivers digest to every active subscriber, personalised with the
// subscriber's name and unsubscribe link.
func (d *Dispatcher) Send(ctx context.Context, digest *Digest) (Report, error) {
	subs, err := d.subs.ActiveSubscribers(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("listing subscribers: %w", err)
	}
	if len(subs) == 0 {
		return Report{}, ErrNoSubscribers
	}

	var (
		mu  sync.Mutex
		rep = Report{Recipients: len(subs)}
	)
	fail := func(email string, err error) {
		d.log.Warn("send failed", "to", email, "err", err)
		mu.Lock()
		rep.Failed = append(rep.Failed, Failure{Email: email, Err: err.Error()})
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSends)
	for _, sub := range subs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				fail(sub.Email, err)
				return nil
			}
			html, err := digest.Render(sub.Name, d.UnsubscribeURL(sub.Email))
			if err != nil {
				fail(sub.Email, err)
				return nil
			}
			err = d.sender.Send(gctx, Message{From: d.from, To: sub.Email, Subject: digest.Subject, HTML: html})
			if err != nil {
				fail(sub.Email, err)
				return nil
			}
			d.log.Debug("sent", "to", sub.Email)
			mu.Lock()
			rep.Sent++
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	d.log.Info("newsletter sent", "sent", rep.Sent, "failed", len(rep.Failed))
	return rep, ctx.Err()
}

// Job composes and sends one newsletter.
type Job struct {
	Composer   *Composer
	Dispatcher *Dispatcher
}

func (j *Job) Run(ctx context.Context) (Report, error) {
	digest, err := j.Composer.Compose(ctx)
	if err != nil {
		return Report{}, err
	}
	return j.Dispatcher.Send(ctx, digest)
}
