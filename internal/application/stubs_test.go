package application

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/example/studio-scheduler/internal/credits"
	"github.com/example/studio-scheduler/internal/datemath"
	"github.com/example/studio-scheduler/internal/lock"
	"github.com/example/studio-scheduler/internal/persistence"
)

var brt = time.FixedZone("BRT", -3*60*60)

type eventRepoStub struct {
	events    map[string]persistence.Event
	// beforeUpdate runs between the service's read and its write.
	beforeUpdate func()
	createErr error
	updateErr error
	deleteErr error
	listErr   error
	filter    persistence.EventFilter
}

func newEventRepoStub(events ...persistence.Event) *eventRepoStub {
	s := &eventRepoStub{events: make(map[string]persistence.Event)}
	for _, ev := range events {
		s.events[ev.ID] = ev
	}
	return s
}

func (s *eventRepoStub) CreateEvent(ctx context.Context, event persistence.Event) error {
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.events[event.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.events[event.ID] = event.Clone()
	return nil
}

func (s *eventRepoStub) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	ev, ok := s.events[id]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return ev.Clone(), nil
}

func (s *eventRepoStub) UpdateEvent(ctx context.Context, before, after persistence.Event) error {
	if s.beforeUpdate != nil {
		s.beforeUpdate()
	}
	if s.updateErr != nil {
		return s.updateErr
	}
	stored, ok := s.events[after.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if !reflect.DeepEqual(stored, before) {
		return persistence.ErrConflict
	}
	s.events[after.ID] = after.Clone()
	return nil
}

func (s *eventRepoStub) DeleteEvent(ctx context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.events[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *eventRepoStub) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	s.filter = filter
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []persistence.Event
	for _, ev := range s.events {
		if filter.CompanyID != "" && ev.Company != filter.CompanyID {
			continue
		}
		start, ok := datemath.Parse(ev.Datetime)
		if ok && !filter.From.IsZero() && start.Before(filter.From) {
			continue
		}
		if ok && !filter.To.IsZero() && !start.Before(filter.To) {
			continue
		}
		out = append(out, ev.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type hookCall struct {
	op     string
	before persistence.Event
	after  persistence.Event
	batch  []persistence.Event
}

type creditHooksStub struct {
	mu     sync.Mutex
	calls  []hookCall
	report credits.Report
}

func (s *creditHooksStub) record(call hookCall) credits.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return s.report
}

func (s *creditHooksStub) OnEventCreate(ctx context.Context, ev persistence.Event) credits.Report {
	return s.record(hookCall{op: "create", after: ev})
}

func (s *creditHooksStub) OnEventUpdate(ctx context.Context, before, after persistence.Event) credits.Report {
	return s.record(hookCall{op: "update", before: before, after: after})
}

func (s *creditHooksStub) OnEventDelete(ctx context.Context, ev persistence.Event) credits.Report {
	return s.record(hookCall{op: "delete", before: ev})
}

func (s *creditHooksStub) OnBatchEventsCreate(ctx context.Context, events []persistence.Event) credits.Report {
	return s.record(hookCall{op: "batch_create", batch: events})
}

type templateRepoStub struct {
	templates []persistence.ClassTemplate
	err       error
	calls     int
}

func (s *templateRepoStub) ListTemplates(ctx context.Context, companyID string) ([]persistence.ClassTemplate, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.templates, nil
}

func (s *templateRepoStub) UpsertTemplate(ctx context.Context, template persistence.ClassTemplate) error {
	s.templates = append(s.templates, template)
	return nil
}

// writerStub skips events whose template already produced one on the same date.
type writerStub struct {
	seen  map[string]bool
	err   error
	calls int
}

func (s *writerStub) InsertPropagated(ctx context.Context, events []persistence.Event) (persistence.InsertResult, error) {
	s.calls++
	if s.err != nil {
		return persistence.InsertResult{}, s.err
	}
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	var res persistence.InsertResult
	for _, ev := range events {
		key := ev.TemplateID + "@" + ev.Datetime[:10]
		if s.seen[key] {
			res.Skipped = append(res.Skipped, ev)
			continue
		}
		s.seen[key] = true
		res.Inserted = append(res.Inserted, ev)
	}
	return res, nil
}

type lockerStub struct {
	err      error
	keys     []string
	released int
}

func (s *lockerStub) Acquire(ctx context.Context, key string, ttl time.Duration) (lock.ReleaseFunc, error) {
	s.keys = append(s.keys, key)
	if s.err != nil {
		return nil, s.err
	}
	return func(context.Context) error {
		s.released++
		return nil
	}, nil
}

type published struct {
	subject string
	data    any
}

type publisherStub struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (s *publisherStub) Publish(ctx context.Context, subject string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, published{subject: subject, data: data})
	return nil
}

func (s *publisherStub) Close() error { return nil }

type recorderStub struct {
	propagated map[string]int
	dropped    int
	searches   []int
}

func (s *recorderStub) PropagatedEvents(outcome string, n int) {
	if s.propagated == nil {
		s.propagated = make(map[string]int)
	}
	s.propagated[outcome] += n
}

func (s *recorderStub) DroppedTemplates(n int) { s.dropped += n }

func (s *recorderStub) SlotSearch(results int) { s.searches = append(s.searches, results) }

type companyDirectoryStub struct {
	companies map[string]persistence.Company
}

func (s companyDirectoryStub) GetCompany(ctx context.Context, id string) (persistence.Company, error) {
	c, ok := s.companies[id]
	if !ok {
		return persistence.Company{}, persistence.ErrNotFound
	}
	return c, nil
}

type professionalDirectoryStub struct {
	profiles []persistence.Profile
	err      error
}

func (s professionalDirectoryStub) ListProfessionals(ctx context.Context, companyID string) ([]persistence.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []persistence.Profile
	for _, p := range s.profiles {
		if p.Company == companyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func intPtr(v int) *int { return &v }

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}
