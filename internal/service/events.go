package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/pkordes/eventsync/internal/domain"
)

// defaultEventLength is the calendar length of an event without a duration.
const defaultEventLength = time.Hour

// EventView is an event or recurrence with everything a detail page shows.
type EventView struct {
	Record          domain.Record      `json:"record"`
	Fields          domain.Fields      `json:"fields"`
	FurtherDates    []string           `json:"further_dates"`
	Dates           []domain.EventDate `json:"dates"`
	Filters         []domain.Term      `json:"filters"`
	Language        string             `json:"language,omitempty"`
	Translations    map[string]string  `json:"translations,omitempty"`
	DateAndDuration string             `json:"date_and_duration"`
	DurationMinutes int                `json:"duration_minutes"`
	IndexTitle      string             `json:"index_title"`
	Link            string             `json:"link"`
}

// EventService reads events for display.
type EventService struct {
	st    Stores
	dates *DateService
}

// NewEventService constructs an EventService.
func NewEventService(st Stores, dates *DateService) *EventService {
	return &EventService{st: st, dates: dates}
}

// Get returns the detail view of an event or recurrence. currentID marks
// the date being viewed; uuid.Nil means the record itself.
func (s *EventService) Get(ctx context.Context, id, currentID uuid.UUID) (EventView, error) {
	rec, err := s.eventRecord(ctx, id)
	if err != nil {
		return EventView{}, fmt.Errorf("service.EventService.Get: %w", err)
	}
	fields, err := s.st.Fields.All(ctx, id)
	if err != nil {
		return EventView{}, fmt.Errorf("service.EventService.Get: %w", err)
	}
	further, err := s.st.Fields.FurtherDates(ctx, id)
	if err != nil {
		return EventView{}, fmt.Errorf("service.EventService.Get: %w", err)
	}
	if currentID == uuid.Nil {
		currentID = id
	}
	dates, err := s.EventDates(ctx, id, currentID)
	if err != nil {
		return EventView{}, fmt.Errorf("service.EventService.Get: %w", err)
	}
	filters, err := s.Filters(ctx, id)
	if err != nil {
		return EventView{}, fmt.Errorf("service.EventService.Get: %w", err)
	}
	lang, err := s.st.Translations.Language(ctx, id)
	if err != nil {
		return EventView{}, fmt.Errorf("service.EventService.Get: %w", err)
	}
	peers, err := s.st.Translations.Translations(ctx, id)
	if err != nil {
		return EventView{}, fmt.Errorf("service.EventService.Get: %w", err)
	}
	translations := make(map[string]string, len(peers))
	for l, pid := range peers {
		translations[l] = pid.String()
	}

	ev := domain.NewEvent(rec, fields, further)
	return EventView{
		Record:          rec,
		Fields:          fields,
		FurtherDates:    further,
		Dates:           dates,
		Filters:         filters,
		Language:        lang,
		Translations:    translations,
		DateAndDuration: s.dates.DisplayDateAndDuration(ev.DateTime, ev.Duration),
		DurationMinutes: DurationMinutes(ev.Duration),
		IndexTitle:      IndexTitle(rec.Title, ev.LocationName, ev.LocationSortName),
		Link:            RecurrenceLink(rec),
	}, nil
}

// EventDates lists the primary date of an event plus the date of every
// recurrence, ascending. A recurrence id resolves to its parent's dates.
// IsCurrent marks the entry whose record is currentID.
func (s *EventService) EventDates(ctx context.Context, id, currentID uuid.UUID) ([]domain.EventDate, error) {
	rec, err := s.eventRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service.EventService.EventDates: %w", err)
	}
	parentID := rec.ID
	if rec.Type == domain.TypeRecurrence && rec.ParentID != nil {
		parentID = *rec.ParentID
	}

	children, err := s.st.Records.Children(ctx, parentID, domain.TypeRecurrence)
	if err != nil {
		return nil, fmt.Errorf("service.EventService.EventDates: %w", err)
	}

	out := []domain.EventDate{}
	for _, rid := range append([]uuid.UUID{parentID}, children...) {
		raw, err := s.st.Fields.Get(ctx, rid, domain.FieldDateTime)
		if err != nil {
			return nil, fmt.Errorf("service.EventService.EventDates: %w", err)
		}
		t, err := s.dates.Parse(raw)
		if err != nil {
			continue
		}
		out = append(out, domain.EventDate{Date: t, RecordID: rid, IsCurrent: rid == currentID})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Filters returns the classification terms of an event.
func (s *EventService) Filters(ctx context.Context, id uuid.UUID) ([]domain.Term, error) {
	terms, err := s.st.Terms.ListByRecord(ctx, id, domain.TaxonomyEventFilter)
	if err != nil {
		return nil, fmt.Errorf("service.EventService.Filters: %w", err)
	}
	return terms, nil
}

// Calendar renders every date of an event as an iCalendar document.
func (s *EventService) Calendar(ctx context.Context, id uuid.UUID) (string, error) {
	rec, err := s.eventRecord(ctx, id)
	if err != nil {
		return "", fmt.Errorf("service.EventService.Calendar: %w", err)
	}
	fields, err := s.st.Fields.All(ctx, id)
	if err != nil {
		return "", fmt.Errorf("service.EventService.Calendar: %w", err)
	}
	dates, err := s.EventDates(ctx, id, uuid.Nil)
	if err != nil {
		return "", fmt.Errorf("service.EventService.Calendar: %w", err)
	}

	length := time.Duration(DurationMinutes(fields[domain.FieldDuration])) * time.Minute
	if length == 0 {
		length = defaultEventLength
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//eventsync//events//EN")
	for _, d := range dates {
		vevent := cal.AddEvent(d.RecordID.String())
		vevent.SetDtStampTime(rec.UpdatedAt.UTC())
		vevent.SetStartAt(d.Date)
		vevent.SetEndAt(d.Date.Add(length))
		vevent.SetSummary(rec.Title)
		if loc := fields[domain.FieldLocationName]; loc != "" {
			vevent.SetLocation(loc)
		}
		if link := fields[domain.FieldExternalLink]; link != "" {
			vevent.SetURL(link)
		}
	}
	return cal.Serialize(), nil
}

// RecurrenceLink is the public path of a record. Recurrences resolve to
// their parent event with the recurrence selected.
func RecurrenceLink(rec domain.Record) string {
	if rec.Type == domain.TypeRecurrence && rec.ParentID != nil {
		return fmt.Sprintf("/events/%s?recurrence=%s", rec.ParentID, rec.ID)
	}
	return fmt.Sprintf("/events/%s", rec.ID)
}

func (s *EventService) eventRecord(ctx context.Context, id uuid.UUID) (domain.Record, error) {
	rec, err := s.st.Records.GetByID(ctx, id)
	if err != nil {
		return domain.Record{}, err
	}
	if !rec.Type.IsEventLike() {
		return domain.Record{}, fmt.Errorf("%w: %s is not an event", domain.ErrNotFound, id)
	}
	return rec, nil
}
