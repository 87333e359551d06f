package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicspot/apperr"
	"civicspot/metrics"
	"civicspot/models"
)

const saveRetryMaxElapsed = 2 * time.Second

// ReportService runs the report lifecycle against the store and its
// collaborators. Mutations are load, apply, save; a save that loses a race
// against a concurrent writer is retried from a fresh load.
type ReportService struct {
	reports  ReportRepository
	users    UserRepository
	media    MediaStore
	orphans  OrphanRepository
	events   EventPublisher
	notifier Notifier

	now        func() time.Time
	newBackOff func() backoff.BackOff
}

type Deps struct {
	Reports  ReportRepository
	Users    UserRepository
	Media    MediaStore
	Orphans  OrphanRepository
	Events   EventPublisher
	Notifier Notifier
}

type Option func(*ReportService)

func WithClock(now func() time.Time) Option {
	return func(s *ReportService) { s.now = now }
}

// WithBackOff replaces the retry policy used after a save conflict.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(s *ReportService) { s.newBackOff = f }
}

func NewReportService(d Deps, opts ...Option) *ReportService {
	s := &ReportService{
		reports:  d.Reports,
		users:    d.Users,
		media:    d.Media,
		orphans:  d.Orphans,
		events:   d.Events,
		notifier: d.Notifier,
		now:      func() time.Time { return time.Now().UTC() },
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 20 * time.Millisecond
			bo.MaxElapsedTime = saveRetryMaxElapsed
			return bo
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ReportService) Create(ctx context.Context, actor models.Actor, in models.CreateReportInput, files []models.Upload) (_ *models.ReportView, err error) {
	defer func() { record("create", err) }()

	if len(files) > models.MaxImages {
		return nil, apperr.ValidationFields(
			fmt.Sprintf("a report can have at most %d images", models.MaxImages),
			map[string]string{"images": fmt.Sprintf("cannot exceed %d files", models.MaxImages)},
		)
	}
	// Validate before any upload so a bad request leaves nothing behind.
	report, err := NewReport(actor, in, nil, s.now())
	if err != nil {
		return nil, err
	}

	images := make([]models.Image, 0, len(files))
	for _, f := range files {
		img, err := s.media.Upload(ctx, f)
		if err != nil {
			s.releaseMedia(ctx, report.ID, imageIDs(images))
			return nil, apperr.Wrap("upload image", err)
		}
		images = append(images, img)
	}
	report.Images = images

	if err := s.reports.Insert(ctx, report); err != nil {
		s.releaseMedia(ctx, report.ID, imageIDs(images))
		return nil, err
	}
	log.WithFields(log.Fields{"report_id": report.ID.Hex(), "user_id": actor.ID.Hex()}).Info("report created")
	s.publish(ctx, models.EventReportCreated, actor, report)
	return s.view(ctx, report)
}

func (s *ReportService) List(ctx context.Context, f models.ListFilter) (_ *models.ReportPage, err error) {
	defer func() { record("list", err) }()

	q, err := BuildListQuery(f)
	if err != nil {
		return nil, err
	}
	items, total, err := s.reports.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	views, err := s.views(ctx, items)
	if err != nil {
		return nil, err
	}
	return &models.ReportPage{
		Items: views,
		Total: total,
		Pages: TotalPages(total, q.Limit),
		Page:  q.Page,
	}, nil
}

// Get returns the report whether or not it has been soft-deleted.
func (s *ReportService) Get(ctx context.Context, id string) (_ *models.ReportView, err error) {
	defer func() { record("get", err) }()

	oid, err := parseReportID(id)
	if err != nil {
		return nil, err
	}
	report, err := s.reports.FindByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, report)
}

func (s *ReportService) Mine(ctx context.Context, actor models.Actor) (_ []models.ReportView, err error) {
	defer func() { record("mine", err) }()

	items, err := s.reports.FindByReporter(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, items)
}

func (s *ReportService) Update(ctx context.Context, actor models.Actor, id string, in models.UpdateReportInput) (_ *models.ReportView, err error) {
	defer func() { record("update", err) }()

	report, err := s.mutate(ctx, id, func(r *models.Report) error {
		return ApplyContentUpdate(actor, r, in)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, models.EventReportUpdated, actor, report)
	return s.view(ctx, report)
}

func (s *ReportService) UpdateStatus(ctx context.Context, actor models.Actor, id string, in models.StatusInput) (_ *models.ReportView, err error) {
	defer func() { record("status", err) }()

	report, err := s.mutate(ctx, id, func(r *models.Report) error {
		return Transition(actor, r, in, s.now())
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"report_id": report.ID.Hex(),
		"status":    report.Status,
		"admin_id":  actor.ID.Hex(),
	}).Info("report status changed")
	s.publish(ctx, models.EventReportStatusChanged, actor, report)
	s.notifyStatus(ctx, report)
	return s.view(ctx, report)
}

func (s *ReportService) Assign(ctx context.Context, actor models.Actor, id string, in models.AssignInput) (_ *models.ReportView, err error) {
	defer func() { record("assign", err) }()

	if in.AssignedTo != nil {
		v := strings.TrimSpace(*in.AssignedTo)
		in.AssignedTo = &v
	}
	if actor.IsAdmin() && in.AssignedTo != nil {
		if uid, perr := primitive.ObjectIDFromHex(*in.AssignedTo); perr == nil {
			if _, err := s.users.FindByID(ctx, uid); err != nil {
				if apperr.Is(err, apperr.KindNotFound) {
					return nil, apperr.ValidationFields("assignee does not exist",
						map[string]string{"assignedTo": "does not exist"})
				}
				return nil, err
			}
		}
	}

	report, err := s.mutate(ctx, id, func(r *models.Report) error {
		return Assign(actor, r, in)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, models.EventReportAssigned, actor, report)
	return s.view(ctx, report)
}

// Delete deactivates the report, then asks the media store to drop its
// images. Media failures are recorded for the cleanup job and never fail
// the call.
func (s *ReportService) Delete(ctx context.Context, actor models.Actor, id string) (err error) {
	defer func() { record("delete", err) }()

	var released []string
	report, err := s.mutate(ctx, id, func(r *models.Report) error {
		ids, err := SoftDelete(actor, r)
		released = ids
		return err
	})
	if err != nil {
		return err
	}
	s.releaseMedia(ctx, report.ID, released)
	log.WithFields(log.Fields{"report_id": report.ID.Hex(), "user_id": actor.ID.Hex()}).Info("report deleted")
	s.publish(ctx, models.EventReportDeleted, actor, report)
	return nil
}

func (s *ReportService) AddComment(ctx context.Context, actor models.Actor, id string, in models.CommentInput) (_ []models.CommentView, err error) {
	defer func() { record("comment", err) }()

	report, err := s.mutate(ctx, id, func(r *models.Report) error {
		_, err := AddComment(actor, r, in.Text, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, models.EventReportCommented, actor, report)
	view, err := s.view(ctx, report)
	if err != nil {
		return nil, err
	}
	return view.Comments, nil
}

func (s *ReportService) ToggleUpvote(ctx context.Context, actor models.Actor, id string) (_ *models.UpvoteResult, err error) {
	defer func() { record("upvote", err) }()

	var upvoted bool
	report, err := s.mutate(ctx, id, func(r *models.Report) error {
		upvoted = ToggleUpvote(actor, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &models.UpvoteResult{UpvoteCount: report.UpvoteCount, IsUpvoted: upvoted}, nil
}

func (s *ReportService) Stats(ctx context.Context, actor models.Actor) (_ *models.ReportStats, err error) {
	defer func() { record("stats", err) }()

	if !actor.IsAdmin() {
		return nil, apperr.Authorization("admin access required")
	}
	counts, err := s.reports.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	st := &models.ReportStats{
		Pending:    counts[models.StatusPending],
		InProgress: counts[models.StatusInProgress],
		Resolved:   counts[models.StatusResolved],
		Rejected:   counts[models.StatusRejected],
	}
	st.Total = st.Pending + st.InProgress + st.Resolved + st.Rejected
	return st, nil
}

// mutate loads the report, applies fn and saves it. fn runs again on a
// fresh copy whenever the save hits a concurrent write.
func (s *ReportService) mutate(ctx context.Context, id string, fn func(*models.Report) error) (*models.Report, error) {
	oid, err := parseReportID(id)
	if err != nil {
		return nil, err
	}

	var saved *models.Report
	op := func() error {
		r, err := s.reports.FindByID(ctx, oid)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := fn(r); err != nil {
			return backoff.Permanent(err)
		}
		r.UpvoteCount = len(r.Upvotes)
		r.UpdatedAt = s.now()
		if err := s.reports.Save(ctx, r); err != nil {
			if apperr.Is(err, apperr.KindConflict) {
				metrics.SaveConflictsTotal.Inc()
				return err
			}
			return backoff.Permanent(err)
		}
		saved = r
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(s.newBackOff(), ctx)); err != nil {
		return nil, apperr.Wrap("save report", err)
	}
	return saved, nil
}

func (s *ReportService) releaseMedia(ctx context.Context, reportID primitive.ObjectID, mediaIDs []string) {
	for _, mid := range mediaIDs {
		err := s.media.Delete(ctx, mid)
		if err == nil {
			continue
		}
		log.WithError(err).WithFields(log.Fields{
			"report_id": reportID.Hex(),
			"media_id":  mid,
		}).Warn("media delete failed, recording orphan")

		now := s.now()
		orphan := models.MediaOrphan{
			MediaID:   mid,
			ReportID:  reportID,
			Attempts:  1,
			LastError: err.Error(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if rerr := s.orphans.Record(ctx, orphan); rerr != nil {
			log.WithError(rerr).WithField("media_id", mid).Error("could not record media orphan")
		}
	}
}

func (s *ReportService) publish(ctx context.Context, eventType string, actor models.Actor, r *models.Report) {
	ev := models.ReportEvent{
		Type:       eventType,
		ReportID:   r.ID,
		ActorID:    actor.ID,
		Status:     r.Status,
		Category:   r.Category,
		OccurredAt: s.now(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		metrics.EventPublishErrorsTotal.Inc()
		log.WithError(err).WithFields(log.Fields{
			"event":     eventType,
			"report_id": r.ID.Hex(),
		}).Warn("failed to publish report event")
	}
}

func (s *ReportService) notifyStatus(ctx context.Context, r *models.Report) {
	reporter, err := s.users.FindByID(ctx, r.ReportedBy)
	if err != nil {
		log.WithError(err).WithField("report_id", r.ID.Hex()).Warn("reporter lookup failed, skipping notification")
		return
	}
	if err := s.notifier.StatusChanged(ctx, *reporter, r); err != nil {
		log.WithError(err).WithField("report_id", r.ID.Hex()).Warn("status notification failed")
	}
}

func (s *ReportService) view(ctx context.Context, r *models.Report) (*models.ReportView, error) {
	views, err := s.views(ctx, []models.Report{*r})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// views resolves the user references of every report with one lookup.
func (s *ReportService) views(ctx context.Context, reports []models.Report) ([]models.ReportView, error) {
	out := make([]models.ReportView, 0, len(reports))
	if len(reports) == 0 {
		return out, nil
	}

	seen := map[primitive.ObjectID]bool{}
	var ids []primitive.ObjectID
	add := func(id primitive.ObjectID) {
		if !id.IsZero() && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for i := range reports {
		r := &reports[i]
		add(r.ReportedBy)
		if r.AssignedTo != nil {
			add(*r.AssignedTo)
		}
		for _, c := range r.Comments {
			add(c.User)
		}
	}

	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i := range reports {
		r := reports[i]
		r.Normalize()
		v := models.ReportView{
			Report:     r,
			ReportedBy: reporterSummary(r.ReportedBy, users),
			Comments:   make([]models.CommentView, 0, len(r.Comments)),
		}
		if r.AssignedTo != nil {
			a := assigneeSummary(*r.AssignedTo, users)
			v.AssignedTo = &a
		}
		for _, c := range r.Comments {
			v.Comments = append(v.Comments, models.CommentView{
				ID:        c.ID,
				User:      authorSummary(c.User, users),
				Text:      c.Text,
				CreatedAt: c.CreatedAt,
			})
		}
		out = append(out, v)
	}
	return out, nil
}

func reporterSummary(id primitive.ObjectID, users map[primitive.ObjectID]models.User) models.UserSummary {
	u, ok := users[id]
	if !ok {
		return models.UserSummary{ID: id}
	}
	return models.UserSummary{ID: id, Name: u.Name, Email: u.Email, Phone: u.Phone, Avatar: u.Avatar}
}

func assigneeSummary(id primitive.ObjectID, users map[primitive.ObjectID]models.User) models.UserSummary {
	u, ok := users[id]
	if !ok {
		return models.UserSummary{ID: id}
	}
	return models.UserSummary{ID: id, Name: u.Name, Email: u.Email}
}

func authorSummary(id primitive.ObjectID, users map[primitive.ObjectID]models.User) models.UserSummary {
	u, ok := users[id]
	if !ok {
		return models.UserSummary{ID: id}
	}
	return models.UserSummary{ID: id, Name: u.Name, Avatar: u.Avatar}
}

func parseReportID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperr.NotFound("report not found")
	}
	return oid, nil
}

func imageIDs(images []models.Image) []string {
	ids := make([]string, 0, len(images))
	for _, img := range images {
		ids = append(ids, img.MediaID)
	}
	return ids
}

func record(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	metrics.ReportOperationsTotal.WithLabelValues(op, outcome).Inc()
}
