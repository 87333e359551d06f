package services_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicspot/apperr"
	"civicspot/models"
	"civicspot/services"
	mock_services "civicspot/services/mocks"
)

type serviceDeps struct {
	reports  *mock_services.MockReportRepository
	users    *mock_services.MockUserRepository
	media    *mock_services.MockMediaStore
	orphans  *mock_services.MockOrphanRepository
	events   *mock_services.MockEventPublisher
	notifier *mock_services.MockNotifier
}

func newService(t *testing.T) (*services.ReportService, serviceDeps) {
	t.Helper()

	ctrl := gomock.NewController(t)
	d := serviceDeps{
		reports:  mock_services.NewMockReportRepository(ctrl),
		users:    mock_services.NewMockUserRepository(ctrl),
		media:    mock_services.NewMockMediaStore(ctrl),
		orphans:  mock_services.NewMockOrphanRepository(ctrl),
		events:   mock_services.NewMockEventPublisher(ctrl),
		notifier: mock_services.NewMockNotifier(ctrl),
	}
	svc := services.NewReportService(services.Deps{
		Reports:  d.reports,
		Users:    d.users,
		Media:    d.media,
		Orphans:  d.orphans,
		Events:   d.events,
		Notifier: d.notifier,
	},
		services.WithClock(fixedNow),
		services.WithBackOff(func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
		}),
	)
	return svc, d
}

func noUsers(d serviceDeps) {
	d.users.EXPECT().FindByIDs(gomock.Any(), gomock.Any()).
		Return(map[primitive.ObjectID]models.User{}, nil).AnyTimes()
}

func upload(name string) models.Upload {
	return models.Upload{Filename: name, ContentType: "image/jpeg", Size: 3, Reader: bytes.NewReader([]byte("jpg"))}
}

func TestReportService_Create(t *testing.T) {
	t.Parallel()

	svc, d := newService(t)
	owner := citizen()

	d.media.EXPECT().Upload(gomock.Any(), gomock.Any()).Return(models.Image{URL: "https://cdn/a.jpg", MediaID: "reports/a.jpg"}, nil)
	d.media.EXPECT().Upload(gomock.Any(), gomock.Any()).Return(models.Image{URL: "https://cdn/b.jpg", MediaID: "reports/b.jpg"}, nil)

	var inserted *models.Report
	d.reports.EXPECT().Insert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r *models.Report) error {
			inserted = r
			return nil
		})
	d.events.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ev models.ReportEvent) error {
			assert.Equal(t, models.EventReportCreated, ev.Type)
			assert.Equal(t, owner.ID, ev.ActorID)
			return nil
		})
	d.users.EXPECT().FindByIDs(gomock.Any(), []primitive.ObjectID{owner.ID}).
		Return(map[primitive.ObjectID]models.User{owner.ID: {ID: owner.ID, Name: "Asha", Email: "asha@example.com"}}, nil)

	view, err := svc.Create(context.Background(), owner, streetlightInput(), []models.Upload{upload("a.jpg"), upload("b.jpg")})
	require.NoError(t, err)
	require.NotNil(t, inserted)

	assert.Equal(t, models.StatusPending, view.Status)
	assert.Equal(t, 0, view.UpvoteCount)
	assert.Equal(t, "Asha", view.ReportedBy.Name)
	assert.Equal(t, []string{"reports/a.jpg", "reports/b.jpg"}, inserted.MediaIDs())
	assert.Empty(t, view.Comments)
}

func TestReportService_Create_InvalidInputUploadsNothing(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	in := streetlightInput()
	in.Title = "Bad"

	_, err := svc.Create(context.Background(), citizen(), in, []models.Upload{upload("a.jpg")})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestReportService_Create_TooManyFiles(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	files := make([]models.Upload, models.MaxImages+1)

	_, err := svc.Create(context.Background(), citizen(), streetlightInput(), files)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestReportService_Create_UploadFailureReleasesEarlierImages(t *testing.T) {
	t.Parallel()

	svc, d := newService(t)

	gomock.InOrder(
		d.media.EXPECT().Upload(gomock.Any(), gomock.Any()).Return(models.Image{URL: "u", MediaID: "m1"}, nil),
		d.media.EXPECT().Upload(gomock.Any(), gomock.Any()).Return(models.Image{}, errors.New("bucket unavailable")),
		d.media.EXPECT().Delete(gomock.Any(), "m1").Return(nil),
	)

	_, err := svc.Create(context.Background(), citizen(), streetlightInput(), []models.Upload{upload("a.jpg"), upload("b.jpg")})
	assert.True(t, apperr.Is(err, apperr.KindUnexpected))
}

func TestReportService_ToggleUpvote_RetriesOnConflict(t *testing.T) {
	t.Parallel()

	svc, d := newService(t)
	stored := newReport(t, citizen())
	voter := citizen()

	d.reports.EXPECT().FindByID(gomock.Any(), stored.ID).
		DoAndReturn(func(context.Context, primitive.ObjectID) (*models.Report, error) {
			return stored.Clone(), nil
		}).Times(2)
	gomock.InOrder(
		d.reports.EXPECT().Save(gomock.Any(), gomock.Any()).Return(apperr.Conflict("report was modified concurrently")),
		d.reports.EXPECT().Save(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, r *models.Report) error {
				assert.Equal(t, []primitive.ObjectID{voter.ID}, r.Upvotes)
				assert.Equal(t, fixedNow(), r.UpdatedAt)
				return nil
			}),
	)

	res, err := svc.ToggleUpvote(context.Background(), voter, stored.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, &models.UpvoteResult{UpvoteCount: 1, IsUpvoted: true}, res)
}

func TestReportService_ToggleUpvote_GivesUpAfterRepeatedConflicts(t *testing.T) {
	t.Parallel()

	svc, d := newService(t)
	stored := newReport(t, citizen())

	d.reports.EXPECT().FindByID(gomock.Any(), stored.ID).
		DoAndReturn(func(context.Context, primitive.ObjectID) (*models.Report, error) {
			return stored.Clone(), nil
		}).Times(4)
	d.reports.EXPECT().Save(gomock.Any(), gomock.Any()).
		Return(apperr.Conflict("report was modified concurrently")).Times(4)

	_, err := svc.ToggleUpvote(context.Background(), citizen(), stored.ID.Hex())
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestReportService_Update_StrangerIsRejected(t *testing.T) {
	t.Parallel()

	svc, d := newService(t)
	stored := newReport(t, citizen())

	d.reports.EXPECT().FindByID(gomock.Any(), stored.ID).Return(stored.Clone(), nil)

	_, err := svc.Update(context.Background(), citizen(), stored.ID.Hex(), models.UpdateReportInput{
		Title: strptr("A different title"),
	})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestReportService_Update_MalformedIDIsNotFound(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	_, err := svc.Update(context.Background(), citizen(), "not-an-id", models.UpdateReportInput{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestReportService_Delete_RecordsOrphans(t *testing.T) {
	t.Parallel()

	svc, d := newService(t)
	owner := citizen()
	stored := newReport(t, owner)
	stored.Images = []models.Image{{URL: "u1", MediaID: "m1"}, {URL: "u2", MediaID: "m2"}}

	d.reports.EXPECT().FindByID(gomock.Any(), stored.ID).Return(stored.Clone(), nil)
	d.reports.EXPECT().Save(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r *models.Report) error {
			assert.False(t, r.IsActive)
			return nil
		})
	d.media.EXPECT().Delete(gomock.Any(), "m1").Return(nil)
	d.media.EXPECT().Delete(gomock.Any(), "m2").Return(errors.New("timeout"))
	d.orphans.EXPECT().Record(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, o models.MediaOrphan) error {
			assert.Equal(t, "m2", o.MediaID)
			assert.Equal(t, stored.ID, o.ReportID)
			assert.Equal(t, "timeout", o.LastError)
			return nil
		})
	d.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	err := svc.Delete(context.Background(), owner, stored.ID.Hex())
	assert.NoError(t, err)
}

func TestReportService_Delete_StrangerLeavesMediaAlone(t *testing.T) {
	t.Parallel()

	svc, d := newService(t)
	stored := newReport(t, citizen())
	stored.Images = []models.Image{{URL: "u1", MediaID: "m1"}}

	d.reports.EXPECT().FindByID(gomock.Any(), stored.ID).Return(stored.Clone(), nil)

	err := svc.Delete(context.Background(), citizen(), stored.ID.Hex())
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestReportService_Get_ReturnsSoftDeleted(t *testing.T) {
	t.Parallel()

	svc, d := newService(t)
	stored := newReport(t, citizen())
	stored.IsActive = false
	noUsers(d)

	d.reports.EXPECT().FindByID(gomock.Any(), stored.ID).Return(stored.Clone(), nil)

	view, err := svc.Get(context.Background(), stored.ID.Hex())
	require.NoError(t, err)
	assert.False(t, view.IsActive)
	assert.Equal(t, stored.ReportedBy, view.ReportedBy.ID)
}

func TestReportService_Get_NotFound(t *testing.T) {
	t.Parallel()

	svc, d := newService(t)
	id := primitive.NewObjectID()
	d.reports.EXPECT().FindByID(gomock.Any(), id).Return(nil, apperr.NotFound("report not found"))

	_, err := svc.Get(context.Background(), id.Hex())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.Get(context.Background(), "12345")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestReportService_List(t *testing.T) {
	t.Parallel()

	svc, d := newService(t)
	noUsers(d)
	r1, r2 := newReport(t, citizen()), newReport(t, citizen())

	d.reports.EXPECT().Find(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, q models.ListQuery) ([]models.Report, int64, error) {
			assert.Equal(t, "pothole", q.Filter["category"])
			assert.Equal(t, "pending", q.Filter["status"])
			assert.Equal(t, true, q.Filter["isActive"])
			assert.Equal(t, 10, q.Limit)
			return []models.Report{*r1, *r2}, 23, nil
		})

	page, err := svc.List(context.Background(), models.ListFilter{
		Category: "pothole", Status: "pending", Page: "1", Limit: "10",
	})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, int64(23), page.Total)
	assert.Equal(t, 3, page.Pages)
	assert.Equal(t, 1, page.Page)
}

func TestReportService_UpdateStatus_NotifiesReporter(t *testing.T) {
	t.Parallel()

	svc, d := newService(t)
	owner := citizen()
	stored := newReport(t, owner)
	noUsers(d)

	d.reports.EXPECT().FindByID(gomock.Any(), stored.ID).Return(stored.Clone(), nil)
	d.reports.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
	d.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
	d.users.EXPECT().FindByID(gomock.Any(), owner.ID).Return(&models.User{ID: owner.ID, Email: "asha@example.com"}, nil)
	d.notifier.EXPECT().StatusChanged(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("sendgrid: 401"))

	view, err := svc.UpdateStatus(context.Background(), admin(), stored.ID.Hex(), models.StatusInput{Status: "resolved"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, view.Status)
	require.NotNil(t, view.ResolvedAt)
	assert.Len(t, view.StatusHistory, 1)
}

func TestReportService_AddComment(t *testing.T) {
	t.Parallel()

	svc, d := newService(t)
	stored := newReport(t, citizen())
	author := citizen()

	d.reports.EXPECT().FindByID(gomock.Any(), stored.ID).Return(stored.Clone(), nil)
	d.reports.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
	d.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
	d.users.EXPECT().FindByIDs(gomock.Any(), gomock.Any()).
		Return(map[primitive.ObjectID]models.User{author.ID: {ID: author.ID, Name: "Ravi", Avatar: "r.png", Email: "hidden@example.com"}}, nil)

	comments, err := svc.AddComment(context.Background(), author, stored.ID.Hex(), models.CommentInput{Text: "Seen it too"})
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Ravi", comments[0].User.Name)
	assert.Empty(t, comments[0].User.Email)
}

func TestReportService_Assign_UnknownUser(t *testing.T) {
	t.Parallel()

	svc, d := newService(t)
	ghost := primitive.NewObjectID()
	d.users.EXPECT().FindByID(gomock.Any(), ghost).Return(nil, apperr.NotFound("user not found"))

	_, err := svc.Assign(context.Background(), admin(), primitive.NewObjectID().Hex(), models.AssignInput{AssignedTo: strptr(ghost.Hex())})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestReportService_Assign_PaddedUnknownUser(t *testing.T) {
	t.Parallel()

	svc, d := newService(t)
	ghost := primitive.NewObjectID()
	d.users.EXPECT().FindByID(gomock.Any(), ghost).Return(nil, apperr.NotFound("user not found"))

	_, err := svc.Assign(context.Background(), admin(), primitive.NewObjectID().Hex(), models.AssignInput{AssignedTo: strptr("  " + ghost.Hex() + " ")})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestReportService_Stats(t *testing.T) {
	t.Parallel()

	svc, d := newService(t)

	_, err := svc.Stats(context.Background(), citizen())
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	d.reports.EXPECT().CountByStatus(gomock.Any()).Return(map[models.Status]int64{
		models.StatusPending:  4,
		models.StatusResolved: 2,
	}, nil)

	st, err := svc.Stats(context.Background(), admin())
	require.NoError(t, err)
	assert.Equal(t, &models.ReportStats{Total: 6, Pending: 4, Resolved: 2}, st)
}

func TestReportService_Mine(t *testing.T) {
	t.Parallel()

	svc, d := newService(t)
	owner := citizen()
	r := newReport(t, owner)

	d.reports.EXPECT().FindByReporter(gomock.Any(), owner.ID).Return([]models.Report{*r}, nil)
	noUsers(d)

	views, err := svc.Mine(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, r.ID, views[0].ID)
	assert.Equal(t, owner.ID, views[0].ReportedBy.ID)
}
