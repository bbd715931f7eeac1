package databases_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/linesmerrill/police-blotter-api/config"
	"github.com/linesmerrill/police-blotter-api/databases"
	"github.com/linesmerrill/police-blotter-api/databases/mocks"
	"github.com/linesmerrill/police-blotter-api/models"
)

func TestNewReportDatabase(t *testing.T) {
	_ = os.Setenv("DB_URI", "mongodb://127.0.0.1:27017")
	_ = os.Setenv("DB_NAME", "test")
	conf := config.New()

	dbClient, err := databases.NewClient(conf)
	assert.NoError(t, err)

	db := databases.NewDatabase(conf, dbClient)

	reportDB := databases.NewReportDatabase(db)

	assert.NotEmpty(t, reportDB)
}

func TestReportDatabase_Get(t *testing.T) {
	var dbHelper databases.DatabaseHelper
	var collectionHelper databases.CollectionHelper
	var srHelperErr databases.SingleResultHelper
	var srHelperCorrect databases.SingleResultHelper

	dbHelper = &mocks.DatabaseHelper{}
	collectionHelper = &mocks.CollectionHelper{}
	srHelperErr = &mocks.SingleResultHelper{}
	srHelperCorrect = &mocks.SingleResultHelper{}

	srHelperErr.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(mongo.ErrNoDocuments)

	srHelperCorrect.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*models.Report)
		arg.ID = "r1"
		arg.Status = models.StatusPending
		arg.Version = 4
	})

	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"_id": "missing"}).
		Return(srHelperErr)

	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"_id": "r1"}).
		Return(srHelperCorrect)

	dbHelper.(*mocks.DatabaseHelper).
		On("Collection", "reports").Return(collectionHelper)

	reportDB := databases.NewReportDatabase(dbHelper)

	_, err := reportDB.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	report, err := reportDB.Get(context.Background(), "r1")
	assert.NoError(t, err)
	assert.Equal(t, "r1", report.ID)
	assert.Equal(t, int64(4), report.Version)
}

func TestReportDatabase_ReplaceIsVersioned(t *testing.T) {
	var dbHelper databases.DatabaseHelper
	var collectionHelper databases.CollectionHelper

	dbHelper = &mocks.DatabaseHelper{}
	collectionHelper = &mocks.CollectionHelper{}

	report := models.Report{ID: "r1", Status: models.StatusValidated, Version: 2}

	collectionHelper.(*mocks.CollectionHelper).
		On("ReplaceOne", context.Background(), bson.M{"_id": "r1", "version": int64(1)}, report).
		Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)

	dbHelper.(*mocks.DatabaseHelper).
		On("Collection", "reports").Return(collectionHelper)

	reportDB := databases.NewReportDatabase(dbHelper)

	err := reportDB.Replace(context.Background(), 1, report)
	assert.NoError(t, err)
	collectionHelper.(*mocks.CollectionHelper).AssertExpectations(t)
}

func TestReportDatabase_ReplaceConflict(t *testing.T) {
	var dbHelper databases.DatabaseHelper
	var collectionHelper databases.CollectionHelper
	var srHelper databases.SingleResultHelper

	dbHelper = &mocks.DatabaseHelper{}
	collectionHelper = &mocks.CollectionHelper{}
	srHelper = &mocks.SingleResultHelper{}

	report := models.Report{ID: "r1", Version: 2}

	srHelper.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(nil)

	collectionHelper.(*mocks.CollectionHelper).
		On("ReplaceOne", context.Background(), bson.M{"_id": "r1", "version": int64(1)}, report).
		Return(&mongo.UpdateResult{MatchedCount: 0}, nil)
	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"_id": "r1"}).
		Return(srHelper)

	dbHelper.(*mocks.DatabaseHelper).
		On("Collection", "reports").Return(collectionHelper)

	reportDB := databases.NewReportDatabase(dbHelper)

	err := reportDB.Replace(context.Background(), 1, report)
	assert.True(t, errors.Is(err, models.ErrConflict))
}

func TestReportDatabase_ReplaceMissingReport(t *testing.T) {
	var dbHelper databases.DatabaseHelper
	var collectionHelper databases.CollectionHelper
	var srHelper databases.SingleResultHelper

	dbHelper = &mocks.DatabaseHelper{}
	collectionHelper = &mocks.CollectionHelper{}
	srHelper = &mocks.SingleResultHelper{}

	report := models.Report{ID: "r1", Version: 2}

	srHelper.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(mongo.ErrNoDocuments)

	collectionHelper.(*mocks.CollectionHelper).
		On("ReplaceOne", context.Background(), bson.M{"_id": "r1", "version": int64(1)}, report).
		Return(&mongo.UpdateResult{MatchedCount: 0}, nil)
	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"_id": "r1"}).
		Return(srHelper)

	dbHelper.(*mocks.DatabaseHelper).
		On("Collection", "reports").Return(collectionHelper)

	reportDB := databases.NewReportDatabase(dbHelper)

	err := reportDB.Replace(context.Background(), 1, report)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestReportDatabase_ReplaceTimeout(t *testing.T) {
	var dbHelper databases.DatabaseHelper
	var collectionHelper databases.CollectionHelper

	dbHelper = &mocks.DatabaseHelper{}
	collectionHelper = &mocks.CollectionHelper{}

	report := models.Report{ID: "r1", Version: 2}

	collectionHelper.(*mocks.CollectionHelper).
		On("ReplaceOne", context.Background(), mock.Anything, report).
		Return(nil, context.DeadlineExceeded)

	dbHelper.(*mocks.DatabaseHelper).
		On("Collection", "reports").Return(collectionHelper)

	reportDB := databases.NewReportDatabase(dbHelper)

	err := reportDB.Replace(context.Background(), 1, report)
	assert.True(t, errors.Is(err, models.ErrTimeout))
}

func TestReportDatabase_ListByOfficers(t *testing.T) {
	var dbHelper databases.DatabaseHelper
	var collectionHelper databases.CollectionHelper
	var cursorHelper databases.CursorHelper

	dbHelper = &mocks.DatabaseHelper{}
	collectionHelper = &mocks.CollectionHelper{}
	cursorHelper = &mocks.CursorHelper{}

	cursorHelper.(*mocks.CursorHelper).
		On("All", context.Background(), mock.Anything).
		Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(1).(*[]models.Report)
		*arg = []models.Report{{ID: "a1", AssignedOfficerID: "A", Status: models.StatusAssigned}}
	})
	cursorHelper.(*mocks.CursorHelper).
		On("Close", context.Background()).
		Return(nil)

	collectionHelper.(*mocks.CollectionHelper).
		On("Find", context.Background(), mock.Anything).
		Return(cursorHelper, nil)

	dbHelper.(*mocks.DatabaseHelper).
		On("Collection", "reports").Return(collectionHelper)

	reportDB := databases.NewReportDatabase(dbHelper)

	reports, err := reportDB.ListByOfficers(context.Background(), []string{"A"})
	assert.NoError(t, err)
	assert.Len(t, reports, 1)

	none, err := reportDB.ListByOfficers(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, none)
	collectionHelper.(*mocks.CollectionHelper).AssertNumberOfCalls(t, "Find", 1)
}
