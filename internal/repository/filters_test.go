package repository

import (
	"testing"
	"time"

	"notification-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestAppendFilter(t *testing.T) {
	ids := []bson.ObjectID{bson.NewObjectID(), bson.NewObjectID()}
	since := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)

	t.Run("without alert type", func(t *testing.T) {
		f := appendFilter(ids, models.ChannelEmail, "", since)

		assert.Equal(t, bson.M{"$in": ids}, f["_id"])
		notifications, ok := f["notifications"].(bson.M)
		require.True(t, ok)
		elem := notifications["$not"].(bson.M)["$elemMatch"].(bson.M)
		assert.Equal(t, models.ChannelEmail, elem["type"])
		assert.Equal(t, bson.M{"$gte": since}, elem["date"])
		assert.Contains(t, elem, "alertType")
		assert.Nil(t, elem["alertType"])
	})

	t.Run("with alert type", func(t *testing.T) {
		f := appendFilter(ids, models.ChannelBrowser, "caducity", since)
		elem := f["notifications"].(bson.M)["$not"].(bson.M)["$elemMatch"].(bson.M)
		assert.Equal(t, "caducity", elem["alertType"])
	})
}

func TestAppendUpdate(t *testing.T) {
	email := appendUpdate(models.NotificationRecord{Type: models.ChannelEmail, Success: true})
	assert.Contains(t, email, "$push")
	assert.NotContains(t, email, "$set")

	browser := appendUpdate(models.NotificationRecord{Type: models.ChannelBrowser, Success: true})
	assert.Equal(t, bson.M{"browserAlertSent": true}, browser["$set"])
}

func TestBackfillAndInitFilters(t *testing.T) {
	ids := []bson.ObjectID{bson.NewObjectID()}

	assert.Equal(t, bson.M{"$exists": false}, backfillSettingsFilter(ids)["notificationSettings"])
	assert.Equal(t, bson.M{"$exists": false}, initHistoryFilter(ids)["notifications"])
}

func TestOwnerWindowFilter(t *testing.T) {
	owner := bson.NewObjectID()
	from := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 5)

	f := ownerWindowFilter(owner, "dueDate", from, to, bson.M{"status": models.TaskStatusPending})

	assert.Equal(t, owner, f["userId"])
	assert.Equal(t, bson.M{"$gte": from, "$lte": to}, f["dueDate"])
	assert.Equal(t, models.TaskStatusPending, f["status"])
}

func TestLogStatsPipeline(t *testing.T) {
	since := time.Now().Add(-24 * time.Hour)
	pipeline := logStatsPipeline(since)

	require.Len(t, pipeline, 4)
	assert.Equal(t, bson.M{"createdAt": bson.M{"$gte": since}}, pipeline[0]["$match"])
	assert.Contains(t, pipeline[1], "$group")
}
