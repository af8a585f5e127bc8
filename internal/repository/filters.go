package repository

import (
	"time"

	"notification-service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func idsFilter(ids []bson.ObjectID) bson.M {
	return bson.M{"_id": bson.M{"$in": ids}}
}

// backfillSettingsFilter matches entities of the batch without an override.
func backfillSettingsFilter(ids []bson.ObjectID) bson.M {
	f := idsFilter(ids)
	f["notificationSettings"] = bson.M{"$exists": false}
	return f
}

func initHistoryFilter(ids []bson.ObjectID) bson.M {
	f := idsFilter(ids)
	f["notifications"] = bson.M{"$exists": false}
	return f
}

// recentRecordMatch matches one history element of the channel and alert
// type dated at or after since. An empty alert type matches records that
// carry none.
func recentRecordMatch(channel models.Channel, alertType string, since time.Time) bson.M {
	match := bson.M{
		"type": channel,
		"date": bson.M{"$gte": since},
	}
	if alertType == "" {
		match["alertType"] = nil
	} else {
		match["alertType"] = alertType
	}
	return match
}

// appendFilter is the conditional bulk-append predicate. Entities that
// already hold a recent record of the same channel do not match, so a racing
// second caller modifies nothing.
func appendFilter(ids []bson.ObjectID, channel models.Channel, alertType string, since time.Time) bson.M {
	f := idsFilter(ids)
	f["notifications"] = bson.M{
		"$not": bson.M{"$elemMatch": recentRecordMatch(channel, alertType, since)},
	}
	return f
}

func appendUpdate(record models.NotificationRecord) bson.M {
	update := bson.M{
		"$push": bson.M{"notifications": record},
	}
	if record.Type == models.ChannelBrowser {
		update["$set"] = bson.M{"browserAlertSent": true}
	}
	return update
}

// ownerWindowFilter selects an owner's entities whose date field falls in
// [from, to]. extra adds kind-specific conditions such as status.
func ownerWindowFilter(ownerID bson.ObjectID, dateField string, from, to time.Time, extra bson.M) bson.M {
	f := bson.M{
		"userId":  ownerID,
		dateField: bson.M{"$gte": from, "$lte": to},
	}
	for k, v := range extra {
		f[k] = v
	}
	return f
}

func pendingAlertsFilter(userID bson.ObjectID) bson.M {
	return bson.M{"userId": userID, "delivered": false}
}

func logStatsPipeline(since time.Time) []bson.M {
	return []bson.M{
		{"$match": bson.M{"createdAt": bson.M{"$gte": since}}},
		{"$group": bson.M{
			"_id":   bson.M{"channel": "$channel", "status": "$status"},
			"count": bson.M{"$sum": 1},
		}},
		{"$project": bson.M{
			"_id":     0,
			"channel": "$_id.channel",
			"status":  "$_id.status",
			"count":   1,
		}},
		{"$sort": bson.D{{Key: "channel", Value: 1}, {Key: "status", Value: 1}}},
	}
}
